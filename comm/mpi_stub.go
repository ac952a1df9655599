//go:build !mpi

package comm

import "fmt"

// NewMPI is only available when built with the mpi tag.
func NewMPI(dims [3]int) (Comm, error) {
	return nil, fmt.Errorf("built without MPI support (use -tags mpi)")
}
