//go:build mpi

package comm

// The cgo binding follows the header setup of
// github.com/marcusthierfelder/mpi. Use
// $ mpicc --showme:compile
// $ mpicc --showme:link
// to adjust CFLAGS and LDFLAGS for the local installation.

/*
#cgo LDFLAGS: -pthread -L/usr/lib/x86_64-linux-gnu/openmpi/lib -lmpi
#cgo CFLAGS: -std=gnu99 -Wall -I/usr/lib/x86_64-linux-gnu/openmpi/include/openmpi -I/usr/lib/x86_64-linux-gnu/openmpi/include -pthread
#include <mpi.h>
#include <stdlib.h>

MPI_Comm get_MPI_COMM_WORLD() {
    return (MPI_Comm)(MPI_COMM_WORLD);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/mesokit/mesokit/mkerr"
)

// MPI is the communicator over a real MPI installation, built with the
// mpi tag. The Cartesian layout is handled in Go (PeriodicRank) so only
// point-to-point and reduction calls cross into C.
type MPI struct {
	comm C.MPI_Comm
	rank int
	size int
	dims [3]int
}

// NewMPI initialises MPI (if needed) and wraps MPI_COMM_WORLD as a
// Cartesian communicator of the given dimensions.
func NewMPI(dims [3]int) (Comm, error) {
	var initialized C.int
	C.MPI_Initialized(&initialized)
	if initialized == 0 {
		if err := check(C.MPI_Init(nil, nil)); err != nil {
			return nil, err
		}
	}
	world := C.get_MPI_COMM_WORLD()
	var rank, size C.int
	if err := check(C.MPI_Comm_rank(world, &rank)); err != nil {
		return nil, err
	}
	if err := check(C.MPI_Comm_size(world, &size)); err != nil {
		return nil, err
	}
	want := dims[0] * dims[1] * dims[2]
	if int(size) != want {
		return nil, fmt.Errorf("%w: world size %d != rank grid %dx%dx%d",
			mkerr.ErrConfiguration, int(size), dims[0], dims[1], dims[2])
	}
	return &MPI{comm: world, rank: int(rank), size: int(size), dims: dims}, nil
}

func check(err C.int) error {
	if err == 0 {
		return nil
	}
	buf := make([]C.char, C.MPI_MAX_ERROR_STRING)
	n := C.int(0)
	C.MPI_Error_string(err, &buf[0], &n)
	return fmt.Errorf("%w: %s", mkerr.ErrExchange, C.GoString(&buf[0]))
}

func (c *MPI) Rank() int      { return c.rank }
func (c *MPI) Size() int      { return c.size }
func (c *MPI) Dims() [3]int   { return c.dims }
func (c *MPI) Coords() [3]int { return CoordsOf(c.dims, c.rank) }

func (c *MPI) RankAt(coords [3]int) int { return PeriodicRank(c.dims, coords) }

type mpiRequest struct {
	req C.MPI_Request
	buf []byte // kept alive until Wait
}

func (r *mpiRequest) Wait() (int, error) {
	var status C.MPI_Status
	if err := check(C.MPI_Wait(&r.req, &status)); err != nil {
		return 0, err
	}
	var count C.int
	if err := check(C.MPI_Get_count(&status, C.MPI_BYTE, &count)); err != nil {
		return 0, err
	}
	return int(count), nil
}

func bufPtr(buf []byte) unsafe.Pointer {
	if len(buf) == 0 {
		return unsafe.Pointer(&[]byte{0}[0])
	}
	return unsafe.Pointer(&buf[0])
}

func (c *MPI) Isend(dst, tag int, buf []byte) (Request, error) {
	r := &mpiRequest{buf: buf}
	err := check(C.MPI_Isend(bufPtr(buf), C.int(len(buf)), C.MPI_BYTE,
		C.int(dst), C.int(tag), c.comm, &r.req))
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (c *MPI) Irecv(src, tag int, buf []byte) (Request, error) {
	r := &mpiRequest{buf: buf}
	err := check(C.MPI_Irecv(bufPtr(buf), C.int(len(buf)), C.MPI_BYTE,
		C.int(src), C.int(tag), c.comm, &r.req))
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (c *MPI) AllreduceSum(vals []float64) ([]float64, error) {
	out := make([]float64, len(vals))
	if len(vals) == 0 {
		return out, nil
	}
	err := check(C.MPI_Allreduce(unsafe.Pointer(&vals[0]), unsafe.Pointer(&out[0]),
		C.int(len(vals)), C.MPI_DOUBLE, C.MPI_SUM, c.comm))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MPI) Barrier() error {
	return check(C.MPI_Barrier(c.comm))
}
