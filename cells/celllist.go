// Package cells implements the uniform-grid spatial indices built per
// (particle vector, cutoff) pair.
//
// A primary cell list owns its particle vector's local storage order:
// Build reorders the vector in place, so after a build the vector's data
// is in cell-major order and every other cell list on the same vector
// reads that order. Secondary lists keep private reordered copies of the
// channels they carry. The driver never creates a primary list for an
// object vector.
package cells

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/particles"
)

// CellList is a uniform grid index over the local partition of one
// particle vector, with cell edge >= the cutoff it was built for.
type CellList struct {
	pv      *particles.ParticleVector
	rc      float64
	local   r3.Vec
	nc      [3]int
	h       r3.Vec
	primary bool

	starts []int32 // prefix sums, len = ncells+1
	sizes  []int32
	order  []int32 // original index -> cell-sorted index

	// private reordered storage; nil for primary lists, whose channels
	// live directly on the particle vector
	store *particles.DataStore
	extra map[string]bool

	buildStamp uint64
	built      bool
}

// New creates a cell list. A primary list reorders the particle vector in
// place at every build; at most one primary list may exist per vector.
func New(pv *particles.ParticleVector, rc float64, localSize r3.Vec, primary bool) *CellList {
	cl := &CellList{pv: pv, rc: rc, local: localSize, primary: primary}
	for d, ext := range []float64{localSize.X, localSize.Y, localSize.Z} {
		n := int(math.Floor(ext / rc))
		if n < 1 {
			n = 1
		}
		cl.nc[d] = n
	}
	cl.h = r3.Vec{
		X: localSize.X / float64(cl.nc[0]),
		Y: localSize.Y / float64(cl.nc[1]),
		Z: localSize.Z / float64(cl.nc[2]),
	}
	ncells := cl.nc[0] * cl.nc[1] * cl.nc[2]
	cl.starts = make([]int32, ncells+1)
	cl.sizes = make([]int32, ncells)
	if !primary {
		cl.store = particles.NewDataStore()
		cl.store.Create(particles.ChPositions, particles.VecKind, particles.Transient)
		cl.store.Create(particles.ChVelocities, particles.VecKind, particles.Transient)
		cl.store.Create(particles.ChForces, particles.VecKind, particles.Transient)
		cl.extra = make(map[string]bool)
	}
	return cl
}

func (cl *CellList) PV() *particles.ParticleVector { return cl.pv }
func (cl *CellList) RC() float64                   { return cl.rc }
func (cl *CellList) IsPrimary() bool               { return cl.primary }
func (cl *CellList) NumCells() [3]int              { return cl.nc }
func (cl *CellList) Starts() []int32               { return cl.starts }
func (cl *CellList) Sizes() []int32                { return cl.sizes }

// Order maps original particle index to its cell-sorted index, as of the
// most recent build.
func (cl *CellList) Order() []int32 { return cl.order }

// RequireChannel asks a secondary list to carry a private copy of one of
// its vector's channels. No-op for primary lists.
func (cl *CellList) RequireChannel(name string) error {
	if cl.primary {
		return nil
	}
	ch, ok := cl.pv.Local.Channel(name)
	if !ok {
		return fmt.Errorf("cell list on %q: channel %q not registered on vector", cl.pv.Name(), name)
	}
	if err := cl.store.Create(name, ch.Kind, particles.Transient); err != nil {
		return err
	}
	cl.extra[name] = true
	return nil
}

// CellID encodes grid coordinates row-major, x fastest.
func (cl *CellList) CellID(cx, cy, cz int) int {
	return (cz*cl.nc[1]+cy)*cl.nc[0] + cx
}

// CellCoord projects a position to grid coordinates, clamped to the grid.
// Used for owned particles, which are guaranteed in range up to rounding.
func (cl *CellList) CellCoord(p r3.Vec) (int, int, int) {
	cx := clamp(int(math.Floor((p.X+0.5*cl.local.X)/cl.h.X)), 0, cl.nc[0]-1)
	cy := clamp(int(math.Floor((p.Y+0.5*cl.local.Y)/cl.h.Y)), 0, cl.nc[1]-1)
	cz := clamp(int(math.Floor((p.Z+0.5*cl.local.Z)/cl.h.Z)), 0, cl.nc[2]-1)
	return cx, cy, cz
}

// ProbeCoord projects without clamping; a coordinate outside the grid is
// reported as -1 in that dimension. Used when probing from halo positions.
func (cl *CellList) ProbeCoord(p r3.Vec) (int, int, int) {
	cx := int(math.Floor((p.X + 0.5*cl.local.X) / cl.h.X))
	cy := int(math.Floor((p.Y + 0.5*cl.local.Y) / cl.h.Y))
	cz := int(math.Floor((p.Z + 0.5*cl.local.Z) / cl.h.Z))
	if cx < 0 || cx >= cl.nc[0] {
		cx = -1
	}
	if cy < 0 || cy >= cl.nc[1] {
		cy = -1
	}
	if cz < 0 || cz >= cl.nc[2] {
		cz = -1
	}
	return cx, cy, cz
}

// ProbeFloor projects to raw grid coordinates with neither clamping nor
// range reporting. Callers intersect the result with the grid themselves
// when sweeping cell ranges around out-of-grid positions.
func (cl *CellList) ProbeFloor(p r3.Vec) (int, int, int) {
	return int(math.Floor((p.X + 0.5*cl.local.X) / cl.h.X)),
		int(math.Floor((p.Y + 0.5*cl.local.Y) / cl.h.Y)),
		int(math.Floor((p.Z + 0.5*cl.local.Z) / cl.h.Z))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NeedsBuild reports whether the vector has moved since the last build.
func (cl *CellList) NeedsBuild() bool {
	return !cl.built || cl.buildStamp != cl.pv.MotionStamp()
}

// Build computes the cell index of every local particle, prefix-sums cell
// sizes, produces the order permutation and reorders particle data into
// cell-major layout. Skipped when the vector has not moved.
func (cl *CellList) Build(stream *device.Stream) {
	if !cl.NeedsBuild() {
		return
	}
	n := cl.pv.Local.Size()
	pos := cl.pv.Positions()

	for i := range cl.sizes {
		cl.sizes[i] = 0
	}
	cids := make([]int32, n)
	for i := 0; i < n; i++ {
		cx, cy, cz := cl.CellCoord(pos[i])
		cids[i] = int32(cl.CellID(cx, cy, cz))
		cl.sizes[cids[i]]++
	}

	cl.starts[0] = 0
	for c := range cl.sizes {
		cl.starts[c+1] = cl.starts[c] + cl.sizes[c]
	}

	cursor := make([]int32, len(cl.sizes))
	copy(cursor, cl.starts[:len(cl.sizes)])
	cl.order = make([]int32, n)
	for i := 0; i < n; i++ {
		cl.order[i] = cursor[cids[i]]
		cursor[cids[i]]++
	}

	if cl.primary {
		// in-place reorder of the whole vector, all channels
		oldOf := make([]int32, n)
		for i, newIdx := range cl.order {
			oldOf[newIdx] = int32(i)
		}
		cl.pv.Local.Permute(oldOf)
		cl.pv.BumpMotionStamp()
	} else {
		cl.store.Resize(n)
		for _, name := range []string{particles.ChPositions, particles.ChVelocities} {
			src, _ := cl.pv.Local.Channel(name)
			dst, _ := cl.store.Channel(name)
			cl.gatherInto(dst, src)
		}
	}

	cl.buildStamp = cl.pv.MotionStamp()
	cl.built = true
}

// AccumulateChannels adds the private cell-ordered channel values back
// into the vector's channels in original indexing. Identity for primary
// lists, whose channels live on the vector.
func (cl *CellList) AccumulateChannels(names []string, stream *device.Stream) {
	if cl.primary {
		return
	}
	for _, name := range names {
		src, ok := cl.store.Channel(name)
		if !ok {
			continue
		}
		dst, _ := cl.pv.Local.Channel(name)
		for i := 0; i < cl.store.Size(); i++ {
			dst.Add(i, src, int(cl.order[i]))
		}
	}
}

// GatherChannels copies vector channels into the private cell-ordered
// layout. No-op for primary lists.
func (cl *CellList) GatherChannels(names []string, stream *device.Stream) error {
	if cl.primary {
		return nil
	}
	for _, name := range names {
		if err := cl.RequireChannel(name); err != nil {
			return err
		}
		src, _ := cl.pv.Local.Channel(name)
		dst, _ := cl.store.Channel(name)
		cl.gatherInto(dst, src)
	}
	return nil
}

func (cl *CellList) gatherInto(dst, src *particles.Channel) {
	for i := 0; i < len(cl.order); i++ {
		dst.Set(int(cl.order[i]), src, i)
	}
}

// ClearChannels zeroes the named channels on the list's own storage: the
// private store for secondary lists, the vector itself for primary ones.
func (cl *CellList) ClearChannels(names []string, stream *device.Stream) {
	ds := cl.pv.Local
	if !cl.primary {
		ds = cl.store
	}
	for _, name := range names {
		ds.ClearChannel(name, stream)
	}
}

// View returns the store kernels should read and write: the vector itself
// for a primary list, the private reordered store for a secondary one.
func (cl *CellList) View() *particles.DataStore {
	if cl.primary {
		return cl.pv.Local
	}
	return cl.store
}
