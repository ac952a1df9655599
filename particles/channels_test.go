package particles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/mkerr"
)

func TestDataStore_CreateIdempotent(t *testing.T) {
	ds := NewDataStore()
	require.NoError(t, ds.Create("rho", FloatKind, Transient))
	require.NoError(t, ds.Create("rho", FloatKind, Transient))
	assert.True(t, ds.Exists("rho"))
}

func TestDataStore_TypeConflict(t *testing.T) {
	ds := NewDataStore()
	require.NoError(t, ds.Create("rho", FloatKind, Transient))
	err := ds.Create("rho", VecKind, Transient)
	require.ErrorIs(t, err, mkerr.ErrChannelType)
}

func TestDataStore_PersistentNames(t *testing.T) {
	ds := NewDataStore()
	require.NoError(t, ds.Create("a", FloatKind, Persistent))
	require.NoError(t, ds.Create("b", VecKind, Transient))
	require.NoError(t, ds.Create("c", IDKind, Persistent))
	assert.Equal(t, []string{"a", "c"}, ds.PersistentNames())
}

func TestDataStore_ResizeGrowOnly(t *testing.T) {
	ds := NewDataStore()
	require.NoError(t, ds.Create("x", VecKind, Persistent))
	ds.Resize(10)
	vecs := ds.Vecs("x")
	vecs[7] = r3.Vec{X: 1}
	ds.Resize(4)
	ds.Resize(10)
	// capacity survived the shrink, so the slot is reachable again
	assert.Equal(t, r3.Vec{X: 1}, ds.Vecs("x")[7])
}

func TestDataStore_Permute(t *testing.T) {
	ds := NewDataStore()
	require.NoError(t, ds.Create("v", FloatKind, Persistent))
	ds.Resize(4)
	f := ds.Floats("v")
	copy(f, []float64{10, 11, 12, 13})

	// result[i] = input[oldOf[i]]
	ds.Permute([]int32{3, 1, 0, 2})
	assert.Equal(t, []float64{13, 11, 10, 12}, ds.Floats("v"))
}

func TestDataStore_Filter(t *testing.T) {
	ds := NewDataStore()
	require.NoError(t, ds.Create("v", FloatKind, Persistent))
	ds.Resize(5)
	copy(ds.Floats("v"), []float64{0, 1, 2, 3, 4})

	ds.Filter([]int32{0, 2, 4})
	assert.Equal(t, 3, ds.Size())
	assert.Equal(t, []float64{0, 2, 4}, ds.Floats("v"))
}

func TestPackUnpack_RoundTrip(t *testing.T) {
	src := NewDataStore()
	require.NoError(t, src.Create(ChPositions, VecKind, Persistent))
	require.NoError(t, src.Create(ChIDs, IDKind, Persistent))
	require.NoError(t, src.Create("rho", FloatKind, Persistent))
	src.Resize(3)
	pos := src.Vecs(ChPositions)
	pos[0] = r3.Vec{X: 1, Y: 2, Z: 3}
	pos[1] = r3.Vec{X: -1, Y: 0, Z: 0.5}
	pos[2] = r3.Vec{X: 4, Y: 4, Z: 4}
	ids := src.IDs(ChIDs)
	ids[0], ids[1], ids[2] = [2]int32{7, 0}, [2]int32{8, 1}, [2]int32{9, 0}
	copy(src.Floats("rho"), []float64{0.25, 0.5, 0.75})

	names := []string{ChPositions, ChIDs, "rho"}
	shift := r3.Vec{X: -8}
	buf := make([]byte, 2*src.EntityBytes(names))
	src.PackEntities(names, []int32{2, 0}, shift, buf)

	dst := NewDataStore()
	require.NoError(t, dst.Create(ChPositions, VecKind, Persistent))
	require.NoError(t, dst.Create(ChIDs, IDKind, Persistent))
	require.NoError(t, dst.Create("rho", FloatKind, Persistent))
	dst.Resize(2)
	dst.UnpackEntities(names, 0, 2, buf)

	// positions arrive shifted into the receiver frame, everything else
	// byte-identical
	assert.Equal(t, r3.Vec{X: -4, Y: 4, Z: 4}, dst.Vecs(ChPositions)[0])
	assert.Equal(t, r3.Vec{X: -7, Y: 2, Z: 3}, dst.Vecs(ChPositions)[1])
	assert.Equal(t, [2]int32{9, 0}, dst.IDs(ChIDs)[0])
	assert.Equal(t, [2]int32{7, 0}, dst.IDs(ChIDs)[1])
	assert.Equal(t, []float64{0.75, 0.25}, dst.Floats("rho"))
}

func TestAccumulateEntities(t *testing.T) {
	ds := NewDataStore()
	require.NoError(t, ds.Create(ChForces, VecKind, Transient))
	ds.Resize(2)
	ds.Vecs(ChForces)[1] = r3.Vec{X: 1}

	src := NewDataStore()
	require.NoError(t, src.Create(ChForces, VecKind, Transient))
	src.Resize(1)
	src.Vecs(ChForces)[0] = r3.Vec{X: 2, Y: 3}
	buf := make([]byte, src.EntityBytes([]string{ChForces}))
	src.PackEntities([]string{ChForces}, []int32{0}, r3.Vec{}, buf)

	ds.AccumulateEntities([]string{ChForces}, []int32{1}, buf)
	assert.Equal(t, r3.Vec{X: 3, Y: 3}, ds.Vecs(ChForces)[1])
}

func TestParticleVector_AddParticles(t *testing.T) {
	pv := New("pv", 1)
	pv.AddParticles(
		[]r3.Vec{{X: 1}, {X: 2}},
		[]r3.Vec{{Y: 1}, {Y: 2}},
	)
	pv.AddParticles([]r3.Vec{{X: 3}}, []r3.Vec{{Y: 3}})

	require.Equal(t, 3, pv.Local.Size())
	ids := pv.Local.IDs(ChIDs)
	assert.Equal(t, [2]int32{0, 0}, ids[0])
	assert.Equal(t, [2]int32{2, 0}, ids[2])
	assert.Equal(t, 0, pv.Halo.Size())
}

func TestObjectVector_MeshMismatch(t *testing.T) {
	mesh := NewMesh(make([]r3.Vec, 5), nil)
	_, err := NewObject("rbc", 1, 4, mesh)
	require.ErrorIs(t, err, mkerr.ErrInvariant)
}

func TestObjectVector_COMExtents(t *testing.T) {
	ov, err := NewObject("obj", 1, 2, nil)
	require.NoError(t, err)
	ov.AddParticles(
		[]r3.Vec{{X: 1, Y: 1, Z: 1}, {X: 3, Y: 1, Z: 1}},
		make([]r3.Vec, 2),
	)
	ov.ComputeCOMExtents()

	ces := ov.LocalObjects.COMExtents(ChCOMExtents)
	require.Len(t, ces, 1)
	assert.Equal(t, r3.Vec{X: 2, Y: 1, Z: 1}, ces[0].COM)
	assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, ces[0].Lo)
	assert.Equal(t, r3.Vec{X: 3, Y: 1, Z: 1}, ces[0].Hi)
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	pv := New("fluid", 1.5)
	require.NoError(t, pv.CreateChannelPair("rho", FloatKind, Persistent))
	pv.AddParticles(
		[]r3.Vec{{X: 0.25}, {X: -0.5, Z: 1}},
		[]r3.Vec{{Y: 3}, {Y: -3}},
	)
	copy(pv.Local.Floats("rho"), []float64{1.25, 2.5})
	require.NoError(t, pv.Checkpoint(dir))

	restored := New("fluid", 1.5)
	require.NoError(t, restored.CreateChannelPair("rho", FloatKind, Persistent))
	require.NoError(t, restored.Restart(dir))

	require.Equal(t, 2, restored.Local.Size())
	assert.Equal(t, pv.Positions(), restored.Positions())
	assert.Equal(t, pv.Velocities(), restored.Velocities())
	assert.Equal(t, pv.Local.IDs(ChIDs), restored.Local.IDs(ChIDs))
	assert.Equal(t, []float64{1.25, 2.5}, restored.Local.Floats("rho"))

	// ids keep counting where they left off
	restored.AddParticles([]r3.Vec{{}}, []r3.Vec{{}})
	assert.Equal(t, [2]int32{2, 0}, restored.Local.IDs(ChIDs)[2])
}
