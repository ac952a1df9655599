package pairwise

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/cells"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/particles"
)

func testState(ext float64) *domain.State {
	dom := domain.NewDomainInfo(r3.Vec{X: ext, Y: ext, Z: ext}, [3]int{1, 1, 1}, [3]int{0, 0, 0})
	return domain.NewState(0.01, dom)
}

func TestPairNoise_SymmetricAndCentered(t *testing.T) {
	assert.Equal(t, pairNoise(3, 8, 17), pairNoise(8, 3, 17))
	assert.NotEqual(t, pairNoise(3, 8, 17), pairNoise(3, 8, 18))

	// zero mean, unit variance within sampling tolerance
	var sum, sum2 float64
	const n = 20000
	for i := 0; i < n; i++ {
		v := pairNoise(int32(i), int32(i+1), 0)
		sum += v
		sum2 += v * v
	}
	assert.InDelta(t, 0, sum/n, 0.05)
	assert.InDelta(t, 1, sum2/n, 0.05)
}

func TestDPD_PairwiseMomentumConservation(t *testing.T) {
	state := testState(8)
	pv := particles.New("pv", 1)
	pv.AddParticles(
		[]r3.Vec{{X: 0.2}, {X: -0.3, Y: 0.1}, {X: 0.1, Y: -0.4, Z: 0.2}},
		[]r3.Vec{{X: 1}, {Y: -1}, {Z: 0.5}},
	)
	cl := cells.New(pv, 1.0, state.Domain.LocalSize, true)
	cl.Build(nil)

	dpd := NewDPD("dpd", 1.0, 10, 10, 1.0, 1.0)
	require.NoError(t, dpd.SetPrerequisites(pv, pv))
	require.NoError(t, dpd.Local(state, pv, pv, cl, cl, nil))

	var net r3.Vec
	for _, f := range pv.Forces() {
		net = r3.Add(net, f)
	}
	assert.InDelta(t, 0, net.X, 1e-12)
	assert.InDelta(t, 0, net.Y, 1e-12)
	assert.InDelta(t, 0, net.Z, 1e-12)

	// at least one pair is within the cutoff, so forces are non-trivial
	nonzero := false
	for _, f := range pv.Forces() {
		if r3.Norm(f) > 0 {
			nonzero = true
		}
	}
	assert.True(t, nonzero)
}

func TestDPD_CutoffRespected(t *testing.T) {
	state := testState(8)
	pv := particles.New("pv", 1)
	pv.AddParticles(
		[]r3.Vec{{X: -1}, {X: 1.5}}, // separation 2.5 > rc
		make([]r3.Vec, 2),
	)
	cl := cells.New(pv, 1.0, state.Domain.LocalSize, true)
	cl.Build(nil)

	dpd := NewDPD("dpd", 1.0, 10, 10, 1.0, 1.0)
	require.NoError(t, dpd.Local(state, pv, pv, cl, cl, nil))
	for _, f := range pv.Forces() {
		assert.Zero(t, r3.Norm(f))
	}
}

func TestDensity_PairSymmetry(t *testing.T) {
	state := testState(8)
	pv := particles.New("pv", 1)
	pv.AddParticles([]r3.Vec{{X: 0.25}, {X: -0.25}}, make([]r3.Vec, 2))
	cl := cells.New(pv, 1.0, state.Domain.LocalSize, true)
	cl.Build(nil)

	den := NewDensity("den", 1.0)
	require.NoError(t, den.SetPrerequisites(pv, pv))
	require.NoError(t, den.Local(state, pv, pv, cl, cl, nil))

	rho := pv.Local.Floats(ChDensities)
	require.Len(t, rho, 2)
	assert.Greater(t, rho[0], 0.0)
	assert.InDelta(t, rho[0], rho[1], 1e-12)

	// self term plus one neighbour at distance 0.5
	want := lucy(0, 1.0) + lucy(0.5, 1.0)
	assert.InDelta(t, want, rho[0], 1e-12)
}

func TestDensityForce_RestoringDirection(t *testing.T) {
	state := testState(8)
	pv := particles.New("pv", 1)
	pv.AddParticles([]r3.Vec{{X: 0.25}, {X: -0.25}}, make([]r3.Vec, 2))
	cl := cells.New(pv, 1.0, state.Domain.LocalSize, true)
	cl.Build(nil)

	den := NewDensity("den", 1.0)
	require.NoError(t, den.SetPrerequisites(pv, pv))
	require.NoError(t, den.Local(state, pv, pv, cl, cl, nil))

	frc := NewDensityForce("denf", 1.0, 5.0, 0.0)
	require.NoError(t, frc.Local(state, pv, pv, cl, cl, nil))

	// densities exceed the zero target, so the pair repels along x
	f := pv.Forces()
	i0 := 0
	if pv.Positions()[0].X < 0 {
		i0 = 1
	}
	assert.Greater(t, f[i0].X, 0.0)
	assert.InDelta(t, -f[i0].X, f[1-i0].X, 1e-12)
}

func TestHaloPairs(t *testing.T) {
	state := testState(8)
	pv := particles.New("pv", 1)
	// local particle near the +x face; its halo mirror sits just outside
	pv.AddParticles([]r3.Vec{{X: 3.9}}, make([]r3.Vec, 1))
	pv.Halo.Resize(1)
	pv.Halo.Vecs(particles.ChPositions)[0] = r3.Vec{X: 4.3}
	pv.Halo.IDs(particles.ChIDs)[0] = [2]int32{99, 0}

	cl := cells.New(pv, 1.0, state.Domain.LocalSize, true)
	cl.Build(nil)

	dpd := NewDPD("dpd", 1.0, 10, 0, 0, 1.0) // conservative only
	require.NoError(t, dpd.Halo(state, pv, pv, cl, cl, nil))

	fLocal := pv.Forces()[0]
	fHalo := pv.Halo.Vecs(particles.ChForces)[0]
	assert.Less(t, fLocal.X, 0.0) // pushed away from the halo particle
	assert.InDelta(t, -fLocal.X, fHalo.X, 1e-12)

	// distance 0.4, conservative amplitude known in closed form
	want := 10 * (1 - 0.4/1.0)
	assert.InDelta(t, want, math.Abs(fLocal.X), 1e-12)
}
