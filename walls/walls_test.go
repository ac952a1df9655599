package walls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/particles"
)

func TestPlaneSDF(t *testing.T) {
	w := Plane{Normal: r3.Vec{X: 1}, D: -3}
	assert.Greater(t, w.At(r3.Vec{X: 4}), 0.0)
	assert.Less(t, w.At(r3.Vec{X: 2}), 0.0)
	assert.InDelta(t, 0, w.At(r3.Vec{X: 3}), 1e-12)
}

func TestBoxSDF(t *testing.T) {
	w := Box{Lo: r3.Vec{X: -1, Y: -1, Z: -1}, Hi: r3.Vec{X: 1, Y: 1, Z: 1}}
	assert.Less(t, w.At(r3.Vec{}), 0.0)
	assert.Greater(t, w.At(r3.Vec{X: 1.5}), 0.0)
	assert.Greater(t, w.At(r3.Vec{Y: -2}), 0.0)
}

func TestWall_BounceBack(t *testing.T) {
	pv := particles.New("pv", 1)
	require.NoError(t, pv.CreateChannelPair(particles.ChOldPositions, particles.VecKind, particles.Transient))
	pv.AddParticles(
		[]r3.Vec{{X: 3.2}, {X: 1.0}},
		[]r3.Vec{{X: 2}, {X: 2}},
	)
	old := pv.Local.Vecs(particles.ChOldPositions)
	old[0] = r3.Vec{X: 2.8}
	old[1] = r3.Vec{X: 0.8}

	w := New("wall", Plane{Normal: r3.Vec{X: 1}, D: -3})
	w.AttachBounce(pv)
	require.NoError(t, w.Bounce(nil))

	// the penetrating particle is restored and reversed
	assert.Equal(t, r3.Vec{X: 2.8}, pv.Positions()[0])
	assert.Equal(t, r3.Vec{X: -2}, pv.Velocities()[0])
	// the interior one is untouched
	assert.Equal(t, r3.Vec{X: 1.0}, pv.Positions()[1])
	assert.Equal(t, r3.Vec{X: 2}, pv.Velocities()[1])

	require.NoError(t, w.CheckIntegrity(nil))
}

func TestWall_IntegrityFailure(t *testing.T) {
	pv := particles.New("pv", 1)
	require.NoError(t, pv.CreateChannelPair(particles.ChOldPositions, particles.VecKind, particles.Transient))
	pv.AddParticles([]r3.Vec{{X: 5}}, []r3.Vec{{}})

	w := New("wall", Plane{Normal: r3.Vec{X: 1}, D: -3})
	w.AttachBounce(pv)
	err := w.CheckIntegrity(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wall")
}
