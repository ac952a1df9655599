package bounce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/particles"
)

func rigidOV(t *testing.T) *particles.ObjectVector {
	t.Helper()
	ov, err := particles.NewObject("obj", 1, 1, nil)
	require.NoError(t, err)
	require.NoError(t, ov.CreateObjectChannelPair(particles.ChMotions, particles.MotionKind, particles.Persistent))
	ov.AddParticles([]r3.Vec{{}}, make([]r3.Vec, 1))
	ov.LocalObjects.Resize(1)
	ov.LocalObjects.Motions(particles.ChMotions)[0] = particles.RigidMotion{Q: quat.Number{Real: 1}}
	return ov
}

func TestFromEllipsoid_ReflectsAndRecordsImpulse(t *testing.T) {
	ov := rigidOV(t)

	pv := particles.New("solvent", 2)
	require.NoError(t, pv.CreateChannelPair(particles.ChOldPositions, particles.VecKind, particles.Transient))
	pv.AddParticles(
		[]r3.Vec{{X: 0.5}, {X: 3}},
		[]r3.Vec{{X: -1}, {X: -1}},
	)
	old := pv.Local.Vecs(particles.ChOldPositions)
	old[0] = r3.Vec{X: 1.5}
	old[1] = r3.Vec{X: 3.1}

	b := NewFromEllipsoid("b", ov, pv, r3.Vec{X: 1, Y: 1, Z: 1})
	require.NoError(t, b.SetPrerequisites())

	require.NoError(t, b.BounceLocal(0.1, nil))

	// the particle that ended inside the unit sphere is restored and its
	// velocity reversed relative to the resting surface
	assert.Equal(t, r3.Vec{X: 1.5}, pv.Positions()[0])
	assert.Equal(t, r3.Vec{X: 1}, pv.Velocities()[0])
	// the far particle is untouched
	assert.Equal(t, r3.Vec{X: 3}, pv.Positions()[1])

	// momentum transfer recorded on the object: dp = 2*m*dv over dt
	bf := ov.LocalObjects.Vecs(particles.ChBounceForces)[0]
	assert.InDelta(t, 2*2*(-1)/0.1, bf.X, 1e-12)
}

func TestFromEllipsoid_HaloVariantUsesHaloObjects(t *testing.T) {
	ov := rigidOV(t)
	// halo copy at x = 2.5
	ov.Halo.Resize(1)
	ov.HaloObjects.Resize(1)
	ov.HaloObjects.Motions(particles.ChMotions)[0] = particles.RigidMotion{
		R: r3.Vec{X: 2.5}, Q: quat.Number{Real: 1},
	}

	pv := particles.New("solvent", 1)
	require.NoError(t, pv.CreateChannelPair(particles.ChOldPositions, particles.VecKind, particles.Transient))
	pv.AddParticles([]r3.Vec{{X: 2.7}}, []r3.Vec{{X: -2}})
	pv.Local.Vecs(particles.ChOldPositions)[0] = r3.Vec{X: 4}

	b := NewFromEllipsoid("b", ov, pv, r3.Vec{X: 1, Y: 1, Z: 1})
	require.NoError(t, b.SetPrerequisites())
	require.NoError(t, b.BounceHalo(0.1, nil))

	assert.Equal(t, r3.Vec{X: 4}, pv.Positions()[0])
	assert.Equal(t, r3.Vec{X: 2}, pv.Velocities()[0])
	// the impulse lands on the halo store, ready for reverse reduction
	assert.NotZero(t, ov.HaloObjects.Vecs(particles.ChBounceForces)[0].X)
	assert.Zero(t, ov.LocalObjects.Vecs(particles.ChBounceForces)[0].X)
}
