package belonging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/particles"
)

func checkerWithSphere(t *testing.T, center r3.Vec) *Ellipsoid {
	t.Helper()
	ov, err := particles.NewObject("obj", 1, 1, nil)
	require.NoError(t, err)
	require.NoError(t, ov.CreateObjectChannelPair(particles.ChMotions, particles.MotionKind, particles.Persistent))
	ov.AddParticles([]r3.Vec{center}, make([]r3.Vec, 1))
	ov.LocalObjects.Resize(1)
	ov.LocalObjects.Motions(particles.ChMotions)[0] = particles.RigidMotion{R: center, Q: quat.Number{Real: 1}}
	return NewEllipsoid("checker", ov, r3.Vec{X: 1, Y: 1, Z: 1})
}

func TestSplit_InsideOutside(t *testing.T) {
	c := checkerWithSphere(t, r3.Vec{})

	src := particles.New("src", 1)
	src.AddParticles(
		[]r3.Vec{{X: 0.5}, {X: 2}, {Y: -0.3}, {Z: 3}},
		make([]r3.Vec, 4),
	)
	inside := particles.New("in", 1)
	outside := particles.New("out", 1)

	require.NoError(t, Split(c, src, inside, outside, nil))

	assert.Equal(t, 0, src.Local.Size())
	assert.Equal(t, 2, inside.Local.Size())
	assert.Equal(t, 2, outside.Local.Size())
}

func TestSplit_SourceReused(t *testing.T) {
	c := checkerWithSphere(t, r3.Vec{})

	src := particles.New("src", 1)
	src.AddParticles(
		[]r3.Vec{{X: 0.5}, {X: 2}},
		make([]r3.Vec, 2),
	)

	// keep outside particles in place, drop the inside ones
	require.NoError(t, Split(c, src, nil, src, nil))
	require.Equal(t, 1, src.Local.Size())
	assert.Equal(t, r3.Vec{X: 2}, src.Positions()[0])
}
