// Package belonging partitions particle vectors into "inside" and
// "outside" of object geometries. Splitters run once after registration
// and, optionally, every N steps.
package belonging

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/particles"
)

// Checker decides which particles of a vector lie inside the objects of
// an object vector.
type Checker interface {
	Name() string
	OV() *particles.ObjectVector

	// Inside flags each particle of pv that is inside any local object.
	Inside(pv *particles.ParticleVector, stream *device.Stream) ([]bool, error)
}

// Ellipsoid checks against rigid ellipsoids with the given semi-axes.
type Ellipsoid struct {
	name string
	ov   *particles.ObjectVector
	Axes r3.Vec
}

func NewEllipsoid(name string, ov *particles.ObjectVector, axes r3.Vec) *Ellipsoid {
	return &Ellipsoid{name: name, ov: ov, Axes: axes}
}

func (c *Ellipsoid) Name() string                { return c.name }
func (c *Ellipsoid) OV() *particles.ObjectVector { return c.ov }

func (c *Ellipsoid) Inside(pv *particles.ParticleVector, stream *device.Stream) ([]bool, error) {
	motions := c.ov.LocalObjects.Motions(particles.ChMotions)
	pos := pv.Positions()
	flags := make([]bool, len(pos))
	for o := 0; o < c.ov.NumLocalObjects(); o++ {
		m := &motions[o]
		inv := particles.RigidMotion{Q: quat.Conj(m.Q)}
		for i, p := range pos {
			if flags[i] {
				continue
			}
			lp := inv.Rotate(r3.Sub(p, m.R))
			v := lp.X*lp.X/(c.Axes.X*c.Axes.X) + lp.Y*lp.Y/(c.Axes.Y*c.Axes.Y) + lp.Z*lp.Z/(c.Axes.Z*c.Axes.Z)
			if v < 1 {
				flags[i] = true
			}
		}
	}
	return flags, nil
}

// Split moves src's particles into inside and outside vectors according
// to the checker. A nil destination drops that class; src may be reused
// as one of the destinations, in which case its surviving particles stay
// put.
func Split(c Checker, src, inside, outside *particles.ParticleVector, stream *device.Stream) error {
	flags, err := c.Inside(src, stream)
	if err != nil {
		return err
	}
	pos := src.Positions()
	vel := src.Velocities()

	var inPos, inVel, outPos, outVel []r3.Vec
	keep := make([]int32, 0, len(flags))
	for i, in := range flags {
		switch {
		case in && inside == src, !in && outside == src:
			keep = append(keep, int32(i))
		case in && inside != nil:
			inPos = append(inPos, pos[i])
			inVel = append(inVel, vel[i])
		case !in && outside != nil:
			outPos = append(outPos, pos[i])
			outVel = append(outVel, vel[i])
		}
	}
	src.Local.Filter(keep)
	src.BumpMotionStamp()
	if inside != nil && inside != src {
		inside.AddParticles(inPos, inVel)
	}
	if outside != nil && outside != src {
		outside.AddParticles(outPos, outVel)
	}
	return nil
}
