// Package bounce reflects solvent particles off object surfaces. The
// halo variant operates on an object vector's halo copies and records the
// momentum transfer in the per-object bounce_forces channel, which the
// reverse exchanger sends back to the owners.
package bounce

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/particles"
)

// Bouncer reflects particles of one vector off the objects of another.
type Bouncer interface {
	Name() string
	OV() *particles.ObjectVector
	PV() *particles.ParticleVector

	SetPrerequisites() error

	// BounceLocal handles local objects, BounceHalo the halo copies.
	BounceLocal(dt float64, stream *device.Stream) error
	BounceHalo(dt float64, stream *device.Stream) error
}

// FromEllipsoid bounces particles off rigid ellipsoids described by the
// per-object motion and the given semi-axes.
type FromEllipsoid struct {
	name string
	ov   *particles.ObjectVector
	pv   *particles.ParticleVector

	Axes r3.Vec
}

func NewFromEllipsoid(name string, ov *particles.ObjectVector, pv *particles.ParticleVector, axes r3.Vec) *FromEllipsoid {
	return &FromEllipsoid{name: name, ov: ov, pv: pv, Axes: axes}
}

func (b *FromEllipsoid) Name() string                  { return b.name }
func (b *FromEllipsoid) OV() *particles.ObjectVector   { return b.ov }
func (b *FromEllipsoid) PV() *particles.ParticleVector { return b.pv }

func (b *FromEllipsoid) SetPrerequisites() error {
	return b.ov.CreateObjectChannelPair(particles.ChBounceForces, particles.VecKind, particles.Transient)
}

// inside evaluates the ellipsoid implicit function in the body frame.
func (b *FromEllipsoid) inside(m *particles.RigidMotion, p r3.Vec) bool {
	inv := particles.RigidMotion{Q: quat.Conj(m.Q)}
	lp := inv.Rotate(r3.Sub(p, m.R))
	v := lp.X*lp.X/(b.Axes.X*b.Axes.X) + lp.Y*lp.Y/(b.Axes.Y*b.Axes.Y) + lp.Z*lp.Z/(b.Axes.Z*b.Axes.Z)
	return v < 1
}

func (b *FromEllipsoid) bounce(objStore *particles.DataStore, nObj int, dt float64) {
	motions := objStore.Motions(particles.ChMotions)
	bf := objStore.Vecs(particles.ChBounceForces)
	pos := b.pv.Positions()
	vel := b.pv.Velocities()
	old := b.pv.Local.Vecs(particles.ChOldPositions)

	for o := 0; o < nObj; o++ {
		m := &motions[o]
		for i := range pos {
			if !b.inside(m, pos[i]) {
				continue
			}
			// restore the pre-step position, reverse the velocity in the
			// object frame and record the momentum transfer
			surfVel := r3.Add(m.V, r3.Cross(m.Omega, r3.Sub(pos[i], m.R)))
			dv := r3.Sub(vel[i], surfVel)
			pos[i] = old[i]
			vel[i] = r3.Sub(surfVel, dv)
			impulse := r3.Scale(2*b.pv.Mass/dt, dv)
			bf[o] = r3.Add(bf[o], impulse)
		}
	}
}

func (b *FromEllipsoid) BounceLocal(dt float64, stream *device.Stream) error {
	b.bounce(b.ov.LocalObjects, b.ov.NumLocalObjects(), dt)
	b.pv.BumpMotionStamp()
	return nil
}

func (b *FromEllipsoid) BounceHalo(dt float64, stream *device.Stream) error {
	b.bounce(b.ov.HaloObjects, b.ov.NumHaloObjects(), dt)
	b.pv.BumpMotionStamp()
	return nil
}
