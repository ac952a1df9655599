// Package integrators advances particle vectors in time. Integrators are
// the only mutators of particle positions during the compute phase; each
// saves the pre-step positions into the old_positions channel so that
// bouncers can trace crossings.
package integrators

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/particles"
)

// Integrator advances one vector by one step.
type Integrator interface {
	Name() string

	// SetPrerequisites creates the channels the integrator needs.
	SetPrerequisites(pv *particles.ParticleVector) error

	Stage(state *domain.State, pv *particles.ParticleVector, stream *device.Stream) error
}

// VelocityVerlet is the leapfrog-style kick-drift update used for plain
// particle fluids.
type VelocityVerlet struct {
	name string
}

func NewVelocityVerlet(name string) *VelocityVerlet {
	return &VelocityVerlet{name: name}
}

func (vv *VelocityVerlet) Name() string { return vv.name }

func (vv *VelocityVerlet) SetPrerequisites(pv *particles.ParticleVector) error {
	return pv.CreateChannelPair(particles.ChOldPositions, particles.VecKind, particles.Transient)
}

func (vv *VelocityVerlet) Stage(state *domain.State, pv *particles.ParticleVector, stream *device.Stream) error {
	dt := state.Dt
	invMass := 1 / pv.Mass
	pos := pv.Positions()
	vel := pv.Velocities()
	frc := pv.Forces()
	old := pv.Local.Vecs(particles.ChOldPositions)
	for i := range pos {
		old[i] = pos[i]
		vel[i] = r3.Add(vel[i], r3.Scale(dt*invMass, frc[i]))
		pos[i] = r3.Add(pos[i], r3.Scale(dt, vel[i]))
	}
	pv.BumpMotionStamp()
	return nil
}

// Translate moves a vector with a fixed velocity, ignoring forces. Used
// for driven walls and frozen layers.
type Translate struct {
	name string
	Vel  r3.Vec
}

func NewTranslate(name string, vel r3.Vec) *Translate {
	return &Translate{name: name, Vel: vel}
}

func (t *Translate) Name() string { return t.name }

func (t *Translate) SetPrerequisites(pv *particles.ParticleVector) error {
	return pv.CreateChannelPair(particles.ChOldPositions, particles.VecKind, particles.Transient)
}

func (t *Translate) Stage(state *domain.State, pv *particles.ParticleVector, stream *device.Stream) error {
	dt := state.Dt
	pos := pv.Positions()
	vel := pv.Velocities()
	old := pv.Local.Vecs(particles.ChOldPositions)
	for i := range pos {
		old[i] = pos[i]
		vel[i] = t.Vel
		pos[i] = r3.Add(pos[i], r3.Scale(dt, t.Vel))
	}
	pv.BumpMotionStamp()
	return nil
}
