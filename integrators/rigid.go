package integrators

import (
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/mkerr"
	"github.com/mesokit/mesokit/particles"
)

// ChTemplate is the body-frame particle template of a rigid object
// vector: positions relative to the object frame, identical layout for
// every object.
const ChTemplate = "template_positions"

// Rigid integrates rigid object vectors: particle forces are reduced to
// per-object force and torque, the motion is advanced (quaternion
// orientation included) and particle positions are re-projected from the
// body-frame template.
type Rigid struct {
	name    string
	Inertia r3.Vec // principal moments
}

func NewRigid(name string, inertia r3.Vec) *Rigid {
	return &Rigid{name: name, Inertia: inertia}
}

func (rg *Rigid) Name() string { return rg.name }

func (rg *Rigid) SetPrerequisites(pv *particles.ParticleVector) error {
	return pv.CreateChannelPair(particles.ChOldPositions, particles.VecKind, particles.Transient)
}

// SetObjectPrerequisites registers the per-object motion channel; the
// driver calls this when the integrator is bound to an object vector.
func (rg *Rigid) SetObjectPrerequisites(ov *particles.ObjectVector) error {
	if err := ov.CreateObjectChannelPair(particles.ChMotions, particles.MotionKind, particles.Persistent); err != nil {
		return err
	}
	return ov.CreateChannelPair(ChTemplate, particles.VecKind, particles.Persistent)
}

func (rg *Rigid) Stage(state *domain.State, pv *particles.ParticleVector, stream *device.Stream) error {
	return fmt.Errorf("%w: rigid integrator %q bound to non-object vector %q",
		mkerr.ErrConfiguration, rg.name, pv.Name())
}

// StageObjects advances every local object and its particles.
func (rg *Rigid) StageObjects(state *domain.State, ov *particles.ObjectVector, stream *device.Stream) error {
	dt := state.Dt
	objMass := pvObjectMass(ov)
	motions := ov.LocalObjects.Motions(particles.ChMotions)
	pos := ov.Positions()
	vel := ov.Velocities()
	frc := ov.Forces()
	old := ov.Local.Vecs(particles.ChOldPositions)
	tmpl := ov.Local.Vecs(ChTemplate)

	var bounceF []r3.Vec
	if ov.LocalObjects.Exists(particles.ChBounceForces) {
		bounceF = ov.LocalObjects.Vecs(particles.ChBounceForces)
	}

	for o := 0; o < ov.NumLocalObjects(); o++ {
		m := &motions[o]
		m.Force = r3.Vec{}
		m.Torque = r3.Vec{}
		for i := o * ov.ObjSize; i < (o+1)*ov.ObjSize; i++ {
			m.Force = r3.Add(m.Force, frc[i])
			m.Torque = r3.Add(m.Torque, r3.Cross(r3.Sub(pos[i], m.R), frc[i]))
		}
		if bounceF != nil {
			// impulses collected by the bouncers during the previous step
			m.Force = r3.Add(m.Force, bounceF[o])
		}

		m.V = r3.Add(m.V, r3.Scale(dt/objMass, m.Force))
		m.R = r3.Add(m.R, r3.Scale(dt, m.V))

		// torque to the body frame, Euler update of omega, back to lab
		invQ := quat.Conj(m.Q)
		tb := rotate(invQ, m.Torque)
		ob := rotate(invQ, m.Omega)
		ob = r3.Add(ob, r3.Scale(dt, r3.Vec{
			X: tb.X / rg.Inertia.X,
			Y: tb.Y / rg.Inertia.Y,
			Z: tb.Z / rg.Inertia.Z,
		}))
		m.Omega = rotate(m.Q, ob)

		// dq/dt = 0.5 * omega_quat * q
		oq := quat.Number{Imag: m.Omega.X, Jmag: m.Omega.Y, Kmag: m.Omega.Z}
		dq := quat.Scale(0.5*dt, quat.Mul(oq, m.Q))
		m.Q = quat.Add(m.Q, dq)
		m.Q = quat.Scale(1/quat.Abs(m.Q), m.Q)

		for i := o * ov.ObjSize; i < (o+1)*ov.ObjSize; i++ {
			old[i] = pos[i]
			rel := rotate(m.Q, tmpl[i])
			pos[i] = r3.Add(m.R, rel)
			vel[i] = r3.Add(m.V, r3.Cross(m.Omega, rel))
		}
	}
	ov.BumpMotionStamp()
	return nil
}

func pvObjectMass(ov *particles.ObjectVector) float64 {
	return ov.Mass * float64(ov.ObjSize)
}

func rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}
