package particles

import (
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// RigidMotion is the per-object state of a rigid body: position,
// orientation, velocities and the force/torque accumulated this step.
type RigidMotion struct {
	R      r3.Vec
	Q      quat.Number
	V      r3.Vec
	Omega  r3.Vec
	Force  r3.Vec
	Torque r3.Vec
}

// COMExtent is the centre of mass and axis-aligned bounding box of one
// object, in subdomain-centered coordinates.
type COMExtent struct {
	COM r3.Vec
	Lo  r3.Vec
	Hi  r3.Vec
}

func (m *RigidMotion) put(buf []byte) {
	putVec(buf, m.R)
	binary.LittleEndian.PutUint64(buf[24:], math.Float64bits(m.Q.Real))
	binary.LittleEndian.PutUint64(buf[32:], math.Float64bits(m.Q.Imag))
	binary.LittleEndian.PutUint64(buf[40:], math.Float64bits(m.Q.Jmag))
	binary.LittleEndian.PutUint64(buf[48:], math.Float64bits(m.Q.Kmag))
	putVec(buf[56:], m.V)
	putVec(buf[80:], m.Omega)
}

func (m *RigidMotion) get(buf []byte) {
	m.R = getVec(buf)
	m.Q = quat.Number{
		Real: math.Float64frombits(binary.LittleEndian.Uint64(buf[24:])),
		Imag: math.Float64frombits(binary.LittleEndian.Uint64(buf[32:])),
		Jmag: math.Float64frombits(binary.LittleEndian.Uint64(buf[40:])),
		Kmag: math.Float64frombits(binary.LittleEndian.Uint64(buf[48:])),
	}
	m.V = getVec(buf[56:])
	m.Omega = getVec(buf[80:])
}

// Rotate applies the orientation quaternion to a body-frame vector.
func (m *RigidMotion) Rotate(v r3.Vec) r3.Vec {
	q := m.Q
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}
