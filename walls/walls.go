// Package walls provides analytic signed-distance walls, the bounce-back
// of particles that penetrate them, and the periodic integrity check.
// The convention is SDF > 0 inside the wall material.
package walls

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/particles"
)

// SDF is an analytic signed distance field; positive inside the wall.
type SDF interface {
	At(p r3.Vec) float64
}

// Plane is the half-space dot(Normal, p) + D > 0.
type Plane struct {
	Normal r3.Vec // unit
	D      float64
}

func (w Plane) At(p r3.Vec) float64 { return r3.Dot(w.Normal, p) + w.D }

// Box keeps particles inside (Lo, Hi): the wall material is everything
// outside the box.
type Box struct {
	Lo, Hi r3.Vec
}

func (w Box) At(p r3.Vec) float64 {
	d := -1e300
	for _, face := range []float64{
		w.Lo.X - p.X, p.X - w.Hi.X,
		w.Lo.Y - p.Y, p.Y - w.Hi.Y,
		w.Lo.Z - p.Z, p.Z - w.Hi.Z,
	} {
		if face > d {
			d = face
		}
	}
	return d
}

// Wall binds an SDF with a name and the vectors bounced off it.
type Wall struct {
	name string
	sdf  SDF

	bounced []*particles.ParticleVector
}

func New(name string, sdf SDF) *Wall {
	return &Wall{name: name, sdf: sdf}
}

func (w *Wall) Name() string { return w.name }

// AttachBounce makes the wall reflect a vector's particles.
func (w *Wall) AttachBounce(pv *particles.ParticleVector) {
	w.bounced = append(w.bounced, pv)
}

// Bounce restores penetrating particles to their pre-step position and
// flips their velocity (bounce-back, no-slip).
func (w *Wall) Bounce(stream *device.Stream) error {
	for _, pv := range w.bounced {
		pos := pv.Positions()
		vel := pv.Velocities()
		old := pv.Local.Vecs(particles.ChOldPositions)
		moved := false
		for i := range pos {
			if w.sdf.At(pos[i]) > 0 {
				pos[i] = old[i]
				vel[i] = r3.Scale(-1, vel[i])
				moved = true
			}
		}
		if moved {
			pv.BumpMotionStamp()
		}
	}
	return nil
}

// CheckIntegrity counts particles left inside the wall after bouncing.
// A non-zero count means the bounce-back failed to contain the vector.
func (w *Wall) CheckIntegrity(stream *device.Stream) error {
	const tolerance = 1e-10
	for _, pv := range w.bounced {
		inside := 0
		for _, p := range pv.Positions() {
			if w.sdf.At(p) > tolerance {
				inside++
			}
		}
		if inside > 0 {
			slog.Error("wall integrity check failed",
				"component", "walls", "wall", w.name, "vector", pv.Name(), "inside", inside)
			return fmt.Errorf("wall %q: %d particles of %q inside the wall", w.name, inside, pv.Name())
		}
	}
	return nil
}
