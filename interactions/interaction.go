// Package interactions classifies registered pair interactions into
// intermediate and final stages, routes channel activity to cell lists,
// and owns the invariant that every consumer's input is produced and
// gathered before consumption.
package interactions

import (
	"github.com/mesokit/mesokit/cells"
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/particles"
)

// Stage tells whether an interaction produces intermediate fields
// (density-like, consumed by other interactions on the same step) or
// final outputs (forces, consumed by integrators).
type Stage int

const (
	Intermediate Stage = iota
	Final
)

func (s Stage) String() string {
	if s == Intermediate {
		return "intermediate"
	}
	return "final"
}

// ChannelActivity names a cell-list channel an interaction touches plus
// the predicate deciding whether it is active on a given step. A nil
// predicate means always active; strides ("stress only every k steps")
// are expressed through EveryN.
type ChannelActivity struct {
	Name   string
	Active func(step int64) bool
}

func Always(name string) ChannelActivity {
	return ChannelActivity{Name: name}
}

func EveryN(name string, n int64) ChannelActivity {
	return ChannelActivity{Name: name, Active: func(step int64) bool { return step%n == 0 }}
}

func (ca ChannelActivity) ActiveAt(step int64) bool {
	return ca.Active == nil || ca.Active(step)
}

// Interaction is the black-box kernel contract: the core sees cutoffs and
// channel dependencies, nothing of the numerics.
type Interaction interface {
	Name() string
	RC() float64
	Stage() Stage

	// InputChannels are intermediate fields read from cell lists;
	// OutputChannels are the fields written (forces for a final stage).
	InputChannels() []ChannelActivity
	OutputChannels() []ChannelActivity

	// SetPrerequisites creates the channels the kernel needs on both
	// vectors. Called once at registration.
	SetPrerequisites(pv1, pv2 *particles.ParticleVector) error

	// Local runs the kernel on (pv1.local, pv2.local) through the two
	// cell lists; Halo runs it on (pv1.local, pv2.halo).
	Local(state *domain.State, pv1, pv2 *particles.ParticleVector, cl1, cl2 *cells.CellList, stream *device.Stream) error
	Halo(state *domain.State, pv1, pv2 *particles.ParticleVector, cl1, cl2 *cells.CellList, stream *device.Stream) error
}
