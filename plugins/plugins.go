// Package plugins defines the six per-step observation hooks and the
// pipe to the postprocess side. Within a single hook the execution order
// of different plugins is undefined; plugin authors must not assume
// mutual ordering.
package plugins

import (
	"github.com/mesokit/mesokit/comm"
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
)

// Plugin observes the simulation at up to six points in every step. Use
// Base to implement only a subset.
type Plugin interface {
	Name() string

	// Setup is called once after registration, before the first step.
	Setup(state *domain.State, c comm.Comm) error

	BeforeCellLists(stream *device.Stream) error
	BeforeForces(stream *device.Stream) error
	SerializeAndSend(stream *device.Stream) error
	BeforeIntegration(stream *device.Stream) error
	AfterIntegration(stream *device.Stream) error
	BeforeParticleDistribution(stream *device.Stream) error
}

// Base is the no-op implementation plugins embed.
type Base struct{}

func (Base) Setup(*domain.State, comm.Comm) error            { return nil }
func (Base) BeforeCellLists(*device.Stream) error            { return nil }
func (Base) BeforeForces(*device.Stream) error               { return nil }
func (Base) SerializeAndSend(*device.Stream) error           { return nil }
func (Base) BeforeIntegration(*device.Stream) error          { return nil }
func (Base) AfterIntegration(*device.Stream) error           { return nil }
func (Base) BeforeParticleDistribution(*device.Stream) error { return nil }

// Message is one serialized plugin payload on its way to postprocess.
type Message struct {
	Plugin string
	Step   int64
	// Payload is opaque to the core; a matching postprocess plugin
	// decodes it.
	Payload []byte
}

// Pipe carries messages from the simulation side to the postprocess
// side. Close sends the shutdown sentinel.
type Pipe interface {
	Send(m Message) error
	Close() error
}

// ChannelPipe is the in-process pipe used when the postprocess side runs
// in the same process (or in tests).
type ChannelPipe struct {
	C chan Message
}

func NewChannelPipe(depth int) *ChannelPipe {
	return &ChannelPipe{C: make(chan Message, depth)}
}

func (p *ChannelPipe) Send(m Message) error {
	p.C <- m
	return nil
}

func (p *ChannelPipe) Close() error {
	close(p.C)
	return nil
}

// NullPipe discards everything; used when no postprocess side exists.
type NullPipe struct{}

func (NullPipe) Send(Message) error { return nil }
func (NullPipe) Close() error       { return nil }
