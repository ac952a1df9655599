package exchange

import (
	"github.com/mesokit/mesokit/device"
)

// Exchanger is the polymorphic pack/unpack side of one exchange kind.
// Entities are the attached vectors; helpers are indexed the same way.
// The engine drives the three phases and owns the transport in between.
type Exchanger interface {
	Name() string
	NumEntities() int
	Helper(i int) *Helper

	// NeedExchange lets an exchanger skip an attached vector this step.
	NeedExchange(i int) bool

	// PrepareSizes scans the vector and fills the helper's send sizes and
	// index lists.
	PrepareSizes(i int, stream *device.Stream) error

	// PrepareData packs the records into the helper's send buffer.
	PrepareData(i int, stream *device.Stream) error

	// CombineAndUpload unpacks the helper's receive buffer into the
	// vector once the engine has routed all fragments.
	CombineAndUpload(i int, stream *device.Stream) error
}

// Engine routes helper buffers between ranks. Init enqueues size
// computation, packing and sends; Finalize awaits receives and unpacks.
// Between the two the scheduler is free to run unrelated work.
type Engine interface {
	Init(stream *device.Stream) error
	Finalize(stream *device.Stream) error
}
