package exchange

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/device"
)

// Helper owns the send and receive staging of one (vector, kind) pair:
// per-fragment entity counts, prefix-sum byte offsets and grow-only
// buffers (device-mirrored when an accelerator is present).
type Helper struct {
	name      string // owning vector, for diagnostics
	unitBytes int    // packed record size of one entity

	SendSizes [NumFragments]int
	RecvSizes [NumFragments]int

	sendOffsets [NumFragments + 1]int // in bytes
	recvOffsets [NumFragments + 1]int

	sendBuf *device.Buffer
	recvBuf *device.Buffer

	// per-fragment entity index lists produced by the size pass and
	// consumed by the pack pass
	SendIdx [NumFragments][]int32
}

func NewHelper(name string, dev *device.Device) *Helper {
	return &Helper{
		name:    name,
		sendBuf: dev.NewBuffer(),
		recvBuf: dev.NewBuffer(),
	}
}

func (h *Helper) Name() string { return h.name }

// SetUnitBytes fixes the packed record size for this run.
func (h *Helper) SetUnitBytes(n int) { h.unitBytes = n }

func (h *Helper) UnitBytes() int { return h.unitBytes }

// ResetSend clears the index lists and counts for a new step.
func (h *Helper) ResetSend() {
	for f := range h.SendIdx {
		h.SendIdx[f] = h.SendIdx[f][:0]
		h.SendSizes[f] = 0
	}
}

// SizesFromIndices publishes SendSizes from the index lists.
func (h *Helper) SizesFromIndices() {
	for f := range h.SendIdx {
		h.SendSizes[f] = len(h.SendIdx[f])
	}
}

// ComputeSendOffsets prefix-sums the send sizes and resizes the send
// buffer to the total.
func (h *Helper) ComputeSendOffsets() {
	h.sendOffsets[0] = 0
	for f := 0; f < NumFragments; f++ {
		h.sendOffsets[f+1] = h.sendOffsets[f] + h.SendSizes[f]*h.unitBytes
	}
	h.sendBuf.Resize(h.sendOffsets[NumFragments])
}

// ComputeRecvOffsets prefix-sums the receive sizes and resizes the
// receive buffer.
func (h *Helper) ComputeRecvOffsets() {
	h.recvOffsets[0] = 0
	for f := 0; f < NumFragments; f++ {
		h.recvOffsets[f+1] = h.recvOffsets[f] + h.RecvSizes[f]*h.unitBytes
	}
	h.recvBuf.Resize(h.recvOffsets[NumFragments])
}

// SendSlice is fragment f's window of the send buffer.
func (h *Helper) SendSlice(f int) []byte {
	return h.sendBuf.Bytes()[h.sendOffsets[f]:h.sendOffsets[f+1]]
}

// RecvSlice is fragment f's window of the receive buffer.
func (h *Helper) RecvSlice(f int) []byte {
	return h.recvBuf.Bytes()[h.recvOffsets[f]:h.recvOffsets[f+1]]
}

// RecvOffsetEntities is the entity offset at which fragment f's received
// payload begins.
func (h *Helper) RecvOffsetEntities(f int) int {
	if h.unitBytes == 0 {
		return 0
	}
	return h.recvOffsets[f] / h.unitBytes
}

// TotalRecv is the number of entities received this step.
func (h *Helper) TotalRecv() int {
	total := 0
	for f := 0; f < NumFragments; f++ {
		total += h.RecvSizes[f]
	}
	return total
}

// SwapSendRecv implements the single-node data path: what was packed for
// a fragment arrives as the inverse fragment of the same rank.
func (h *Helper) SwapSendRecv() {
	for f := 0; f < NumFragments; f++ {
		h.RecvSizes[InverseFragment(f)] = h.SendSizes[f]
	}
	h.ComputeRecvOffsets()
	for f := 0; f < NumFragments; f++ {
		copy(h.RecvSlice(InverseFragment(f)), h.SendSlice(f))
	}
}

// FragmentShift is the coordinate shift that moves a payload sent in
// direction (dx,dy,dz) into the receiver's subdomain-centered frame.
func FragmentShift(f int, localSize r3.Vec) r3.Vec {
	dx, dy, dz := FragmentDirection(f)
	return r3.Vec{
		X: -float64(dx) * localSize.X,
		Y: -float64(dy) * localSize.Y,
		Z: -float64(dz) * localSize.Z,
	}
}
