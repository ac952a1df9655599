package exchange

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/particles"
)

// ObjectExtraExchanger forwards additional per-particle channels
// (intermediate fields produced after the halo was shipped) to the halo
// copies, reusing the fragment assignment the preceding
// ObjectHaloExchanger recorded this step.
type ObjectExtraExchanger struct {
	halo *ObjectHaloExchanger

	ovs     []*particles.ObjectVector
	haloIdx []int
	helpers []*Helper
	chans   [][]string
}

func NewObjectExtraExchanger(halo *ObjectHaloExchanger) *ObjectExtraExchanger {
	return &ObjectExtraExchanger{halo: halo}
}

// Attach registers channels to forward for a vector already attached to
// the halo exchanger.
func (e *ObjectExtraExchanger) Attach(ov *particles.ObjectVector, channels []string, dev *device.Device) {
	h := NewHelper(ov.Name(), dev)
	h.SetUnitBytes(ov.ObjSize * ov.Local.EntityBytes(channels))
	e.ovs = append(e.ovs, ov)
	e.haloIdx = append(e.haloIdx, e.halo.VectorIndex(ov))
	e.helpers = append(e.helpers, h)
	e.chans = append(e.chans, channels)
}

func (e *ObjectExtraExchanger) Name() string            { return "object extra" }
func (e *ObjectExtraExchanger) NumEntities() int        { return len(e.ovs) }
func (e *ObjectExtraExchanger) Helper(i int) *Helper    { return e.helpers[i] }
func (e *ObjectExtraExchanger) NeedExchange(i int) bool { return len(e.chans[i]) > 0 }

func (e *ObjectExtraExchanger) PrepareSizes(i int, stream *device.Stream) error {
	h, hh := e.helpers[i], e.halo.Helper(e.haloIdx[i])
	h.ResetSend()
	for f := 0; f < NumFragments; f++ {
		h.SendIdx[f] = append(h.SendIdx[f], hh.SendIdx[f]...)
	}
	h.SizesFromIndices()
	return nil
}

func (e *ObjectExtraExchanger) PrepareData(i int, stream *device.Stream) error {
	ov, h := e.ovs[i], e.helpers[i]
	h.ComputeSendOffsets()
	recBytes := ov.ObjSize * ov.Local.EntityBytes(e.chans[i])
	idx := make([]int32, ov.ObjSize)
	for f := 0; f < NumFragments; f++ {
		out := h.SendSlice(f)
		at := 0
		for _, o := range h.SendIdx[f] {
			for k := range idx {
				idx[k] = o*int32(ov.ObjSize) + int32(k)
			}
			ov.Local.PackEntities(e.chans[i], idx, r3.Vec{}, out[at:at+recBytes])
			at += recBytes
		}
	}
	h.sendBuf.Upload()
	return nil
}

func (e *ObjectExtraExchanger) CombineAndUpload(i int, stream *device.Stream) error {
	ov, h := e.ovs[i], e.helpers[i]
	hh := e.halo.Helper(e.haloIdx[i])
	h.recvBuf.Download()
	recBytes := ov.ObjSize * ov.Halo.EntityBytes(e.chans[i])
	for f := 0; f < NumFragments; f++ {
		if h.RecvSizes[f] == 0 {
			continue
		}
		buf := h.RecvSlice(f)
		objAt := hh.RecvOffsetEntities(f)
		at := 0
		for o := 0; o < h.RecvSizes[f]; o++ {
			ov.Halo.UnpackEntities(e.chans[i], (objAt+o)*ov.ObjSize, ov.ObjSize, buf[at:at+recBytes])
			at += recBytes
		}
	}
	return nil
}
