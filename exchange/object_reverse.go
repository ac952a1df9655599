package exchange

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/particles"
)

// ObjectReverseExchanger sends per-particle and per-object results
// computed on halo objects back to their owners, which accumulate them.
// This is the force reverse-reduction: a halo copy never mutates the
// owner directly. Fragment assignments mirror the preceding
// ObjectHaloExchanger: what arrived as fragment f is returned through
// send fragment f, and the owner accumulates it onto the objects its own
// halo send list named.
type ObjectReverseExchanger struct {
	halo *ObjectHaloExchanger

	ovs       []*particles.ObjectVector
	haloIdx   []int
	helpers   []*Helper
	partChans [][]string
	objChans  [][]string
}

func NewObjectReverseExchanger(halo *ObjectHaloExchanger) *ObjectReverseExchanger {
	return &ObjectReverseExchanger{halo: halo}
}

func (e *ObjectReverseExchanger) Attach(ov *particles.ObjectVector, partChannels, objChannels []string, dev *device.Device) {
	h := NewHelper(ov.Name(), dev)
	h.SetUnitBytes(ov.ObjSize*ov.Halo.EntityBytes(partChannels) + ov.HaloObjects.EntityBytes(objChannels))
	e.ovs = append(e.ovs, ov)
	e.haloIdx = append(e.haloIdx, e.halo.VectorIndex(ov))
	e.helpers = append(e.helpers, h)
	e.partChans = append(e.partChans, partChannels)
	e.objChans = append(e.objChans, objChannels)
}

func (e *ObjectReverseExchanger) Name() string         { return "object reverse" }
func (e *ObjectReverseExchanger) NumEntities() int     { return len(e.ovs) }
func (e *ObjectReverseExchanger) Helper(i int) *Helper { return e.helpers[i] }
func (e *ObjectReverseExchanger) NeedExchange(i int) bool {
	return len(e.partChans[i])+len(e.objChans[i]) > 0
}

func (e *ObjectReverseExchanger) PrepareSizes(i int, stream *device.Stream) error {
	h, hh := e.helpers[i], e.halo.Helper(e.haloIdx[i])
	h.ResetSend()
	// send back exactly what was received, fragment for fragment
	for f := 0; f < NumFragments; f++ {
		h.SendSizes[f] = hh.RecvSizes[f]
	}
	return nil
}

func (e *ObjectReverseExchanger) PrepareData(i int, stream *device.Stream) error {
	ov, h := e.ovs[i], e.helpers[i]
	hh := e.halo.Helper(e.haloIdx[i])
	h.ComputeSendOffsets()
	partBytes := ov.ObjSize * ov.Halo.EntityBytes(e.partChans[i])
	objBytes := ov.HaloObjects.EntityBytes(e.objChans[i])
	idx := make([]int32, ov.ObjSize)
	for f := 0; f < NumFragments; f++ {
		if h.SendSizes[f] == 0 {
			continue
		}
		out := h.SendSlice(f)
		objAt := hh.RecvOffsetEntities(f)
		at := 0
		for o := 0; o < h.SendSizes[f]; o++ {
			for k := range idx {
				idx[k] = int32((objAt+o)*ov.ObjSize + k)
			}
			ov.Halo.PackEntities(e.partChans[i], idx, r3.Vec{}, out[at:at+partBytes])
			ov.HaloObjects.PackEntities(e.objChans[i], []int32{int32(objAt + o)}, r3.Vec{}, out[at+partBytes:at+partBytes+objBytes])
			at += partBytes + objBytes
		}
	}
	h.sendBuf.Upload()
	return nil
}

func (e *ObjectReverseExchanger) CombineAndUpload(i int, stream *device.Stream) error {
	ov, h := e.ovs[i], e.helpers[i]
	hh := e.halo.Helper(e.haloIdx[i])
	h.recvBuf.Download()
	partBytes := ov.ObjSize * ov.Local.EntityBytes(e.partChans[i])
	objBytes := ov.LocalObjects.EntityBytes(e.objChans[i])
	idx := make([]int32, ov.ObjSize)
	for f := 0; f < NumFragments; f++ {
		if h.RecvSizes[f] == 0 {
			continue
		}
		owned := hh.SendIdx[f]
		buf := h.RecvSlice(f)
		at := 0
		for o := 0; o < h.RecvSizes[f]; o++ {
			target := owned[o]
			for k := range idx {
				idx[k] = target*int32(ov.ObjSize) + int32(k)
			}
			ov.Local.AccumulateEntities(e.partChans[i], idx, buf[at:at+partBytes])
			ov.LocalObjects.AccumulateEntities(e.objChans[i], []int32{target}, buf[at+partBytes:at+partBytes+objBytes])
			at += partBytes + objBytes
		}
	}
	return nil
}
