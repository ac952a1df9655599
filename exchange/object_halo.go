package exchange

import (
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/particles"
)

// ObjectHaloExchanger ships whole objects whose bounding box comes within
// rc of a subdomain face. One object record is the object's particles
// followed by its per-object channels; objects are never split across
// fragments. The fragment assignment (send index lists and receive
// counts) stays published on the helpers for the step, so the extra and
// reverse exchangers can reuse it.
type ObjectHaloExchanger struct {
	dom domain.DomainInfo

	ovs       []*particles.ObjectVector
	rcs       []float64
	helpers   []*Helper
	partChans [][]string
	objChans  [][]string
}

func NewObjectHaloExchanger(dom domain.DomainInfo) *ObjectHaloExchanger {
	return &ObjectHaloExchanger{dom: dom}
}

func (e *ObjectHaloExchanger) Attach(ov *particles.ObjectVector, rc float64, dev *device.Device) {
	partNames := ov.Local.PersistentNames()
	objNames := append(ov.LocalObjects.PersistentNames(), particles.ChCOMExtents)
	h := NewHelper(ov.Name(), dev)
	h.SetUnitBytes(ov.ObjSize*ov.Local.EntityBytes(partNames) + ov.LocalObjects.EntityBytes(objNames))
	e.ovs = append(e.ovs, ov)
	e.rcs = append(e.rcs, rc)
	e.helpers = append(e.helpers, h)
	e.partChans = append(e.partChans, partNames)
	e.objChans = append(e.objChans, objNames)
}

func (e *ObjectHaloExchanger) Name() string            { return "object halo" }
func (e *ObjectHaloExchanger) NumEntities() int        { return len(e.ovs) }
func (e *ObjectHaloExchanger) Helper(i int) *Helper    { return e.helpers[i] }
func (e *ObjectHaloExchanger) NeedExchange(i int) bool { return true }

// VectorIndex resolves an attached object vector to its entity index.
func (e *ObjectHaloExchanger) VectorIndex(ov *particles.ObjectVector) int {
	for i, candidate := range e.ovs {
		if candidate == ov {
			return i
		}
	}
	return -1
}

func (e *ObjectHaloExchanger) PrepareSizes(i int, stream *device.Stream) error {
	ov, rc, h := e.ovs[i], e.rcs[i], e.helpers[i]
	h.ResetSend()
	ext := e.dom.LocalSize
	ces := ov.LocalObjects.COMExtents(particles.ChCOMExtents)
	for o := 0; o < ov.NumLocalObjects(); o++ {
		ce := ces[o]
		xs := boxSideOptions(ce.Lo.X, ce.Hi.X, ext.X, rc)
		ys := boxSideOptions(ce.Lo.Y, ce.Hi.Y, ext.Y, rc)
		zs := boxSideOptions(ce.Lo.Z, ce.Hi.Z, ext.Z, rc)
		for _, dx := range xs {
			for _, dy := range ys {
				for _, dz := range zs {
					if dx == 0 && dy == 0 && dz == 0 {
						continue
					}
					f := FragmentIndex(dx, dy, dz)
					h.SendIdx[f] = append(h.SendIdx[f], int32(o))
				}
			}
		}
	}
	h.SizesFromIndices()
	return nil
}

// boxSideOptions is the bounding-box analogue of sideOptions.
func boxSideOptions(lo, hi, ext, rc float64) []int {
	opts := []int{0}
	if lo < -0.5*ext+rc {
		opts = append(opts, -1)
	}
	if hi >= 0.5*ext-rc {
		opts = append(opts, 1)
	}
	return opts
}

func (e *ObjectHaloExchanger) PrepareData(i int, stream *device.Stream) error {
	ov, h := e.ovs[i], e.helpers[i]
	h.ComputeSendOffsets()
	partBytes := ov.ObjSize * ov.Local.EntityBytes(e.partChans[i])
	objBytes := ov.LocalObjects.EntityBytes(e.objChans[i])
	idx := make([]int32, ov.ObjSize)
	for f := 0; f < NumFragments; f++ {
		if len(h.SendIdx[f]) == 0 {
			continue
		}
		shift := FragmentShift(f, e.dom.LocalSize)
		out := h.SendSlice(f)
		at := 0
		for _, o := range h.SendIdx[f] {
			for k := range idx {
				idx[k] = o*int32(ov.ObjSize) + int32(k)
			}
			ov.Local.PackEntities(e.partChans[i], idx, shift, out[at:at+partBytes])
			ov.LocalObjects.PackEntities(e.objChans[i], []int32{o}, shift, out[at+partBytes:at+partBytes+objBytes])
			at += partBytes + objBytes
		}
	}
	h.sendBuf.Upload()
	return nil
}

func (e *ObjectHaloExchanger) CombineAndUpload(i int, stream *device.Stream) error {
	ov, h := e.ovs[i], e.helpers[i]
	h.recvBuf.Download()
	nObj := h.TotalRecv()
	ov.Halo.Resize(nObj * ov.ObjSize)
	ov.HaloObjects.Resize(nObj)
	partBytes := ov.ObjSize * ov.Halo.EntityBytes(e.partChans[i])
	objBytes := ov.HaloObjects.EntityBytes(e.objChans[i])
	for f := 0; f < NumFragments; f++ {
		if h.RecvSizes[f] == 0 {
			continue
		}
		buf := h.RecvSlice(f)
		objAt := h.RecvOffsetEntities(f)
		at := 0
		for o := 0; o < h.RecvSizes[f]; o++ {
			ov.Halo.UnpackEntities(e.partChans[i], (objAt+o)*ov.ObjSize, ov.ObjSize, buf[at:at+partBytes])
			ov.HaloObjects.UnpackEntities(e.objChans[i], objAt+o, 1, buf[at+partBytes:at+partBytes+objBytes])
			at += partBytes + objBytes
		}
	}
	ov.Halo.ClearTransient(stream)
	return nil
}
