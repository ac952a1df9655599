package exchange

import (
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/particles"
)

// ObjectRedistributor moves whole objects whose centre of mass has
// crossed into a neighbour subdomain. An object lands on exactly one
// rank; its particles always travel together.
type ObjectRedistributor struct {
	dom domain.DomainInfo

	ovs       []*particles.ObjectVector
	helpers   []*Helper
	partChans [][]string
	objChans  [][]string
	keepObj   [][]int32
}

func NewObjectRedistributor(dom domain.DomainInfo) *ObjectRedistributor {
	return &ObjectRedistributor{dom: dom}
}

func (e *ObjectRedistributor) Attach(ov *particles.ObjectVector, dev *device.Device) {
	partNames := ov.Local.PersistentNames()
	objNames := ov.LocalObjects.PersistentNames()
	h := NewHelper(ov.Name(), dev)
	h.SetUnitBytes(ov.ObjSize*ov.Local.EntityBytes(partNames) + ov.LocalObjects.EntityBytes(objNames))
	e.ovs = append(e.ovs, ov)
	e.helpers = append(e.helpers, h)
	e.partChans = append(e.partChans, partNames)
	e.objChans = append(e.objChans, objNames)
	e.keepObj = append(e.keepObj, nil)
}

func (e *ObjectRedistributor) Name() string            { return "object redistribute" }
func (e *ObjectRedistributor) NumEntities() int        { return len(e.ovs) }
func (e *ObjectRedistributor) Helper(i int) *Helper    { return e.helpers[i] }
func (e *ObjectRedistributor) NeedExchange(i int) bool { return true }

func (e *ObjectRedistributor) PrepareSizes(i int, stream *device.Stream) error {
	ov, h := e.ovs[i], e.helpers[i]
	h.ResetSend()
	e.keepObj[i] = e.keepObj[i][:0]
	ext := e.dom.LocalSize
	ces := ov.LocalObjects.COMExtents(particles.ChCOMExtents)
	for o := 0; o < ov.NumLocalObjects(); o++ {
		com := ces[o].COM
		dx := departureSide(com.X, ext.X)
		dy := departureSide(com.Y, ext.Y)
		dz := departureSide(com.Z, ext.Z)
		if dx == 0 && dy == 0 && dz == 0 {
			e.keepObj[i] = append(e.keepObj[i], int32(o))
			continue
		}
		f := FragmentIndex(dx, dy, dz)
		h.SendIdx[f] = append(h.SendIdx[f], int32(o))
	}
	h.SizesFromIndices()
	return nil
}

func (e *ObjectRedistributor) PrepareData(i int, stream *device.Stream) error {
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

	// compact the residents, objects and particles alike
	partKeep := make([]int32, 0, len(e.keepObj[i])*ov.ObjSize)
	for _, o := range e.keepObj[i] {
		for k := 0; k < ov.ObjSize; k++ {
			partKeep = append(partKeep, o*int32(ov.ObjSize)+int32(k))
		}
	}
	ov.Local.Filter(partKeep)
	ov.LocalObjects.Filter(e.keepObj[i])
	return nil
}

func (e *ObjectRedistributor) CombineAndUpload(i int, stream *device.Stream) error {
	ov, h := e.ovs[i], e.helpers[i]
	h.recvBuf.Download()
	oldObj := ov.NumLocalObjects()
	nNew := h.TotalRecv()
	ov.Local.Resize((oldObj + nNew) * ov.ObjSize)
	ov.LocalObjects.Resize(oldObj + nNew)
	partBytes := ov.ObjSize * ov.Local.EntityBytes(e.partChans[i])
	objBytes := ov.LocalObjects.EntityBytes(e.objChans[i])
	for f := 0; f < NumFragments; f++ {
		if h.RecvSizes[f] == 0 {
			continue
		}
		buf := h.RecvSlice(f)
		objAt := oldObj + h.RecvOffsetEntities(f)
		at := 0
		for o := 0; o < h.RecvSizes[f]; o++ {
			ov.Local.UnpackEntities(e.partChans[i], (objAt+o)*ov.ObjSize, ov.ObjSize, buf[at:at+partBytes])
			ov.LocalObjects.UnpackEntities(e.objChans[i], objAt+o, 1, buf[at+partBytes:at+partBytes+objBytes])
			at += partBytes + objBytes
		}
	}
	ov.BumpMotionStamp()
	return nil
}
