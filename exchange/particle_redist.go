package exchange

import (
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/particles"
)

// ParticleRedistributor moves particles whose position has left the local
// subdomain into the owning neighbour fragment. Particles still in the
// bulk are compacted in place; the bulk fragment never carries traffic.
type ParticleRedistributor struct {
	dom domain.DomainInfo

	pvs     []*particles.ParticleVector
	helpers []*Helper
	chans   [][]string
	keep    [][]int32
}

func NewParticleRedistributor(dom domain.DomainInfo) *ParticleRedistributor {
	return &ParticleRedistributor{dom: dom}
}

func (e *ParticleRedistributor) Attach(pv *particles.ParticleVector, dev *device.Device) {
	names := pv.Local.PersistentNames()
	h := NewHelper(pv.Name(), dev)
	h.SetUnitBytes(pv.Local.EntityBytes(names))
	e.pvs = append(e.pvs, pv)
	e.helpers = append(e.helpers, h)
	e.chans = append(e.chans, names)
	e.keep = append(e.keep, nil)
}

func (e *ParticleRedistributor) Name() string            { return "particle redistribute" }
func (e *ParticleRedistributor) NumEntities() int        { return len(e.pvs) }
func (e *ParticleRedistributor) Helper(i int) *Helper    { return e.helpers[i] }
func (e *ParticleRedistributor) NeedExchange(i int) bool { return true }

// departureSide reports -1/0/1 per dimension for a coordinate relative to
// the subdomain.
func departureSide(x, ext float64) int {
	if x < -0.5*ext {
		return -1
	}
	if x >= 0.5*ext {
		return 1
	}
	return 0
}

func (e *ParticleRedistributor) PrepareSizes(i int, stream *device.Stream) error {
	pv, h := e.pvs[i], e.helpers[i]
	h.ResetSend()
	e.keep[i] = e.keep[i][:0]
	ext := e.dom.LocalSize
	pos := pv.Positions()
	for pi := range pos {
		dx := departureSide(pos[pi].X, ext.X)
		dy := departureSide(pos[pi].Y, ext.Y)
		dz := departureSide(pos[pi].Z, ext.Z)
		if dx == 0 && dy == 0 && dz == 0 {
			e.keep[i] = append(e.keep[i], int32(pi))
			continue
		}
		f := FragmentIndex(dx, dy, dz)
		h.SendIdx[f] = append(h.SendIdx[f], int32(pi))
	}
	h.SizesFromIndices()
	return nil
}

func (e *ParticleRedistributor) PrepareData(i int, stream *device.Stream) error {
	pv, h := e.pvs[i], e.helpers[i]
	h.ComputeSendOffsets()
	for f := 0; f < NumFragments; f++ {
		if len(h.SendIdx[f]) == 0 {
			continue
		}
		shift := FragmentShift(f, e.dom.LocalSize)
		pv.Local.PackEntities(e.chans[i], h.SendIdx[f], shift, h.SendSlice(f))
	}
	h.sendBuf.Upload()
	// leavers are packed; compact the residents
	pv.Local.Filter(e.keep[i])
	return nil
}

func (e *ParticleRedistributor) CombineAndUpload(i int, stream *device.Stream) error {
	pv, h := e.pvs[i], e.helpers[i]
	h.recvBuf.Download()
	old := pv.Local.Size()
	pv.Local.Resize(old + h.TotalRecv())
	for f := 0; f < NumFragments; f++ {
		if h.RecvSizes[f] == 0 {
			continue
		}
		pv.Local.UnpackEntities(e.chans[i], old+h.RecvOffsetEntities(f), h.RecvSizes[f], h.RecvSlice(f))
	}
	pv.BumpMotionStamp()
	return nil
}
