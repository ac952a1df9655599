package exchange

import (
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/particles"
)

// ParticleHaloExchanger copies every particle within rc of a subdomain
// face into the fragment(s) it projects onto, shifting coordinates so the
// receiver sees them in its own frame. After finalize the halo partition
// is well-formed.
type ParticleHaloExchanger struct {
	dom domain.DomainInfo

	pvs     []*particles.ParticleVector
	rcs     []float64
	helpers []*Helper
	chans   [][]string
}

func NewParticleHaloExchanger(dom domain.DomainInfo) *ParticleHaloExchanger {
	return &ParticleHaloExchanger{dom: dom}
}

// Attach registers a vector with the halo thickness the interaction
// manager derived for it. extraChannels ride along with the persistent
// ones; the final-stage halo uses this to ship gathered intermediate
// fields to the neighbours.
func (e *ParticleHaloExchanger) Attach(pv *particles.ParticleVector, rc float64, extraChannels []string, dev *device.Device) {
	names := pv.Local.PersistentNames()
	for _, name := range extraChannels {
		dup := false
		for _, have := range names {
			if have == name {
				dup = true
				break
			}
		}
		if !dup {
			names = append(names, name)
		}
	}
	h := NewHelper(pv.Name(), dev)
	h.SetUnitBytes(pv.Local.EntityBytes(names))
	e.pvs = append(e.pvs, pv)
	e.rcs = append(e.rcs, rc)
	e.helpers = append(e.helpers, h)
	e.chans = append(e.chans, names)
}

func (e *ParticleHaloExchanger) Name() string            { return "particle halo" }
func (e *ParticleHaloExchanger) NumEntities() int        { return len(e.pvs) }
func (e *ParticleHaloExchanger) Helper(i int) *Helper    { return e.helpers[i] }
func (e *ParticleHaloExchanger) NeedExchange(i int) bool { return true }

// sideOptions lists the halo directions a coordinate contributes to along
// one dimension.
func sideOptions(x, ext, rc float64) []int {
	opts := []int{0}
	if x < -0.5*ext+rc {
		opts = append(opts, -1)
	}
	if x >= 0.5*ext-rc {
		opts = append(opts, 1)
	}
	return opts
}

func (e *ParticleHaloExchanger) PrepareSizes(i int, stream *device.Stream) error {
	pv, rc, h := e.pvs[i], e.rcs[i], e.helpers[i]
	h.ResetSend()
	ext := e.dom.LocalSize
	pos := pv.Positions()
	for pi := range pos {
		xs := sideOptions(pos[pi].X, ext.X, rc)
		ys := sideOptions(pos[pi].Y, ext.Y, rc)
		zs := sideOptions(pos[pi].Z, ext.Z, rc)
		for _, dx := range xs {
			for _, dy := range ys {
				for _, dz := range zs {
					if dx == 0 && dy == 0 && dz == 0 {
						continue
					}
					f := FragmentIndex(dx, dy, dz)
					h.SendIdx[f] = append(h.SendIdx[f], int32(pi))
				}
			}
		}
	}
	h.SizesFromIndices()
	return nil
}

func (e *ParticleHaloExchanger) PrepareData(i int, stream *device.Stream) error {
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
	return nil
}

func (e *ParticleHaloExchanger) CombineAndUpload(i int, stream *device.Stream) error {
	pv, h := e.pvs[i], e.helpers[i]
	h.recvBuf.Download()
	pv.Halo.Resize(h.TotalRecv())
	for f := 0; f < NumFragments; f++ {
		if h.RecvSizes[f] == 0 {
			continue
		}
		pv.Halo.UnpackEntities(e.chans[i], h.RecvOffsetEntities(f), h.RecvSizes[f], h.RecvSlice(f))
	}
	pv.Halo.ClearTransient(stream)
	return nil
}
