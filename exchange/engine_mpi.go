package exchange

import (
	"encoding/binary"
	"fmt"

	"github.com/mesokit/mesokit/comm"
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/mkerr"
)

// MPIEngine routes helper fragments over a Cartesian communicator with
// non-blocking point-to-point messages. Each fragment produces a fixed
// 4-byte size message followed, when non-empty, by the data payload.
// Size receives for all 26 neighbour fragments are posted up-front in
// Init; data receives are posted in Finalize once the sizes are known.
// The self fragment (slot 26) is excluded from posting entirely.
//
// The gpuAware flag is recorded but does not change the transport:
// messages are always sent from and received into the helpers' host
// slices, and the exchangers' own upload/download copies run either way.
type MPIEngine struct {
	exch     Exchanger
	comm     comm.Comm
	kindTag  int
	gpuAware bool

	pending []enginePending
}

type enginePending struct {
	entity int

	sizeRecvBufs [NumFragments][4]byte
	sizeRecvs    [NumFragments]comm.Request
	sizeSends    []comm.Request
	dataSends    []comm.Request
}

// NewMPIEngine wraps an exchanger. kindTag must be unique per engine on a
// communicator so that concurrent exchanges of different kinds never
// cross-match.
func NewMPIEngine(exch Exchanger, c comm.Comm, kindTag int, gpuAware bool) *MPIEngine {
	return &MPIEngine{exch: exch, comm: c, kindTag: kindTag, gpuAware: gpuAware}
}

// tag encodes (kind, entity, fragment-of-sender, size/data) uniquely.
func (e *MPIEngine) tag(entity, senderFragment int, data bool) int {
	t := ((e.kindTag*64+entity)*NumFragments + senderFragment) * 2
	if data {
		t++
	}
	return t
}

func (e *MPIEngine) neighbour(f int) int {
	dx, dy, dz := FragmentDirection(f)
	c := e.comm.Coords()
	return e.comm.RankAt([3]int{c[0] + dx, c[1] + dy, c[2] + dz})
}

func (e *MPIEngine) Init(stream *device.Stream) error {
	e.pending = e.pending[:0]
	for i := 0; i < e.exch.NumEntities(); i++ {
		if !e.exch.NeedExchange(i) {
			continue
		}
		if err := e.exch.PrepareSizes(i, stream); err != nil {
			return err
		}
		h := e.exch.Helper(i)
		p := enginePending{entity: i}

		// receives first: a message sent into fragment f arrives tagged
		// with the sender's fragment, which from here is the inverse of
		// the direction we listen on
		for f := 0; f < NumFragments-1; f++ {
			req, err := e.comm.Irecv(e.neighbour(f), e.tag(i, InverseFragment(f), false), p.sizeRecvBufs[f][:])
			if err != nil {
				return fmt.Errorf("%w: posting size receive: %v", mkerr.ErrExchange, err)
			}
			p.sizeRecvs[f] = req
		}

		var sizeBufs [NumFragments][4]byte
		for f := 0; f < NumFragments-1; f++ {
			binary.LittleEndian.PutUint32(sizeBufs[f][:], uint32(h.SendSizes[f]))
			req, err := e.comm.Isend(e.neighbour(f), e.tag(i, f, false), sizeBufs[f][:])
			if err != nil {
				return fmt.Errorf("%w: sending sizes: %v", mkerr.ErrExchange, err)
			}
			p.sizeSends = append(p.sizeSends, req)
		}

		if err := e.exch.PrepareData(i, stream); err != nil {
			return err
		}
		if h.SendSizes[BulkFragment] != 0 {
			return fmt.Errorf("%w: exchanger %s packed %d entities into the bulk fragment",
				mkerr.ErrInvariant, e.exch.Name(), h.SendSizes[BulkFragment])
		}
		for f := 0; f < NumFragments-1; f++ {
			if h.SendSizes[f] == 0 {
				continue
			}
			req, err := e.comm.Isend(e.neighbour(f), e.tag(i, f, true), h.SendSlice(f))
			if err != nil {
				return fmt.Errorf("%w: sending data: %v", mkerr.ErrExchange, err)
			}
			p.dataSends = append(p.dataSends, req)
		}
		e.pending = append(e.pending, p)
	}
	return nil
}

func (e *MPIEngine) Finalize(stream *device.Stream) error {
	for pi := range e.pending {
		p := &e.pending[pi]
		h := e.exch.Helper(p.entity)

		for f := 0; f < NumFragments-1; f++ {
			if _, err := p.sizeRecvs[f].Wait(); err != nil {
				return fmt.Errorf("%w: size receive: %v", mkerr.ErrExchange, err)
			}
			h.RecvSizes[f] = int(binary.LittleEndian.Uint32(p.sizeRecvBufs[f][:]))
		}
		h.RecvSizes[BulkFragment] = 0
		h.ComputeRecvOffsets()

		var dataRecvs []comm.Request
		for f := 0; f < NumFragments-1; f++ {
			if h.RecvSizes[f] == 0 {
				continue
			}
			req, err := e.comm.Irecv(e.neighbour(f), e.tag(p.entity, InverseFragment(f), true), h.RecvSlice(f))
			if err != nil {
				return fmt.Errorf("%w: posting data receive: %v", mkerr.ErrExchange, err)
			}
			dataRecvs = append(dataRecvs, req)
		}
		for _, req := range dataRecvs {
			if _, err := req.Wait(); err != nil {
				return fmt.Errorf("%w: data receive: %v", mkerr.ErrExchange, err)
			}
		}
		for _, req := range p.sizeSends {
			if _, err := req.Wait(); err != nil {
				return fmt.Errorf("%w: size send: %v", mkerr.ErrExchange, err)
			}
		}
		for _, req := range p.dataSends {
			if _, err := req.Wait(); err != nil {
				return fmt.Errorf("%w: data send: %v", mkerr.ErrExchange, err)
			}
		}

		if err := e.exch.CombineAndUpload(p.entity, stream); err != nil {
			return err
		}
	}
	e.pending = e.pending[:0]
	return nil
}
