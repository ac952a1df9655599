package exchange

import (
	"log/slog"

	"github.com/mesokit/mesokit/device"
)

// SingleNodeEngine serves a one-subdomain run: finalize swaps each
// helper's send and receive buffers in place of any network traffic. The
// coordinate shifts applied at pack time realise the periodic wrap.
type SingleNodeEngine struct {
	exch Exchanger
}

func NewSingleNodeEngine(exch Exchanger) *SingleNodeEngine {
	return &SingleNodeEngine{exch: exch}
}

func (e *SingleNodeEngine) Init(stream *device.Stream) error {
	for i := 0; i < e.exch.NumEntities(); i++ {
		if !e.exch.NeedExchange(i) {
			continue
		}
		if err := e.exch.PrepareSizes(i, stream); err != nil {
			return err
		}
		if err := e.exch.PrepareData(i, stream); err != nil {
			return err
		}
	}
	return nil
}

func (e *SingleNodeEngine) Finalize(stream *device.Stream) error {
	for i := 0; i < e.exch.NumEntities(); i++ {
		if !e.exch.NeedExchange(i) {
			continue
		}
		h := e.exch.Helper(i)
		if h.SendSizes[BulkFragment] != 0 {
			// an exchanger must never address the self fragment
			slog.Warn("non-empty bulk send",
				"component", "exchange", "exchanger", e.exch.Name(),
				"vector", h.Name(), "size", h.SendSizes[BulkFragment])
		}
		h.SwapSendRecv()
		if err := e.exch.CombineAndUpload(i, stream); err != nil {
			return err
		}
	}
	return nil
}
