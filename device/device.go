// Package device wraps the OCCA accelerator layer behind the small surface
// the orchestration core needs: one device, one in-order work queue (the
// default stream), and grow-only staging buffers. When no OCCA backend can
// be created the package degrades to host-only operation; all
// orchestration-visible semantics are identical.
package device

import (
	"log/slog"

	"github.com/notargets/gocca"
)

// Device is the per-rank accelerator handle.
type Device struct {
	occa *gocca.OCCADevice
	mode string
}

// Auto creates a device, preferring accelerator backends and falling back
// to host-only operation when none is available.
func Auto() *Device {
	backends := []string{
		`{"mode": "CUDA", "device_id": 0}`,
		`{"mode": "OpenMP"}`,
		`{"mode": "Serial"}`,
	}
	for _, props := range backends {
		dev, err := gocca.NewDevice(props)
		if err == nil {
			slog.Info("created device", "component", "device", "mode", dev.Mode())
			return &Device{occa: dev, mode: dev.Mode()}
		}
	}
	slog.Info("no OCCA backend available, running host-only", "component", "device")
	return &Device{mode: "Host"}
}

// Host returns a host-only device. Used by tests and single-process tools.
func Host() *Device {
	return &Device{mode: "Host"}
}

func (d *Device) Mode() string { return d.mode }

// Accelerated reports whether an OCCA backend is attached.
func (d *Device) Accelerated() bool { return d.occa != nil }

// Free releases the underlying OCCA device.
func (d *Device) Free() {
	if d.occa != nil {
		d.occa.Free()
		d.occa = nil
	}
}

// Stream is the default in-order work queue of a device. The scheduler
// posts every task to exactly one stream; a task may fan out internally
// but must be well-formed on the stream by the time it returns.
type Stream struct {
	dev *Device
}

func (d *Device) DefaultStream() *Stream { return &Stream{dev: d} }

func (s *Stream) Device() *Device { return s.dev }

// Sync blocks until all work posted to the stream has completed.
func (s *Stream) Sync() {
	if s.dev != nil && s.dev.occa != nil {
		s.dev.occa.Finish()
	}
}
