package device

import "unsafe"

// Buffer is a grow-only staging buffer: a host byte slice with an optional
// device-resident mirror. Exchange helpers use these for pack/send/recv/
// unpack; capacity never shrinks within a run.
type Buffer struct {
	host []byte
	dev  *deviceMirror
	d    *Device
}

type deviceMirror struct {
	mem interface {
		CopyFrom(src unsafe.Pointer, bytes int64)
		CopyTo(dst unsafe.Pointer, bytes int64)
		Free()
	}
	capacity int64
}

// NewBuffer creates an empty buffer bound to a device.
func (d *Device) NewBuffer() *Buffer {
	return &Buffer{d: d}
}

// Resize sets the buffer length, growing capacity monotonically.
func (b *Buffer) Resize(n int) {
	if n <= cap(b.host) {
		b.host = b.host[:n]
		return
	}
	grown := make([]byte, n)
	copy(grown, b.host)
	b.host = grown
	if b.d != nil && b.d.occa != nil {
		if b.dev != nil {
			b.dev.mem.Free()
		}
		var src unsafe.Pointer
		if n > 0 {
			src = unsafe.Pointer(&b.host[0])
		}
		b.dev = &deviceMirror{mem: b.d.occa.Malloc(int64(n), src, nil), capacity: int64(n)}
	}
}

// Bytes returns the host view of the buffer.
func (b *Buffer) Bytes() []byte { return b.host }

func (b *Buffer) Len() int { return len(b.host) }

// Upload pushes the host contents to the device mirror, if any.
func (b *Buffer) Upload() {
	if b.dev == nil || len(b.host) == 0 {
		return
	}
	b.dev.mem.CopyFrom(unsafe.Pointer(&b.host[0]), int64(len(b.host)))
}

// Download pulls the device mirror into the host slice, if any.
func (b *Buffer) Download() {
	if b.dev == nil || len(b.host) == 0 {
		return
	}
	b.dev.mem.CopyTo(unsafe.Pointer(&b.host[0]), int64(len(b.host)))
}

// Free releases the device mirror. The host slice is left to the GC.
func (b *Buffer) Free() {
	if b.dev != nil {
		b.dev.mem.Free()
		b.dev = nil
	}
}
