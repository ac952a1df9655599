package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostDevice(t *testing.T) {
	dev := Host()
	assert.Equal(t, "Host", dev.Mode())
	assert.False(t, dev.Accelerated())

	// sync on a host stream is a no-op
	dev.DefaultStream().Sync()
}

func TestBuffer_GrowOnly(t *testing.T) {
	dev := Host()
	b := dev.NewBuffer()

	b.Resize(8)
	copy(b.Bytes(), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	b.Resize(4)
	assert.Equal(t, 4, b.Len())
	b.Resize(8)
	// capacity was retained across the shrink
	assert.Equal(t, byte(8), b.Bytes()[7])

	b.Resize(16)
	assert.Equal(t, 16, b.Len())
	// the prefix survives growth
	assert.Equal(t, byte(1), b.Bytes()[0])

	b.Upload()
	b.Download()
	b.Free()
}
