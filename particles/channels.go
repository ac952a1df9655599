// Package particles holds the per-species containers: particle vectors,
// object vectors, and their named typed channels.
package particles

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/mkerr"
)

// Persistence declares whether a channel survives redistribution and
// restart (Persistent) or is cleared each step (Transient).
type Persistence int

const (
	Transient Persistence = iota
	Persistent
)

// Kind is the element type of a channel.
type Kind int

const (
	FloatKind Kind = iota
	VecKind
	IntKind
	IDKind
	MotionKind
	COMExtentKind
)

func (k Kind) String() string {
	switch k {
	case FloatKind:
		return "float"
	case VecKind:
		return "vec3"
	case IntKind:
		return "int"
	case IDKind:
		return "id"
	case MotionKind:
		return "motion"
	case COMExtentKind:
		return "com_extent"
	}
	return "unknown"
}

// elemBytes is the packed wire size of one element of each kind.
func (k Kind) elemBytes() int {
	switch k {
	case FloatKind:
		return 8
	case VecKind:
		return 24
	case IntKind:
		return 4
	case IDKind:
		return 8
	case MotionKind:
		return 13 * 8
	case COMExtentKind:
		return 9 * 8
	}
	panic(fmt.Sprintf("unknown channel kind %d", k))
}

// Channel is one named typed buffer.
type Channel struct {
	Name        string
	Kind        Kind
	Persistence Persistence

	floats     []float64
	vecs       []r3.Vec
	ints       []int32
	ids        [][2]int32
	motions    []RigidMotion
	comExtents []COMExtent
}

func (c *Channel) Len() int {
	switch c.Kind {
	case FloatKind:
		return len(c.floats)
	case VecKind:
		return len(c.vecs)
	case IntKind:
		return len(c.ints)
	case IDKind:
		return len(c.ids)
	case MotionKind:
		return len(c.motions)
	case COMExtentKind:
		return len(c.comExtents)
	}
	return 0
}

func (c *Channel) resize(n int) {
	switch c.Kind {
	case FloatKind:
		c.floats = resizeSlice(c.floats, n)
	case VecKind:
		c.vecs = resizeSlice(c.vecs, n)
	case IntKind:
		c.ints = resizeSlice(c.ints, n)
	case IDKind:
		c.ids = resizeSlice(c.ids, n)
	case MotionKind:
		c.motions = resizeSlice(c.motions, n)
	case COMExtentKind:
		c.comExtents = resizeSlice(c.comExtents, n)
	}
}

// resizeSlice grows capacity monotonically, preserving the prefix.
func resizeSlice[T any](s []T, n int) []T {
	if n <= cap(s) {
		return s[:n]
	}
	grown := make([]T, n, n+n/2)
	copy(grown, s)
	return grown
}

// Clear zeroes every element.
func (c *Channel) Clear() {
	switch c.Kind {
	case FloatKind:
		for i := range c.floats {
			c.floats[i] = 0
		}
	case VecKind:
		for i := range c.vecs {
			c.vecs[i] = r3.Vec{}
		}
	case IntKind:
		for i := range c.ints {
			c.ints[i] = 0
		}
	case IDKind:
		for i := range c.ids {
			c.ids[i] = [2]int32{}
		}
	case MotionKind:
		for i := range c.motions {
			c.motions[i] = RigidMotion{}
		}
	case COMExtentKind:
		for i := range c.comExtents {
			c.comExtents[i] = COMExtent{}
		}
	}
}

// copyElem copies element src[j] into c[i]. Kinds must match.
func (c *Channel) copyElem(i int, src *Channel, j int) {
	switch c.Kind {
	case FloatKind:
		c.floats[i] = src.floats[j]
	case VecKind:
		c.vecs[i] = src.vecs[j]
	case IntKind:
		c.ints[i] = src.ints[j]
	case IDKind:
		c.ids[i] = src.ids[j]
	case MotionKind:
		c.motions[i] = src.motions[j]
	case COMExtentKind:
		c.comExtents[i] = src.comExtents[j]
	}
}

// addElem accumulates src[j] into c[i]. Only Float and Vec channels can be
// accumulated.
func (c *Channel) addElem(i int, src *Channel, j int) {
	switch c.Kind {
	case FloatKind:
		c.floats[i] += src.floats[j]
	case VecKind:
		c.vecs[i] = r3.Add(c.vecs[i], src.vecs[j])
	default:
		panic(fmt.Sprintf("channel %q: cannot accumulate kind %s", c.Name, c.Kind))
	}
}

// Set copies element src[j] into c[i]. Kinds must match.
func (c *Channel) Set(i int, src *Channel, j int) { c.copyElem(i, src, j) }

// Add accumulates src[j] into c[i]. Only Float and Vec channels.
func (c *Channel) Add(i int, src *Channel, j int) { c.addElem(i, src, j) }

// putElem encodes element i into buf (little endian, elemBytes() long).
func (c *Channel) putElem(buf []byte, i int) {
	switch c.Kind {
	case FloatKind:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(c.floats[i]))
	case VecKind:
		putVec(buf, c.vecs[i])
	case IntKind:
		binary.LittleEndian.PutUint32(buf, uint32(c.ints[i]))
	case IDKind:
		binary.LittleEndian.PutUint32(buf, uint32(c.ids[i][0]))
		binary.LittleEndian.PutUint32(buf[4:], uint32(c.ids[i][1]))
	case MotionKind:
		c.motions[i].put(buf)
	case COMExtentKind:
		ce := c.comExtents[i]
		putVec(buf, ce.COM)
		putVec(buf[24:], ce.Lo)
		putVec(buf[48:], ce.Hi)
	}
}

// getElem decodes element i from buf.
func (c *Channel) getElem(buf []byte, i int) {
	switch c.Kind {
	case FloatKind:
		c.floats[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf))
	case VecKind:
		c.vecs[i] = getVec(buf)
	case IntKind:
		c.ints[i] = int32(binary.LittleEndian.Uint32(buf))
	case IDKind:
		c.ids[i][0] = int32(binary.LittleEndian.Uint32(buf))
		c.ids[i][1] = int32(binary.LittleEndian.Uint32(buf[4:]))
	case MotionKind:
		c.motions[i].get(buf)
	case COMExtentKind:
		c.comExtents[i] = COMExtent{COM: getVec(buf), Lo: getVec(buf[24:]), Hi: getVec(buf[48:])}
	}
}

func putVec(buf []byte, v r3.Vec) {
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v.X))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(v.Y))
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(v.Z))
}

func getVec(buf []byte) r3.Vec {
	return r3.Vec{
		X: math.Float64frombits(binary.LittleEndian.Uint64(buf)),
		Y: math.Float64frombits(binary.LittleEndian.Uint64(buf[8:])),
		Z: math.Float64frombits(binary.LittleEndian.Uint64(buf[16:])),
	}
}

// DataStore is a partition of a species: an element count plus named typed
// channels. Channel iteration follows creation order so that packing,
// checkpointing and reordering are deterministic.
type DataStore struct {
	n        int
	channels map[string]*Channel
	order    []string
}

func NewDataStore() *DataStore {
	return &DataStore{channels: make(map[string]*Channel)}
}

func (ds *DataStore) Size() int { return ds.n }

// Resize sets the element count of every channel; capacity is grow-only.
func (ds *DataStore) Resize(n int) {
	ds.n = n
	for _, name := range ds.order {
		ds.channels[name].resize(n)
	}
}

// Create registers a channel. Re-creating with the same kind is a no-op;
// a different kind is a type conflict.
func (ds *DataStore) Create(name string, kind Kind, p Persistence) error {
	if ch, ok := ds.channels[name]; ok {
		if ch.Kind != kind {
			return fmt.Errorf("%w: channel %q exists as %s, requested %s",
				mkerr.ErrChannelType, name, ch.Kind, kind)
		}
		return nil
	}
	ch := &Channel{Name: name, Kind: kind, Persistence: p}
	ch.resize(ds.n)
	ds.channels[name] = ch
	ds.order = append(ds.order, name)
	return nil
}

// Exists reports whether a channel is registered.
func (ds *DataStore) Exists(name string) bool {
	_, ok := ds.channels[name]
	return ok
}

// Channel returns a registered channel.
func (ds *DataStore) Channel(name string) (*Channel, bool) {
	ch, ok := ds.channels[name]
	return ch, ok
}

func (ds *DataStore) mustChannel(name string, kind Kind) *Channel {
	ch, ok := ds.channels[name]
	if !ok {
		panic(fmt.Sprintf("channel %q not registered", name))
	}
	if ch.Kind != kind {
		panic(fmt.Sprintf("channel %q is %s, accessed as %s", name, ch.Kind, kind))
	}
	return ch
}

// Typed accessors. Accessing a missing channel or with the wrong kind is a
// programmer error and panics.

func (ds *DataStore) Floats(name string) []float64 { return ds.mustChannel(name, FloatKind).floats }

func (ds *DataStore) Vecs(name string) []r3.Vec { return ds.mustChannel(name, VecKind).vecs }

func (ds *DataStore) Ints(name string) []int32 { return ds.mustChannel(name, IntKind).ints }

func (ds *DataStore) IDs(name string) [][2]int32 { return ds.mustChannel(name, IDKind).ids }

func (ds *DataStore) Motions(name string) []RigidMotion {
	return ds.mustChannel(name, MotionKind).motions
}

func (ds *DataStore) COMExtents(name string) []COMExtent {
	return ds.mustChannel(name, COMExtentKind).comExtents
}

// Names returns channel names in creation order.
func (ds *DataStore) Names() []string {
	out := make([]string, len(ds.order))
	copy(out, ds.order)
	return out
}

// PersistentNames returns the persistent channel names in creation order.
func (ds *DataStore) PersistentNames() []string {
	var out []string
	for _, name := range ds.order {
		if ds.channels[name].Persistence == Persistent {
			out = append(out, name)
		}
	}
	return out
}

// Permute reorders every channel so that element i of the result is the
// element oldOf[i] of the input. Used by primary cell lists to put the
// store in cell-major order in place.
func (ds *DataStore) Permute(oldOf []int32) {
	for _, name := range ds.order {
		ch := ds.channels[name]
		scratch := &Channel{Name: ch.Name, Kind: ch.Kind, Persistence: ch.Persistence}
		scratch.resize(ds.n)
		for i := 0; i < ds.n; i++ {
			scratch.copyElem(i, ch, int(oldOf[i]))
		}
		*ch = *scratch
	}
}

// ClearChannel zeroes one channel on the stream.
func (ds *DataStore) ClearChannel(name string, stream *device.Stream) {
	if ch, ok := ds.channels[name]; ok {
		ch.Clear()
	}
}

// ClearTransient zeroes every transient channel.
func (ds *DataStore) ClearTransient(stream *device.Stream) {
	for _, name := range ds.order {
		if ch := ds.channels[name]; ch.Persistence == Transient {
			ch.Clear()
		}
	}
}
