package particles

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Wire layout: one entity record is the concatenation of the named
// channels' elements in list order, little endian. Coordinate-bearing
// payloads (the positions channel, rigid motion anchors, COM/extent
// boxes) are shifted into the receiver's frame at pack time.

// EntityBytes returns the packed record size for the named channels.
func (ds *DataStore) EntityBytes(names []string) int {
	total := 0
	for _, name := range names {
		ch, ok := ds.channels[name]
		if !ok {
			panic("pack: channel " + name + " not registered")
		}
		total += ch.Kind.elemBytes()
	}
	return total
}

func shiftable(ch *Channel) bool {
	return (ch.Kind == VecKind && (ch.Name == ChPositions || ch.Name == ChOldPositions)) ||
		ch.Kind == MotionKind || ch.Kind == COMExtentKind
}

func (c *Channel) putElemShifted(buf []byte, i int, shift r3.Vec) {
	switch c.Kind {
	case VecKind:
		putVec(buf, r3.Add(c.vecs[i], shift))
	case MotionKind:
		m := c.motions[i]
		m.R = r3.Add(m.R, shift)
		m.put(buf)
	case COMExtentKind:
		ce := c.comExtents[i]
		putVec(buf, r3.Add(ce.COM, shift))
		putVec(buf[24:], r3.Add(ce.Lo, shift))
		putVec(buf[48:], r3.Add(ce.Hi, shift))
	default:
		c.putElem(buf, i)
	}
}

// PackEntities encodes the elements idx of the named channels into out,
// applying shift to coordinate-bearing payloads. out must hold
// len(idx)*EntityBytes(names) bytes.
func (ds *DataStore) PackEntities(names []string, idx []int32, shift r3.Vec, out []byte) {
	at := 0
	for _, i := range idx {
		for _, name := range names {
			ch := ds.channels[name]
			n := ch.Kind.elemBytes()
			if shiftable(ch) {
				ch.putElemShifted(out[at:], int(i), shift)
			} else {
				ch.putElem(out[at:], int(i))
			}
			at += n
		}
	}
}

// UnpackEntities decodes count records from buf into elements
// [at, at+count) of the named channels. The store must already be sized.
func (ds *DataStore) UnpackEntities(names []string, at, count int, buf []byte) {
	pos := 0
	for e := 0; e < count; e++ {
		for _, name := range names {
			ch := ds.channels[name]
			ch.getElem(buf[pos:], at+e)
			pos += ch.Kind.elemBytes()
		}
	}
}

// AccumulateEntities decodes records from buf and adds them onto the
// elements idx of the named channels. Used by reverse exchanges; only
// Float and Vec channels can be targets.
func (ds *DataStore) AccumulateEntities(names []string, idx []int32, buf []byte) {
	scratch := &DataStore{channels: make(map[string]*Channel)}
	scratch.n = 1
	for _, name := range names {
		ch := ds.channels[name]
		scratch.Create(name, ch.Kind, Transient)
	}
	pos := 0
	for _, i := range idx {
		for _, name := range names {
			src := scratch.channels[name]
			src.getElem(buf[pos:], 0)
			ds.channels[name].addElem(int(i), src, 0)
			pos += src.Kind.elemBytes()
		}
	}
}

// Filter keeps only the elements listed in keep (ascending), compacting
// every channel in place.
func (ds *DataStore) Filter(keep []int32) {
	for _, name := range ds.order {
		ch := ds.channels[name]
		for i, k := range keep {
			if int(k) != i {
				ch.copyElem(i, ch, int(k))
			}
		}
	}
	ds.Resize(len(keep))
}
