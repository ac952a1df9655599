package particles

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/mkerr"
)

// Per-object channel names.
const (
	ChCOMExtents   = "com_extents"
	ChMotions      = "motions"
	ChBounceForces = "bounce_forces"
)

// ObjectVector is a particle vector whose particles are grouped in
// fixed-size objects (membranes, rigid bodies). Halo exchange ships whole
// objects; per-object channels live in separate stores.
type ObjectVector struct {
	ParticleVector

	ObjSize int

	LocalObjects *DataStore
	HaloObjects  *DataStore

	mesh *Mesh
}

func NewObject(name string, mass float64, objSize int, mesh *Mesh) (*ObjectVector, error) {
	if mesh != nil && mesh.NumVertices() != objSize {
		return nil, fmt.Errorf("%w: object vector %q: object size %d != mesh vertices %d",
			mkerr.ErrInvariant, name, objSize, mesh.NumVertices())
	}
	ov := &ObjectVector{
		ParticleVector: *New(name, mass),
		ObjSize:        objSize,
		LocalObjects:   NewDataStore(),
		HaloObjects:    NewDataStore(),
		mesh:           mesh,
	}
	ov.isObject = true
	for _, ds := range []*DataStore{ov.LocalObjects, ov.HaloObjects} {
		ds.Create(ChCOMExtents, COMExtentKind, Transient)
	}
	return ov, nil
}

func (ov *ObjectVector) Mesh() *Mesh { return ov.mesh }

// NumLocalObjects returns the local object count. Local particle storage
// always holds whole objects.
func (ov *ObjectVector) NumLocalObjects() int {
	if ov.ObjSize == 0 {
		return 0
	}
	return ov.Local.Size() / ov.ObjSize
}

func (ov *ObjectVector) NumHaloObjects() int {
	if ov.ObjSize == 0 {
		return 0
	}
	return ov.Halo.Size() / ov.ObjSize
}

// CreateObjectChannelPair registers a per-object channel on both the
// local and halo object stores.
func (ov *ObjectVector) CreateObjectChannelPair(name string, kind Kind, p Persistence) error {
	if err := ov.LocalObjects.Create(name, kind, p); err != nil {
		return err
	}
	return ov.HaloObjects.Create(name, kind, p)
}

// ComputeCOMExtents refreshes the per-object centre of mass and bounding
// box from the local particle positions.
func (ov *ObjectVector) ComputeCOMExtents() {
	n := ov.NumLocalObjects()
	ov.LocalObjects.Resize(n)
	ces := ov.LocalObjects.COMExtents(ChCOMExtents)
	pos := ov.Positions()
	for o := 0; o < n; o++ {
		ce := COMExtent{
			Lo: r3.Vec{X: inf, Y: inf, Z: inf},
			Hi: r3.Vec{X: -inf, Y: -inf, Z: -inf},
		}
		for i := o * ov.ObjSize; i < (o+1)*ov.ObjSize; i++ {
			p := pos[i]
			ce.COM = r3.Add(ce.COM, p)
			ce.Lo = vecMin(ce.Lo, p)
			ce.Hi = vecMax(ce.Hi, p)
		}
		ce.COM = r3.Scale(1/float64(ov.ObjSize), ce.COM)
		ces[o] = ce
	}
}

const inf = 1e300

func vecMin(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: min(a.X, b.X), Y: min(a.Y, b.Y), Z: min(a.Z, b.Z)}
}

func vecMax(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: max(a.X, b.X), Y: max(a.Y, b.Y), Z: max(a.Z, b.Z)}
}
