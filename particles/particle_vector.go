package particles

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Reserved channel names present on every particle vector.
const (
	ChPositions    = "positions"
	ChVelocities   = "velocities"
	ChForces       = "forces"
	ChIDs          = "ids"
	ChOldPositions = "old_positions"
)

// ParticleVector is a named species of point particles. Local holds the
// particles resident in this subdomain; Halo holds read-only ghost copies
// from the neighbours, valid only between the most recent halo unpack and
// the next redistribute.
type ParticleVector struct {
	name string
	Mass float64

	Local *DataStore
	Halo  *DataStore

	// motionStamp advances whenever local positions change (integration,
	// redistribution, belonging splits); cell lists compare it against
	// their build stamp to decide whether a rebuild is due.
	motionStamp uint64

	isObject bool
	nextID   int32
}

func New(name string, mass float64) *ParticleVector {
	pv := &ParticleVector{
		name:  name,
		Mass:  mass,
		Local: NewDataStore(),
		Halo:  NewDataStore(),
	}
	for _, ds := range []*DataStore{pv.Local, pv.Halo} {
		ds.Create(ChPositions, VecKind, Persistent)
		ds.Create(ChVelocities, VecKind, Persistent)
		ds.Create(ChForces, VecKind, Transient)
		ds.Create(ChIDs, IDKind, Persistent)
	}
	return pv
}

func (pv *ParticleVector) Name() string { return pv.name }

// IsObject reports whether the vector is an object vector; object halos
// ship whole objects and their forces travel back by reverse exchange.
func (pv *ParticleVector) IsObject() bool { return pv.isObject }

func (pv *ParticleVector) MotionStamp() uint64 { return pv.motionStamp }

// BumpMotionStamp marks the local positions as changed.
func (pv *ParticleVector) BumpMotionStamp() { pv.motionStamp++ }

func (pv *ParticleVector) Positions() []r3.Vec  { return pv.Local.Vecs(ChPositions) }
func (pv *ParticleVector) Velocities() []r3.Vec { return pv.Local.Vecs(ChVelocities) }
func (pv *ParticleVector) Forces() []r3.Vec     { return pv.Local.Vecs(ChForces) }

// AddParticles appends particles with fresh unique ids. Used by initial
// conditions and belonging splitters.
func (pv *ParticleVector) AddParticles(pos, vel []r3.Vec) {
	old := pv.Local.Size()
	pv.Local.Resize(old + len(pos))
	p := pv.Positions()
	v := pv.Velocities()
	ids := pv.Local.IDs(ChIDs)
	for i := range pos {
		p[old+i] = pos[i]
		v[old+i] = vel[i]
		ids[old+i] = [2]int32{pv.nextID, 0}
		pv.nextID++
	}
	pv.BumpMotionStamp()
}

// CreateChannelPair registers a channel on both the local and halo stores.
func (pv *ParticleVector) CreateChannelPair(name string, kind Kind, p Persistence) error {
	if err := pv.Local.Create(name, kind, p); err != nil {
		return err
	}
	return pv.Halo.Create(name, kind, p)
}
