package sim

import (
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/particles"
)

// InitialConditions populates a freshly registered vector. On a restart
// run the saved state takes precedence and the conditions are skipped.
type InitialConditions interface {
	Exec(dom domain.DomainInfo, pv *particles.ParticleVector) error
}

// Uniform fills the subdomain with the given number density, velocities
// drawn from a zero-mean uniform distribution of the given thermal
// amplitude. The seed is mixed with the rank-specific subdomain corner so
// ranks produce distinct particles.
type Uniform struct {
	Density float64
	VelAmp  float64
	Seed    int64
}

func (u Uniform) Exec(dom domain.DomainInfo, pv *particles.ParticleVector) error {
	vol := dom.LocalSize.X * dom.LocalSize.Y * dom.LocalSize.Z
	n := int(u.Density * vol)
	rng := rand.New(rand.NewSource(u.Seed ^ int64(dom.GlobalStart.X*73856093) ^
		int64(dom.GlobalStart.Y*19349663) ^ int64(dom.GlobalStart.Z*83492791)))

	pos := make([]r3.Vec, n)
	vel := make([]r3.Vec, n)
	for i := 0; i < n; i++ {
		pos[i] = r3.Vec{
			X: (rng.Float64() - 0.5) * dom.LocalSize.X,
			Y: (rng.Float64() - 0.5) * dom.LocalSize.Y,
			Z: (rng.Float64() - 0.5) * dom.LocalSize.Z,
		}
		vel[i] = r3.Vec{
			X: (rng.Float64()*2 - 1) * u.VelAmp,
			Y: (rng.Float64()*2 - 1) * u.VelAmp,
			Z: (rng.Float64()*2 - 1) * u.VelAmp,
		}
	}
	pv.AddParticles(pos, vel)
	return nil
}

// FromParticles places an explicit particle list, given in global
// coordinates; only the particles falling into this subdomain are kept.
type FromParticles struct {
	Positions  []r3.Vec
	Velocities []r3.Vec
}

func (fp FromParticles) Exec(dom domain.DomainInfo, pv *particles.ParticleVector) error {
	var pos, vel []r3.Vec
	for i := range fp.Positions {
		local := dom.Global2Local(fp.Positions[i])
		if !dom.InSubDomain(local) {
			continue
		}
		pos = append(pos, local)
		var v r3.Vec
		if i < len(fp.Velocities) {
			v = fp.Velocities[i]
		}
		vel = append(vel, v)
	}
	pv.AddParticles(pos, vel)
	return nil
}
