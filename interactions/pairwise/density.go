package pairwise

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/cells"
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/interactions"
	"github.com/mesokit/mesokit/particles"
)

// ChDensities is the intermediate number-density field produced by
// Density and consumed by DensityForce.
const ChDensities = "densities"

// lucy is the normalized Lucy kernel weight at distance r.
func lucy(r, rc float64) float64 {
	q := r / rc
	return 105 / (16 * math.Pi * rc * rc * rc) * (1 + 3*q) * (1 - q) * (1 - q) * (1 - q)
}

// lucyDeriv is d/dr of the Lucy kernel.
func lucyDeriv(r, rc float64) float64 {
	q := r / rc
	return -315 / (4 * math.Pi * rc * rc * rc * rc) * q * (1 - q) * (1 - q)
}

// Density is the intermediate-stage interaction accumulating particle
// number density: the first leg of the SPH-like pressure pipeline.
type Density struct {
	name string
	rc   float64
}

func NewDensity(name string, rc float64) *Density {
	return &Density{name: name, rc: rc}
}

func (d *Density) Name() string              { return d.name }
func (d *Density) RC() float64               { return d.rc }
func (d *Density) Stage() interactions.Stage { return interactions.Intermediate }

func (d *Density) InputChannels() []interactions.ChannelActivity { return nil }

func (d *Density) OutputChannels() []interactions.ChannelActivity {
	return []interactions.ChannelActivity{interactions.Always(ChDensities)}
}

func (d *Density) SetPrerequisites(pv1, pv2 *particles.ParticleVector) error {
	if err := pv1.CreateChannelPair(ChDensities, particles.FloatKind, particles.Transient); err != nil {
		return err
	}
	return pv2.CreateChannelPair(ChDensities, particles.FloatKind, particles.Transient)
}

func (d *Density) Local(state *domain.State, pv1, pv2 *particles.ParticleVector, cl1, cl2 *cells.CellList, stream *device.Stream) error {
	rho1 := cl1.View().Floats(ChDensities)
	rho2 := cl2.View().Floats(ChDensities)
	if cl1 == cl2 {
		// self contribution, added once per particle
		self := lucy(0, d.rc)
		for i := range rho1 {
			rho1[i] += self
		}
	}
	forEachLocalPair(cl1, cl2, d.rc, func(i, j int, dr r3.Vec, dist float64) {
		w := lucy(dist, d.rc)
		rho1[i] += w
		rho2[j] += w
	})
	return nil
}

func (d *Density) Halo(state *domain.State, pv1, pv2 *particles.ParticleVector, cl1, cl2 *cells.CellList, stream *device.Stream) error {
	rho1 := cl1.View().Floats(ChDensities)
	haloRho := pv2.Halo.Floats(ChDensities)
	haloPos := pv2.Halo.Vecs(particles.ChPositions)
	forEachHaloPair(cl1, haloPos, d.rc, func(hi, j int, dr r3.Vec, dist float64) {
		w := lucy(dist, d.rc)
		rho1[j] += w
		haloRho[hi] += w
	})
	return nil
}

// DensityForce is the final-stage leg: a pressure-like pair force read
// from the gathered densities.
type DensityForce struct {
	name      string
	rc        float64
	Stiffness float64
	Rho0      float64
}

func NewDensityForce(name string, rc, stiffness, rho0 float64) *DensityForce {
	return &DensityForce{name: name, rc: rc, Stiffness: stiffness, Rho0: rho0}
}

func (d *DensityForce) Name() string              { return d.name }
func (d *DensityForce) RC() float64               { return d.rc }
func (d *DensityForce) Stage() interactions.Stage { return interactions.Final }

func (d *DensityForce) InputChannels() []interactions.ChannelActivity {
	return []interactions.ChannelActivity{interactions.Always(ChDensities)}
}

func (d *DensityForce) OutputChannels() []interactions.ChannelActivity {
	return []interactions.ChannelActivity{interactions.Always(particles.ChForces)}
}

func (d *DensityForce) SetPrerequisites(pv1, pv2 *particles.ParticleVector) error {
	if !pv1.Local.Exists(ChDensities) || !pv2.Local.Exists(ChDensities) {
		// the producer's SetPrerequisites has not run: registration order
		// guarantees intermediates are registered first
		if err := pv1.CreateChannelPair(ChDensities, particles.FloatKind, particles.Transient); err != nil {
			return err
		}
		return pv2.CreateChannelPair(ChDensities, particles.FloatKind, particles.Transient)
	}
	return nil
}

func (d *DensityForce) pairForce(dr r3.Vec, dist, rhoI, rhoJ float64) r3.Vec {
	p := d.Stiffness * (rhoI + rhoJ - 2*d.Rho0)
	mag := -p * lucyDeriv(dist, d.rc)
	return r3.Scale(mag/dist, dr)
}

func (d *DensityForce) Local(state *domain.State, pv1, pv2 *particles.ParticleVector, cl1, cl2 *cells.CellList, stream *device.Stream) error {
	v1, v2 := cl1.View(), cl2.View()
	rho1, rho2 := v1.Floats(ChDensities), v2.Floats(ChDensities)
	f1, f2 := v1.Vecs(particles.ChForces), v2.Vecs(particles.ChForces)
	forEachLocalPair(cl1, cl2, d.rc, func(i, j int, dr r3.Vec, dist float64) {
		f := d.pairForce(dr, dist, rho1[i], rho2[j])
		f1[i] = r3.Add(f1[i], f)
		f2[j] = r3.Sub(f2[j], f)
	})
	return nil
}

func (d *DensityForce) Halo(state *domain.State, pv1, pv2 *particles.ParticleVector, cl1, cl2 *cells.CellList, stream *device.Stream) error {
	v1 := cl1.View()
	rho1 := v1.Floats(ChDensities)
	f1 := v1.Vecs(particles.ChForces)
	haloPos := pv2.Halo.Vecs(particles.ChPositions)
	haloRho := pv2.Halo.Floats(ChDensities)
	haloF := pv2.Halo.Vecs(particles.ChForces)
	forEachHaloPair(cl1, haloPos, d.rc, func(hi, j int, dr r3.Vec, dist float64) {
		f := d.pairForce(dr, dist, rho1[j], haloRho[hi])
		f1[j] = r3.Add(f1[j], f)
		haloF[hi] = r3.Sub(haloF[hi], f)
	})
	return nil
}
