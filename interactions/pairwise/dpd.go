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

// DPD is the dissipative-particle-dynamics pair force: conservative,
// dissipative and random terms with the standard fluctuation-dissipation
// coupling sigma^2 = 2*gamma*kBT.
type DPD struct {
	name  string
	rc    float64
	A     float64 // conservative amplitude
	Gamma float64
	KBT   float64
	Power float64 // envelope exponent
}

func NewDPD(name string, rc, a, gamma, kBT, power float64) *DPD {
	return &DPD{name: name, rc: rc, A: a, Gamma: gamma, KBT: kBT, Power: power}
}

func (d *DPD) Name() string              { return d.name }
func (d *DPD) RC() float64               { return d.rc }
func (d *DPD) Stage() interactions.Stage { return interactions.Final }

func (d *DPD) InputChannels() []interactions.ChannelActivity {
	// ids feed the symmetric pair RNG
	return []interactions.ChannelActivity{interactions.Always(particles.ChIDs)}
}

func (d *DPD) OutputChannels() []interactions.ChannelActivity {
	return []interactions.ChannelActivity{interactions.Always(particles.ChForces)}
}

func (d *DPD) SetPrerequisites(pv1, pv2 *particles.ParticleVector) error {
	return nil
}

func (d *DPD) force(dr r3.Vec, dist float64, vi, vj r3.Vec, idI, idJ int32, step int64, sigma, invSqrtDt float64) r3.Vec {
	w := 1 - dist/d.rc
	er := r3.Scale(1/dist, dr)
	dv := r3.Sub(vi, vj)

	fc := d.A * w
	fd := -d.Gamma * math.Pow(w, d.Power) * r3.Dot(er, dv)
	fr := sigma * math.Pow(w, 0.5*d.Power) * invSqrtDt * pairNoise(idI, idJ, step)
	return r3.Scale(fc+fd+fr, er)
}

func (d *DPD) Local(state *domain.State, pv1, pv2 *particles.ParticleVector, cl1, cl2 *cells.CellList, stream *device.Stream) error {
	sigma := math.Sqrt(2 * d.Gamma * d.KBT)
	invSqrtDt := 1 / math.Sqrt(state.Dt)
	v1, v2 := cl1.View(), cl2.View()
	vel1, vel2 := v1.Vecs(particles.ChVelocities), v2.Vecs(particles.ChVelocities)
	f1, f2 := v1.Vecs(particles.ChForces), v2.Vecs(particles.ChForces)
	ids1, ids2 := v1.IDs(particles.ChIDs), v2.IDs(particles.ChIDs)

	forEachLocalPair(cl1, cl2, d.rc, func(i, j int, dr r3.Vec, dist float64) {
		f := d.force(dr, dist, vel1[i], vel2[j], ids1[i][0], ids2[j][0], state.CurrentStep, sigma, invSqrtDt)
		f1[i] = r3.Add(f1[i], f)
		f2[j] = r3.Sub(f2[j], f)
	})
	return nil
}

func (d *DPD) Halo(state *domain.State, pv1, pv2 *particles.ParticleVector, cl1, cl2 *cells.CellList, stream *device.Stream) error {
	sigma := math.Sqrt(2 * d.Gamma * d.KBT)
	invSqrtDt := 1 / math.Sqrt(state.Dt)
	v1 := cl1.View()
	vel1 := v1.Vecs(particles.ChVelocities)
	f1 := v1.Vecs(particles.ChForces)
	ids1 := v1.IDs(particles.ChIDs)

	haloPos := pv2.Halo.Vecs(particles.ChPositions)
	haloVel := pv2.Halo.Vecs(particles.ChVelocities)
	haloF := pv2.Halo.Vecs(particles.ChForces)
	haloIDs := pv2.Halo.IDs(particles.ChIDs)

	forEachHaloPair(cl1, haloPos, d.rc, func(hi, j int, dr r3.Vec, dist float64) {
		f := d.force(dr, dist, vel1[j], haloVel[hi], ids1[j][0], haloIDs[hi][0], state.CurrentStep, sigma, invSqrtDt)
		f1[j] = r3.Add(f1[j], f)
		haloF[hi] = r3.Sub(haloF[hi], f)
	})
	return nil
}
