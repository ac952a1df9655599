package exchange

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/comm"
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/particles"
)

func singleDomain(ext r3.Vec) domain.DomainInfo {
	return domain.NewDomainInfo(ext, [3]int{1, 1, 1}, [3]int{0, 0, 0})
}

func TestParticleHalo_SingleNode(t *testing.T) {
	dom := singleDomain(r3.Vec{X: 8, Y: 8, Z: 8})
	dev := device.Host()

	pv := particles.New("pv", 1)
	pv.AddParticles(
		[]r3.Vec{
			{X: 3.7, Y: 0, Z: 0},     // within rc of the +x face
			{X: 0, Y: 0, Z: 0},       // interior
			{X: -3.9, Y: -3.8, Z: 0}, // -x and -y corner region
		},
		make([]r3.Vec, 3),
	)

	ex := NewParticleHaloExchanger(dom)
	ex.Attach(pv, 1.0, nil, dev)
	eng := NewSingleNodeEngine(ex)

	require.NoError(t, eng.Init(nil))
	require.NoError(t, eng.Finalize(nil))

	// particle 0 appears once (face), particle 2 three times (face, face,
	// edge), the interior one not at all
	require.Equal(t, 4, pv.Halo.Size())

	// every halo copy is the original shifted by one subdomain extent
	ids := pv.Halo.IDs(particles.ChIDs)
	pos := pv.Halo.Vecs(particles.ChPositions)
	for i := range pos {
		switch ids[i][0] {
		case 0:
			assert.InDelta(t, 3.7-8, pos[i].X, 1e-12)
		case 2:
			assert.True(t, pos[i].X == -3.9+8 || pos[i].Y == -3.8+8)
		default:
			t.Fatalf("unexpected particle %d in halo", ids[i][0])
		}
	}

	// paired send/recv sizes match
	h := ex.Helper(0)
	total := 0
	for f := 0; f < NumFragments; f++ {
		total += h.RecvSizes[f]
		assert.Equal(t, h.SendSizes[f], h.RecvSizes[InverseFragment(f)])
	}
	assert.Equal(t, 4, total)
	assert.Zero(t, h.SendSizes[BulkFragment])
}

func TestParticleRedistributor_SingleNodeWraps(t *testing.T) {
	dom := singleDomain(r3.Vec{X: 8, Y: 8, Z: 8})
	dev := device.Host()

	pv := particles.New("pv", 1)
	pv.AddParticles(
		[]r3.Vec{
			{X: 4.5, Y: 0, Z: 0},    // left through +x
			{X: 0, Y: 0, Z: 0},      // stays
			{X: -4.2, Y: 5.1, Z: 0}, // left through -x and +y
		},
		[]r3.Vec{{X: 1}, {X: 2}, {X: 3}},
	)

	ex := NewParticleRedistributor(dom)
	ex.Attach(pv, dev)
	eng := NewSingleNodeEngine(ex)

	require.NoError(t, eng.Init(nil))
	require.NoError(t, eng.Finalize(nil))

	// conservation: all three particles remain resident after the wrap
	require.Equal(t, 3, pv.Local.Size())
	byID := map[int32]r3.Vec{}
	for i, id := range pv.Local.IDs(particles.ChIDs) {
		byID[id[0]] = pv.Positions()[i]
	}
	assert.InDelta(t, 4.5-8, byID[0].X, 1e-12)
	assert.InDelta(t, 0.0, byID[1].X, 1e-12)
	assert.InDelta(t, -4.2+8, byID[2].X, 1e-12)
	assert.InDelta(t, 5.1-8, byID[2].Y, 1e-12)
}

func TestObjectRedistributor_ShipsWholeObjects(t *testing.T) {
	dom := singleDomain(r3.Vec{X: 8, Y: 8, Z: 8})
	dev := device.Host()

	ov, err := particles.NewObject("obj", 1, 2, nil)
	require.NoError(t, err)
	ov.AddParticles(
		[]r3.Vec{
			{X: 3.9}, {X: 4.3}, // object 0 straddles +x, COM beyond the face
			{X: 0}, {X: 0.5}, // object 1 stays
		},
		make([]r3.Vec, 4),
	)
	ov.ComputeCOMExtents()

	ex := NewObjectRedistributor(dom)
	ex.Attach(ov, dev)
	eng := NewSingleNodeEngine(ex)

	require.NoError(t, eng.Init(nil))
	require.NoError(t, eng.Finalize(nil))

	require.Equal(t, 2, ov.NumLocalObjects())
	require.Equal(t, 4, ov.Local.Size())

	byID := map[int32]r3.Vec{}
	for i, id := range ov.Local.IDs(particles.ChIDs) {
		byID[id[0]] = ov.Positions()[i]
	}
	// the whole first object wrapped together
	assert.InDelta(t, 3.9-8, byID[0].X, 1e-12)
	assert.InDelta(t, 4.3-8, byID[1].X, 1e-12)
	assert.InDelta(t, 0.0, byID[2].X, 1e-12)
}

// Two in-process ranks split along x: a halo pair crosses the boundary
// and sizes stay paired.
func TestMPIEngine_TwoRanks(t *testing.T) {
	comms := comm.NewInProcWorld([3]int{2, 1, 1})
	global := r3.Vec{X: 16, Y: 8, Z: 8}
	dev := device.Host()

	var wg sync.WaitGroup
	haloCounts := make([]int, 2)
	errs := make([]error, 2)

	for rank := 0; rank < 2; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			c := comms[rank]
			dom := domain.NewDomainInfo(global, c.Dims(), c.Coords())

			pv := particles.New("pv", 1)
			if rank == 0 {
				// near its +x face, which is the boundary to rank 1
				pv.AddParticles([]r3.Vec{{X: 3.8}}, make([]r3.Vec, 1))
			} else {
				pv.AddParticles([]r3.Vec{{X: -3.6}}, make([]r3.Vec, 1))
			}

			ex := NewParticleHaloExchanger(dom)
			ex.Attach(pv, 1.0, nil, dev)
			eng := NewMPIEngine(ex, c, 0, false)

			if err := eng.Init(nil); err != nil {
				errs[rank] = err
				return
			}
			if err := eng.Finalize(nil); err != nil {
				errs[rank] = err
				return
			}
			haloCounts[rank] = pv.Halo.Size()
		}(rank)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	// each rank sees exactly the other's boundary particle
	assert.Equal(t, 1, haloCounts[0])
	assert.Equal(t, 1, haloCounts[1])
}
