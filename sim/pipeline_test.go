package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesokit/mesokit/cells"
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/interactions"
	"github.com/mesokit/mesokit/interactions/pairwise"
	"github.com/mesokit/mesokit/particles"
)

// spyForce is a final-stage interaction that, instead of computing
// anything, asserts that the densities its cell list carries were
// gathered from the vector before the final stage ran.
type spyForce struct {
	t        *testing.T
	rc       float64
	executed *bool
}

func (s *spyForce) Name() string                                          { return "spy" }
func (s *spyForce) RC() float64                                           { return s.rc }
func (s *spyForce) Stage() interactions.Stage                             { return interactions.Final }
func (s *spyForce) SetPrerequisites(_, _ *particles.ParticleVector) error { return nil }

func (s *spyForce) InputChannels() []interactions.ChannelActivity {
	return []interactions.ChannelActivity{interactions.Always(pairwise.ChDensities)}
}

func (s *spyForce) OutputChannels() []interactions.ChannelActivity {
	return []interactions.ChannelActivity{interactions.Always(particles.ChForces)}
}

func (s *spyForce) Local(_ *domain.State, pv1, _ *particles.ParticleVector, cl1, _ *cells.CellList, _ *device.Stream) error {
	*s.executed = true

	// the consumer's cell list must hold the producer's accumulated
	// values, elementwise in reordered indexing
	own := pv1.Local.Floats(pairwise.ChDensities)
	view := cl1.View().Floats(pairwise.ChDensities)
	order := cl1.Order()
	require.Equal(s.t, len(own), len(view))
	nonzero := false
	for i := range own {
		assert.Equal(s.t, own[i], view[int(order[i])])
		if own[i] != 0 {
			nonzero = true
		}
	}
	assert.True(s.t, nonzero, "densities were not produced before the final stage")
	return nil
}

func (s *spyForce) Halo(_ *domain.State, _, _ *particles.ParticleVector, _, _ *cells.CellList, _ *device.Stream) error {
	return nil
}

// Intermediate-then-final pipeline: the density field is produced,
// accumulated and gathered into the consumer's (secondary) cell list
// before the final task executes.
func TestScenario_IntermediatePipeline(t *testing.T) {
	s := singleSim(t, 8, 0.01)

	fluid := particles.New("fluid", 1)
	require.NoError(t, s.RegisterParticleVector(fluid, Uniform{Density: 2, VelAmp: 0, Seed: 1}, 0))

	den := pairwise.NewDensity("den", 1.0)
	require.NoError(t, s.RegisterInteraction(den))
	require.NoError(t, s.SetInteraction("den", "fluid", "fluid"))

	executed := false
	// a smaller cutoff forces the spy onto a secondary cell list, so the
	// gather step is genuinely exercised
	spy := &spyForce{t: t, rc: 0.8, executed: &executed}
	require.NoError(t, s.RegisterInteraction(spy))
	require.NoError(t, s.SetInteraction("spy", "fluid", "fluid"))

	require.NoError(t, s.Run(1))
	assert.True(t, executed)

	lists := s.CellLists("fluid")
	require.Len(t, lists, 2)
	assert.True(t, lists[0].IsPrimary())
	assert.False(t, lists[1].IsPrimary())
}
