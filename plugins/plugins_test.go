package plugins

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/comm"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/particles"
)

func TestStats_RecordRoundTrip(t *testing.T) {
	rec := StatsRecord{
		Time:        1.5,
		N:           100,
		Momentum:    r3.Vec{X: 1, Y: -2, Z: 3},
		Temperature: 0.97,
	}
	back, err := DecodeStatsRecord(rec.encode())
	require.NoError(t, err)
	assert.Equal(t, rec, back)
}

func TestStats_ComputesTemperature(t *testing.T) {
	dom := domain.NewDomainInfo(r3.Vec{X: 8, Y: 8, Z: 8}, [3]int{1, 1, 1}, [3]int{0, 0, 0})
	state := domain.NewState(0.01, dom)
	state.CurrentStep = 0

	pv := particles.New("pv", 2)
	pv.AddParticles(
		[]r3.Vec{{}, {}},
		[]r3.Vec{{X: 1}, {X: -1}},
	)

	pipe := NewChannelPipe(4)
	st := NewStats("stats", 1, pipe, pv)
	require.NoError(t, st.Setup(state, comm.NewSingle()))
	require.NoError(t, st.SerializeAndSend(nil))

	m := <-pipe.C
	rec, err := DecodeStatsRecord(m.Payload)
	require.NoError(t, err)
	assert.Equal(t, 2.0, rec.N)
	// momentum cancels, kinetic temperature = m*v^2/3
	assert.InDelta(t, 0, rec.Momentum.X, 1e-12)
	assert.InDelta(t, 2.0/3.0, rec.Temperature, 1e-12)
}

func TestStats_RespectsStride(t *testing.T) {
	dom := domain.NewDomainInfo(r3.Vec{X: 8, Y: 8, Z: 8}, [3]int{1, 1, 1}, [3]int{0, 0, 0})
	state := domain.NewState(0.01, dom)
	state.CurrentStep = 3

	pipe := NewChannelPipe(1)
	st := NewStats("stats", 10, pipe, particles.New("pv", 1))
	require.NoError(t, st.Setup(state, comm.NewSingle()))
	require.NoError(t, st.SerializeAndSend(nil))
	assert.Empty(t, pipe.C)
}

func TestPostprocess_TemperatureGraph(t *testing.T) {
	pipe := NewChannelPipe(8)
	for i := 0; i < 4; i++ {
		rec := StatsRecord{Temperature: 1 + 0.1*float64(i)}
		require.NoError(t, pipe.Send(Message{Plugin: "stats", Payload: rec.encode()}))
	}
	require.NoError(t, pipe.Close())

	var out bytes.Buffer
	g := NewTemperatureGraph("stats", &out)
	require.NoError(t, RunPostprocess(pipe, g))
	assert.Contains(t, out.String(), "kinetic temperature")
}
