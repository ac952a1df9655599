package plugins

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/comm"
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/particles"
)

// Stats reduces momentum and kinetic temperature over the attached
// vectors every N steps and ships the record to postprocess.
type Stats struct {
	Base
	name  string
	every int64
	pvs   []*particles.ParticleVector
	pipe  Pipe

	state *domain.State
	comm  comm.Comm
}

// StatsRecord is the decoded payload of one Stats message.
type StatsRecord struct {
	Time        float64
	N           float64
	Momentum    r3.Vec
	Temperature float64
}

func NewStats(name string, every int64, pipe Pipe, pvs ...*particles.ParticleVector) *Stats {
	if pipe == nil {
		pipe = NullPipe{}
	}
	return &Stats{name: name, every: every, pipe: pipe, pvs: pvs}
}

func (s *Stats) Name() string { return s.name }

func (s *Stats) Setup(state *domain.State, c comm.Comm) error {
	s.state = state
	s.comm = c
	return nil
}

func (s *Stats) SerializeAndSend(stream *device.Stream) error {
	if s.state.CurrentStep%s.every != 0 {
		return nil
	}

	// local sums: count, momentum, twice the kinetic energy
	local := make([]float64, 5)
	for _, pv := range s.pvs {
		vel := pv.Velocities()
		for _, v := range vel {
			local[0]++
			local[1] += pv.Mass * v.X
			local[2] += pv.Mass * v.Y
			local[3] += pv.Mass * v.Z
			local[4] += pv.Mass * r3.Norm2(v)
		}
	}
	global, err := s.comm.AllreduceSum(local)
	if err != nil {
		return err
	}

	rec := StatsRecord{
		Time:     s.state.CurrentTime,
		N:        global[0],
		Momentum: r3.Vec{X: global[1], Y: global[2], Z: global[3]},
	}
	if global[0] > 0 {
		rec.Temperature = global[4] / (3 * global[0])
	}

	if s.comm.Rank() == 0 {
		slog.Info("stats",
			"component", "plugins", "plugin", s.name,
			"step", s.state.CurrentStep, "n", int64(rec.N),
			"temperature", rec.Temperature,
			"momentum", math.Sqrt(r3.Norm2(rec.Momentum)))
		return s.pipe.Send(Message{
			Plugin:  s.name,
			Step:    s.state.CurrentStep,
			Payload: rec.encode(),
		})
	}
	return nil
}

func (r StatsRecord) encode() []byte {
	var buf bytes.Buffer
	for _, v := range []float64{r.Time, r.N, r.Momentum.X, r.Momentum.Y, r.Momentum.Z, r.Temperature} {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

// DecodeStatsRecord is the postprocess-side inverse of encode.
func DecodeStatsRecord(payload []byte) (StatsRecord, error) {
	var vals [6]float64
	r := bytes.NewReader(payload)
	for i := range vals {
		if err := binary.Read(r, binary.LittleEndian, &vals[i]); err != nil {
			return StatsRecord{}, err
		}
	}
	return StatsRecord{
		Time:        vals[0],
		N:           vals[1],
		Momentum:    r3.Vec{X: vals[2], Y: vals[3], Z: vals[4]},
		Temperature: vals[5],
	}, nil
}
