package plugins

import (
	"fmt"
	"io"

	"github.com/guptarohit/asciigraph"
)

// PostprocessPlugin consumes the serialized payloads of its simulation
// counterpart on the postprocess side.
type PostprocessPlugin interface {
	Name() string
	Deserialize(m Message) error
	Done() error
}

// RunPostprocess drains a channel pipe until the sentinel (channel
// close), dispatching messages to the plugin with the matching name.
func RunPostprocess(pipe *ChannelPipe, pls ...PostprocessPlugin) error {
	byName := make(map[string]PostprocessPlugin, len(pls))
	for _, p := range pls {
		byName[p.Name()] = p
	}
	for m := range pipe.C {
		p, ok := byName[m.Plugin]
		if !ok {
			continue
		}
		if err := p.Deserialize(m); err != nil {
			return fmt.Errorf("postprocess plugin %q: %w", m.Plugin, err)
		}
	}
	for _, p := range pls {
		if err := p.Done(); err != nil {
			return err
		}
	}
	return nil
}

// TemperatureGraph is the postprocess counterpart of Stats: it collects
// the temperature series and renders it as a terminal plot on shutdown.
type TemperatureGraph struct {
	name  string
	out   io.Writer
	temps []float64
}

func NewTemperatureGraph(name string, out io.Writer) *TemperatureGraph {
	return &TemperatureGraph{name: name, out: out}
}

func (g *TemperatureGraph) Name() string { return g.name }

func (g *TemperatureGraph) Deserialize(m Message) error {
	rec, err := DecodeStatsRecord(m.Payload)
	if err != nil {
		return err
	}
	g.temps = append(g.temps, rec.Temperature)
	return nil
}

func (g *TemperatureGraph) Done() error {
	if len(g.temps) < 2 {
		return nil
	}
	plot := asciigraph.Plot(g.temps,
		asciigraph.Height(10),
		asciigraph.Caption("kinetic temperature"))
	_, err := fmt.Fprintln(g.out, plot)
	return err
}
