package sim

import (
	"fmt"
	"log/slog"
)

// Run advances the simulation by nsteps, assembling the task graph on
// the first call. Any task failure is fatal: it is logged with the rank
// and step attached and returned to the caller, which is expected to
// abort the process.
func (s *Simulation) Run(nsteps int64) error {
	if err := s.prepare(); err != nil {
		slog.Error("assembly failed", "component", "sim", "rank", s.comm.Rank(), "err", err)
		return err
	}

	begin := s.state.CurrentStep
	slog.Info("starting run", "component", "sim", "rank", s.comm.Rank(),
		"begin", begin, "nsteps", nsteps)

	for step := begin; step < begin+nsteps; step++ {
		s.state.CurrentStep = step
		if err := s.sch.Run(step, s.stream); err != nil {
			slog.Error("step failed", "component", "sim",
				"rank", s.comm.Rank(), "step", step, "err", err)
			return fmt.Errorf("step %d: %w", step, err)
		}
		s.state.CurrentTime += s.state.Dt
	}
	s.state.CurrentStep = begin + nsteps

	// rebuild once so the cell lists reflect the post-integration
	// positions of the last step
	s.buildCellLists(s.stream)
	s.stream.Sync()
	return nil
}

// Finalize synchronises the ranks and sends the shutdown sentinel to the
// postprocess side, if any.
func (s *Simulation) Finalize() error {
	if err := s.comm.Barrier(); err != nil {
		return err
	}
	return s.pipe.Close()
}
