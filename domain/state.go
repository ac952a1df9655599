package domain

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesokit/mesokit/mkerr"
)

const stateFile = "_simulation.state"

// State is the process-wide simulation clock plus the subdomain geometry.
// Only the driver mutates it: CurrentTime advances by Dt after every step.
type State struct {
	CurrentStep int64
	CurrentTime float64
	Dt          float64
	Domain      DomainInfo
}

func NewState(dt float64, dom DomainInfo) *State {
	return &State{Dt: dt, Domain: dom}
}

// Checkpoint writes the two-value clock record into folder.
func (s *State) Checkpoint(folder string) error {
	path := filepath.Join(folder, stateFile)
	data := fmt.Sprintf("%.17g %d\n", s.CurrentTime, s.CurrentStep)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Restart reads the clock record back. Dt and Domain are configuration,
// not state, and are left untouched.
func (s *State) Restart(folder string) error {
	path := filepath.Join(folder, stateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", mkerr.ErrRestart, path, err)
	}
	var t float64
	var step int64
	if _, err := fmt.Sscan(string(data), &t, &step); err != nil {
		return fmt.Errorf("%w: malformed %s: %v", mkerr.ErrRestart, path, err)
	}
	s.CurrentTime, s.CurrentStep = t, step
	return nil
}
