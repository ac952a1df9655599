package interactions

import (
	"fmt"

	"github.com/mesokit/mesokit/cells"
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/mkerr"
	"github.com/mesokit/mesokit/particles"
)

// CutoffTolerance bounds both cell-list reuse (an interaction may run on
// a list built for a slightly larger cutoff) and cutoff deduplication in
// the driver.
const CutoffTolerance = 1e-6

// ChooseCellList picks the smallest list whose cutoff covers rc within
// the tolerance. lists must be sorted by descending cutoff.
func ChooseCellList(lists []*cells.CellList, rc float64) (*cells.CellList, error) {
	var best *cells.CellList
	for _, cl := range lists {
		if cl.RC() >= rc-CutoffTolerance {
			best = cl
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no cell list covers cutoff %g", mkerr.ErrConfiguration, rc)
	}
	return best, nil
}

type entry struct {
	inter    Interaction
	pv1, pv2 *particles.ParticleVector
	cl1, cl2 *cells.CellList
}

type stageData struct {
	entries []entry

	// outputs per cell list (cleared before, accumulated after exec) and
	// per vector (cleared on local and halo partitions)
	clOutputs map[*cells.CellList][]ChannelActivity
	pvOutputs map[*particles.ParticleVector][]ChannelActivity

	// inputs per cell list, gathered before exec (final stage only)
	clInputs map[*cells.CellList][]ChannelActivity
}

func newStageData() stageData {
	return stageData{
		clOutputs: make(map[*cells.CellList][]ChannelActivity),
		pvOutputs: make(map[*particles.ParticleVector][]ChannelActivity),
		clInputs:  make(map[*cells.CellList][]ChannelActivity),
	}
}

// Manager routes interactions and their channels. All methods are driven
// by scheduler tasks; none is safe for concurrent use.
type Manager struct {
	state        *domain.State
	intermediate stageData
	final        stageData
}

func NewManager(state *domain.State) *Manager {
	return &Manager{
		state:        state,
		intermediate: newStageData(),
		final:        newStageData(),
	}
}

func (m *Manager) stage(s Stage) *stageData {
	if s == Intermediate {
		return &m.intermediate
	}
	return &m.final
}

// Register binds an interaction to a vector pair and its chosen cell
// lists. Two interactions writing the same channel on the same unordered
// pair are rejected: their contributions would be indistinguishable.
func (m *Manager) Register(inter Interaction, pv1, pv2 *particles.ParticleVector, cl1, cl2 *cells.CellList) error {
	sd := m.stage(inter.Stage())
	for _, have := range sd.entries {
		if !samePair(have, pv1, pv2) {
			continue
		}
		for _, a := range have.inter.OutputChannels() {
			for _, b := range inter.OutputChannels() {
				if a.Name == b.Name {
					return fmt.Errorf("%w: interactions %q and %q both write channel %q on pair (%s, %s)",
						mkerr.ErrConfiguration, have.inter.Name(), inter.Name(), a.Name, pv1.Name(), pv2.Name())
				}
			}
		}
	}

	if err := inter.SetPrerequisites(pv1, pv2); err != nil {
		return err
	}
	sd.entries = append(sd.entries, entry{inter: inter, pv1: pv1, pv2: pv2, cl1: cl1, cl2: cl2})

	for _, out := range inter.OutputChannels() {
		for _, cl := range []*cells.CellList{cl1, cl2} {
			if err := cl.RequireChannel(out.Name); err != nil {
				return err
			}
			sd.clOutputs[cl] = appendActivity(sd.clOutputs[cl], out)
		}
		sd.pvOutputs[pv1] = appendActivity(sd.pvOutputs[pv1], out)
		sd.pvOutputs[pv2] = appendActivity(sd.pvOutputs[pv2], out)
	}
	for _, in := range inter.InputChannels() {
		for _, cl := range []*cells.CellList{cl1, cl2} {
			if err := cl.RequireChannel(in.Name); err != nil {
				return err
			}
			sd.clInputs[cl] = appendActivity(sd.clInputs[cl], in)
		}
	}
	return nil
}

func samePair(e entry, pv1, pv2 *particles.ParticleVector) bool {
	return (e.pv1 == pv1 && e.pv2 == pv2) || (e.pv1 == pv2 && e.pv2 == pv1)
}

func appendActivity(list []ChannelActivity, ca ChannelActivity) []ChannelActivity {
	for _, have := range list {
		if have.Name == ca.Name {
			return list
		}
	}
	return append(list, ca)
}

func activeNames(list []ChannelActivity, step int64) []string {
	var names []string
	for _, ca := range list {
		if ca.ActiveAt(step) {
			names = append(names, ca.Name)
		}
	}
	return names
}

// Involved reports whether the vector has interactions in either stage.
func (m *Manager) Involved(pv *particles.ParticleVector) bool {
	for _, sd := range []*stageData{&m.intermediate, &m.final} {
		for _, e := range sd.entries {
			if e.pv1 == pv || e.pv2 == pv {
				return true
			}
		}
	}
	return false
}

// HasIntermediate reports whether the vector takes part in any
// intermediate-stage interaction.
func (m *Manager) HasIntermediate(pv *particles.ParticleVector) bool {
	for _, e := range m.intermediate.entries {
		if e.pv1 == pv || e.pv2 == pv {
			return true
		}
	}
	return false
}

// IntermediateOutputNames lists the intermediate channels produced on a
// vector; the final-stage halo ships these along with the persistent
// channels.
func (m *Manager) IntermediateOutputNames(pv *particles.ParticleVector) []string {
	var names []string
	for _, ca := range m.intermediate.pvOutputs[pv] {
		names = append(names, ca.Name)
	}
	return names
}

// EffectiveCutoff is the maximum cutoff over both stages for a vector;
// it bounds the vector's halo thickness.
func (m *Manager) EffectiveCutoff(pv *particles.ParticleVector) float64 {
	rc := 0.0
	for _, sd := range []*stageData{&m.intermediate, &m.final} {
		for _, e := range sd.entries {
			if (e.pv1 == pv || e.pv2 == pv) && e.inter.RC() > rc {
				rc = e.inter.RC()
			}
		}
	}
	return rc
}

// StageCutoff is the maximum cutoff of one stage for a vector.
func (m *Manager) StageCutoff(pv *particles.ParticleVector, s Stage) float64 {
	rc := 0.0
	for _, e := range m.stage(s).entries {
		if (e.pv1 == pv || e.pv2 == pv) && e.inter.RC() > rc {
			rc = e.inter.RC()
		}
	}
	return rc
}

func (m *Manager) clear(sd *stageData, pv *particles.ParticleVector, step int64, stream *device.Stream) {
	for _, name := range activeNames(sd.pvOutputs[pv], step) {
		pv.Local.ClearChannel(name, stream)
		pv.Halo.ClearChannel(name, stream)
	}
	for cl, outs := range sd.clOutputs {
		if cl.PV() != pv {
			continue
		}
		cl.ClearChannels(activeNames(outs, step), stream)
	}
}

// ClearIntermediates zeroes the intermediate channels of a vector on its
// partitions and on the involved cell lists.
func (m *Manager) ClearIntermediates(pv *particles.ParticleVector, step int64, stream *device.Stream) {
	m.clear(&m.intermediate, pv, step, stream)
}

// ClearFinal zeroes the final channels (forces) the same way.
func (m *Manager) ClearFinal(pv *particles.ParticleVector, step int64, stream *device.Stream) {
	m.clear(&m.final, pv, step, stream)
}

func (m *Manager) executeLocal(sd *stageData, stream *device.Stream) error {
	for _, e := range sd.entries {
		if err := e.inter.Local(m.state, e.pv1, e.pv2, e.cl1, e.cl2, stream); err != nil {
			return fmt.Errorf("interaction %q (local): %w", e.inter.Name(), err)
		}
	}
	return nil
}

// executeHalo picks the halo direction per pair so that every
// cross-boundary pair contributes exactly once:
//   - plain-plain: both ordered directions run and each rank keeps its
//     local side (the halo thickness guarantees both ranks see the pair);
//   - a pair involving an object vector runs exactly once, with the
//     object side as the halo: the computing rank keeps its local share
//     and the object's share travels home through the reverse exchange
//     (whole-object halos may hold particles the owner cannot pair up).
func (m *Manager) executeHalo(sd *stageData, stream *device.Stream) error {
	for _, e := range sd.entries {
		pv1, pv2, cl1, cl2 := e.pv1, e.pv2, e.cl1, e.cl2
		if pv1.IsObject() && !pv2.IsObject() {
			pv1, pv2, cl1, cl2 = pv2, pv1, cl2, cl1
		}
		if err := e.inter.Halo(m.state, pv1, pv2, cl1, cl2, stream); err != nil {
			return fmt.Errorf("interaction %q (halo): %w", e.inter.Name(), err)
		}
		if pv1 != pv2 && !pv1.IsObject() && !pv2.IsObject() {
			if err := e.inter.Halo(m.state, pv2, pv1, cl2, cl1, stream); err != nil {
				return fmt.Errorf("interaction %q (halo, swapped): %w", e.inter.Name(), err)
			}
		}
	}
	return nil
}

func (m *Manager) ExecuteLocalIntermediate(stream *device.Stream) error {
	return m.executeLocal(&m.intermediate, stream)
}

func (m *Manager) ExecuteHaloIntermediate(stream *device.Stream) error {
	return m.executeHalo(&m.intermediate, stream)
}

func (m *Manager) ExecuteLocalFinal(stream *device.Stream) error {
	return m.executeLocal(&m.final, stream)
}

func (m *Manager) ExecuteHaloFinal(stream *device.Stream) error {
	return m.executeHalo(&m.final, stream)
}

func (m *Manager) accumulate(sd *stageData, pv *particles.ParticleVector, step int64, stream *device.Stream) {
	for cl, outs := range sd.clOutputs {
		if cl.PV() != pv {
			continue
		}
		cl.AccumulateChannels(activeNames(outs, step), stream)
	}
}

// AccumulateIntermediates sums cell-list-private intermediate channels
// back into the vector's channels.
func (m *Manager) AccumulateIntermediates(pv *particles.ParticleVector, step int64, stream *device.Stream) {
	m.accumulate(&m.intermediate, pv, step, stream)
}

// AccumulateFinal does the same for forces.
func (m *Manager) AccumulateFinal(pv *particles.ParticleVector, step int64, stream *device.Stream) {
	m.accumulate(&m.final, pv, step, stream)
}

// GatherIntermediate pushes accumulated intermediate values into the
// secondary cell lists feeding the final stage. Must run after
// AccumulateIntermediates and before any final execution.
func (m *Manager) GatherIntermediate(pv *particles.ParticleVector, step int64, stream *device.Stream) error {
	for cl, ins := range m.final.clInputs {
		if cl.PV() != pv {
			continue
		}
		if err := cl.GatherChannels(activeNames(ins, step), stream); err != nil {
			return err
		}
	}
	return nil
}
