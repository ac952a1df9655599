package sim

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/mesokit/mesokit/belonging"
	"github.com/mesokit/mesokit/cells"
	"github.com/mesokit/mesokit/exchange"
	"github.com/mesokit/mesokit/interactions"
	"github.com/mesokit/mesokit/mkerr"
	"github.com/mesokit/mesokit/particles"
)

// prepare runs the one-shot lifecycle phases in order. Each phase is a
// single pass over its inputs and is never repeated.
func (s *Simulation) prepare() error {
	if s.prepared {
		return nil
	}
	phases := []struct {
		name string
		fn   func() error
	}{
		{"cell lists", s.prepareCellLists},
		{"interactions", s.prepareInteractions},
		{"bouncers", s.prepareBouncers},
		{"walls", s.prepareWalls},
		{"engines", s.prepareEngines},
		{"plugins", s.preparePlugins},
		{"tasks", s.createTasks},
		{"splitters", s.execSplitters},
	}
	for _, phase := range phases {
		if err := phase.fn(); err != nil {
			return fmt.Errorf("preparing %s: %w", phase.name, err)
		}
	}
	s.prepared = true
	slog.Info("simulation assembled", "component", "sim",
		"rank", s.comm.Rank(), "tasks", s.sch.NumTasks(),
		"vectors", len(s.pvOrder))
	return nil
}

// prepareCellLists gathers per vector the cutoffs its interactions
// declared, sorts them descending, deduplicates within the tolerance and
// builds one list per survivor. The largest-cutoff list of a plain
// vector is primary; object vectors get only secondary lists.
func (s *Simulation) prepareCellLists() error {
	for _, name := range s.pvOrder {
		pv := s.pvs[name]
		var cutoffs []float64
		for _, b := range s.bound {
			if b.pv1 == pv || b.pv2 == pv {
				cutoffs = append(cutoffs, b.inter.RC())
			}
		}
		if len(cutoffs) == 0 {
			cutoffs = []float64{rcDefault}
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(cutoffs)))
		var distinct []float64
		for _, rc := range cutoffs {
			if len(distinct) == 0 || distinct[len(distinct)-1]-rc > interactions.CutoffTolerance {
				distinct = append(distinct, rc)
			}
		}
		for k, rc := range distinct {
			primary := k == 0 && !pv.IsObject()
			cl := cells.New(pv, rc, s.state.Domain.LocalSize, primary)
			s.cellLists[name] = append(s.cellLists[name], cl)
		}
	}
	return nil
}

// prepareInteractions assigns every bound interaction to the best-fit
// cell list per side and registers its channels with the manager.
func (s *Simulation) prepareInteractions() error {
	// intermediates first, so their prerequisites exist when the final
	// stage asks for its inputs
	ordered := make([]boundInteraction, 0, len(s.bound))
	for _, b := range s.bound {
		if b.inter.Stage() == interactions.Intermediate {
			ordered = append(ordered, b)
		}
	}
	for _, b := range s.bound {
		if b.inter.Stage() == interactions.Final {
			ordered = append(ordered, b)
		}
	}
	for _, b := range ordered {
		cl1, err := interactions.ChooseCellList(s.cellLists[b.pv1.Name()], b.inter.RC())
		if err != nil {
			return err
		}
		cl2, err := interactions.ChooseCellList(s.cellLists[b.pv2.Name()], b.inter.RC())
		if err != nil {
			return err
		}
		if err := s.manager.Register(b.inter, b.pv1, b.pv2, cl1, cl2); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) prepareBouncers() error {
	for _, b := range s.activeBouncers {
		if _, ok := s.pvIntegrator[b.PV().Name()]; !ok {
			return fmt.Errorf("%w: bouncer %q: vector %q has no integrator",
				mkerr.ErrConfiguration, b.Name(), b.PV().Name())
		}
		if !b.OV().LocalObjects.Exists(particles.ChMotions) {
			return fmt.Errorf("%w: bouncer %q: object vector %q carries no motions (missing rigid integrator?)",
				mkerr.ErrConfiguration, b.Name(), b.OV().Name())
		}
		if err := b.SetPrerequisites(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) prepareWalls() error {
	for wName, pvNames := range s.wallBounced {
		for _, pvName := range pvNames {
			if _, ok := s.pvIntegrator[pvName]; !ok {
				return fmt.Errorf("%w: wall %q bounces %q, which has no integrator",
					mkerr.ErrConfiguration, wName, pvName)
			}
		}
	}
	return nil
}

// prepareEngines instantiates one exchanger of each kind, attaches the
// vectors that need it and wraps each in the engine matching the world
// size.
func (s *Simulation) prepareEngines() error {
	dom := s.state.Domain
	s.haloIntermediate = exchange.NewParticleHaloExchanger(dom)
	s.haloFinal = exchange.NewParticleHaloExchanger(dom)
	s.redistributor = exchange.NewParticleRedistributor(dom)
	s.objHalo = exchange.NewObjectHaloExchanger(dom)
	s.objRedist = exchange.NewObjectRedistributor(dom)
	s.objExtra = exchange.NewObjectExtraExchanger(s.objHalo)
	s.objReverse = exchange.NewObjectReverseExchanger(s.objHalo)
	s.objReverseBounce = exchange.NewObjectReverseExchanger(s.objHalo)

	for _, name := range s.pvOrder {
		pv := s.pvs[name]
		if ov, isOV := s.ovs[name]; isOV {
			rc := s.manager.EffectiveCutoff(pv)
			if rc == 0 {
				rc = rcDefault
			}
			s.objHalo.Attach(ov, rc, s.dev)
			s.objRedist.Attach(ov, s.dev)
			if extra := s.manager.IntermediateOutputNames(pv); len(extra) > 0 {
				s.objExtra.Attach(ov, extra, s.dev)
			}
			s.objReverse.Attach(ov, []string{particles.ChForces}, nil, s.dev)
			if ov.HaloObjects.Exists(particles.ChBounceForces) {
				s.objReverseBounce.Attach(ov, nil, []string{particles.ChBounceForces}, s.dev)
			}
			continue
		}
		if rc := s.manager.StageCutoff(pv, interactions.Intermediate); rc > 0 {
			s.haloIntermediate.Attach(pv, rc, nil, s.dev)
		}
		if rc := s.manager.EffectiveCutoff(pv); rc > 0 {
			s.haloFinal.Attach(pv, rc, s.manager.IntermediateOutputNames(pv), s.dev)
		}
		s.redistributor.Attach(pv, s.dev)
	}

	wrap := func(exch exchange.Exchanger, kindTag int) exchange.Engine {
		if s.comm.Size() == 1 {
			return exchange.NewSingleNodeEngine(exch)
		}
		return exchange.NewMPIEngine(exch, s.comm, kindTag, s.cfg.GPUAwareMPI)
	}
	s.engHaloIntermediate = wrap(s.haloIntermediate, 0)
	s.engHaloFinal = wrap(s.haloFinal, 1)
	s.engRedist = wrap(s.redistributor, 2)
	s.engObjHalo = wrap(s.objHalo, 3)
	s.engObjRedist = wrap(s.objRedist, 4)
	s.engObjExtra = wrap(s.objExtra, 5)
	s.engObjReverse = wrap(s.objReverse, 6)
	s.engObjReverseBounce = wrap(s.objReverseBounce, 7)
	return nil
}

func (s *Simulation) preparePlugins() error {
	for _, p := range s.pluginsReg {
		if err := p.Setup(s.state, s.comm); err != nil {
			return fmt.Errorf("plugin %q: %w", p.Name(), err)
		}
	}
	return nil
}

// execSplitters applies every belonging checker once to partition the
// initial particle sets.
func (s *Simulation) execSplitters() error {
	for _, sp := range s.splitters {
		if err := s.runSplitter(sp); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) runSplitter(sp splitterBinding) error {
	if err := belonging.Split(sp.checker, sp.src, sp.inside, sp.outside, s.stream); err != nil {
		return fmt.Errorf("belonging checker %q on %q: %w", sp.checker.Name(), sp.src.Name(), err)
	}
	return nil
}
