package sim

import (
	"fmt"
	"sort"

	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/exchange"
	"github.com/mesokit/mesokit/integrators"
	"github.com/mesokit/mesokit/particles"
	"github.com/mesokit/mesokit/scheduler"
)

// createTasks assembles the canonical per-step graph and compiles it.
// High priority on halo pack/unpack and force clears pushes them ahead
// of interior work so network latency hides behind computation.
func (s *Simulation) createTasks() error {
	sch := s.sch
	mk := func(name string) scheduler.TaskID {
		id, err := sch.CreateTask(name)
		if err != nil {
			panic(err) // task names are driver-internal constants
		}
		return id
	}
	run := func(id scheduler.TaskID, fn func(*device.Stream) error) {
		sch.AddRun(id, fn)
	}
	engineInit := func(eng exchange.Engine) func(*device.Stream) error {
		return func(stream *device.Stream) error { return eng.Init(stream) }
	}
	engineFinalize := func(eng exchange.Engine) func(*device.Stream) error {
		return func(stream *device.Stream) error { return eng.Finalize(stream) }
	}

	// plugin hooks
	plBeforeCellLists := mk("plugins: before cell lists")
	plBeforeForces := mk("plugins: before forces")
	plSerializeSend := mk("plugins: serialize and send")
	plBeforeIntegration := mk("plugins: before integration")
	plAfterIntegration := mk("plugins: after integration")
	plBeforeDistribution := mk("plugins: before particle distribution")
	for _, p := range s.pluginsReg {
		p := p
		run(plBeforeCellLists, p.BeforeCellLists)
		run(plBeforeForces, p.BeforeForces)
		run(plSerializeSend, p.SerializeAndSend)
		run(plBeforeIntegration, p.BeforeIntegration)
		run(plAfterIntegration, p.AfterIntegration)
		run(plBeforeDistribution, p.BeforeParticleDistribution)
	}

	cellListTask := mk("cell lists")
	run(cellListTask, func(stream *device.Stream) error {
		s.buildCellLists(stream)
		return nil
	})

	// intermediate stage
	clearIntermediate := mk("clear intermediate")
	haloIntInit := mk("halo intermediate init")
	haloIntFinalize := mk("halo intermediate finalize")
	localIntermediate := mk("local intermediate")
	haloIntermediate := mk("halo intermediate")
	accumulateIntermediate := mk("accumulate intermediate")
	gatherIntermediate := mk("gather intermediate")

	sch.SetPriority(haloIntInit, scheduler.High)
	sch.SetPriority(haloIntFinalize, scheduler.High)

	run(clearIntermediate, func(stream *device.Stream) error {
		for _, name := range s.pvOrder {
			s.manager.ClearIntermediates(s.pvs[name], s.state.CurrentStep, stream)
		}
		return nil
	})
	run(haloIntInit, engineInit(s.engHaloIntermediate))
	run(haloIntFinalize, engineFinalize(s.engHaloIntermediate))
	run(localIntermediate, func(stream *device.Stream) error {
		return s.manager.ExecuteLocalIntermediate(stream)
	})
	run(haloIntermediate, func(stream *device.Stream) error {
		return s.manager.ExecuteHaloIntermediate(stream)
	})
	run(accumulateIntermediate, func(stream *device.Stream) error {
		for _, name := range s.pvOrder {
			s.manager.AccumulateIntermediates(s.pvs[name], s.state.CurrentStep, stream)
		}
		return nil
	})
	run(gatherIntermediate, func(stream *device.Stream) error {
		for _, name := range s.pvOrder {
			if err := s.manager.GatherIntermediate(s.pvs[name], s.state.CurrentStep, stream); err != nil {
				return err
			}
		}
		return nil
	})

	// object halo, riding the extents computed at step start
	objExtentsHalo := mk("object extents")
	objHaloInit := mk("object halo init")
	objHaloFinalize := mk("object halo finalize")
	objExtraInit := mk("object extra init")
	objExtraFinalize := mk("object extra finalize")
	sch.SetPriority(objHaloInit, scheduler.High)
	sch.SetPriority(objHaloFinalize, scheduler.High)

	run(objExtentsHalo, func(stream *device.Stream) error {
		s.computeExtents()
		return nil
	})
	run(objHaloInit, engineInit(s.engObjHalo))
	run(objHaloFinalize, engineFinalize(s.engObjHalo))
	run(objExtraInit, engineInit(s.engObjExtra))
	run(objExtraFinalize, engineFinalize(s.engObjExtra))

	// final stage
	clearFinal := mk("clear forces")
	haloFinInit := mk("halo final init")
	haloFinFinalize := mk("halo final finalize")
	localFinal := mk("local forces")
	haloFinal := mk("halo forces")
	accumulateFinal := mk("accumulate forces")
	objReverseInit := mk("object reverse init")
	objReverseFinalize := mk("object reverse finalize")

	sch.SetPriority(clearFinal, scheduler.High)
	sch.SetPriority(haloFinInit, scheduler.High)
	sch.SetPriority(haloFinFinalize, scheduler.High)

	run(clearFinal, func(stream *device.Stream) error {
		for _, name := range s.pvOrder {
			s.manager.ClearFinal(s.pvs[name], s.state.CurrentStep, stream)
		}
		return nil
	})
	run(haloFinInit, engineInit(s.engHaloFinal))
	run(haloFinFinalize, engineFinalize(s.engHaloFinal))
	run(localFinal, func(stream *device.Stream) error {
		return s.manager.ExecuteLocalFinal(stream)
	})
	run(haloFinal, func(stream *device.Stream) error {
		return s.manager.ExecuteHaloFinal(stream)
	})
	run(accumulateFinal, func(stream *device.Stream) error {
		for _, name := range s.pvOrder {
			s.manager.AccumulateFinal(s.pvs[name], s.state.CurrentStep, stream)
		}
		return nil
	})
	run(objReverseInit, engineInit(s.engObjReverse))
	run(objReverseFinalize, engineFinalize(s.engObjReverse))

	// integration and bounces
	integrate := mk("integration")
	wallBounce := mk("wall bounce")
	wallCheck := mk("wall check")
	clearObjBounceForces := mk("clear object bounce forces")
	bounceLocal := mk("object bounce local")
	bounceHalo := mk("object bounce halo")
	objBounceReverseInit := mk("object bounce reverse init")
	objBounceReverseFinalize := mk("object bounce reverse finalize")
	objExtentsRedist := mk("object extents before redistribute")

	run(integrate, s.integrateAll)
	run(wallBounce, func(stream *device.Stream) error {
		for _, name := range s.wallNames() {
			if err := s.wallsReg[name].Bounce(stream); err != nil {
				return err
			}
		}
		return nil
	})
	run(wallCheck, func(stream *device.Stream) error {
		for _, name := range s.wallNames() {
			if err := s.wallsReg[name].CheckIntegrity(stream); err != nil {
				return err
			}
		}
		return nil
	})
	s.scheduleWallCheck(wallCheck)

	run(clearObjBounceForces, func(stream *device.Stream) error {
		for _, ov := range s.ovList() {
			if ov.LocalObjects.Exists(particles.ChBounceForces) {
				ov.LocalObjects.ClearChannel(particles.ChBounceForces, stream)
				ov.HaloObjects.ClearChannel(particles.ChBounceForces, stream)
			}
		}
		return nil
	})
	run(bounceLocal, func(stream *device.Stream) error {
		for _, b := range s.activeBouncers {
			if err := b.BounceLocal(s.state.Dt, stream); err != nil {
				return err
			}
		}
		return nil
	})
	run(bounceHalo, func(stream *device.Stream) error {
		for _, b := range s.activeBouncers {
			if err := b.BounceHalo(s.state.Dt, stream); err != nil {
				return err
			}
		}
		return nil
	})
	run(objBounceReverseInit, engineInit(s.engObjReverseBounce))
	run(objBounceReverseFinalize, engineFinalize(s.engObjReverseBounce))
	run(objExtentsRedist, func(stream *device.Stream) error {
		s.computeExtents()
		return nil
	})

	// redistribution
	redistInit := mk("redistribute init")
	redistFinalize := mk("redistribute finalize")
	objRedistInit := mk("object redistribute init")
	objRedistFinalize := mk("object redistribute finalize")
	sch.SetPriority(redistInit, scheduler.High)

	run(redistInit, engineInit(s.engRedist))
	run(redistFinalize, engineFinalize(s.engRedist))
	run(objRedistInit, engineInit(s.engObjRedist))
	run(objRedistFinalize, engineFinalize(s.engObjRedist))

	// periodic belonging correction
	belongingCheck := mk("belonging check")
	run(belongingCheck, func(stream *device.Stream) error {
		for _, sp := range s.splitters {
			if sp.checkEvery > 0 && s.state.CurrentStep%sp.checkEvery == 0 {
				if err := s.runSplitter(sp); err != nil {
					return err
				}
			}
		}
		return nil
	})

	checkpoint := mk("checkpoint")
	run(checkpoint, func(stream *device.Stream) error {
		if s.cfg.CheckpointFolder == "" {
			return nil
		}
		return s.Checkpoint(s.cfg.CheckpointFolder)
	})
	if s.cfg.CheckpointEvery > 0 {
		sch.SetEvery(checkpoint, s.cfg.CheckpointEvery)
	} else {
		// no cadence configured: park the task on a stride that never
		// fires within a run
		sch.SetEvery(checkpoint, 1<<62)
	}

	// dependencies; addDependency(X, before, after): after -> X -> before
	dep := func(id scheduler.TaskID, before, after []scheduler.TaskID) {
		sch.AddDependency(id, before, after)
	}
	dep(cellListTask, nil, []scheduler.TaskID{plBeforeCellLists})
	dep(clearIntermediate, nil, []scheduler.TaskID{cellListTask})
	dep(haloIntInit, nil, []scheduler.TaskID{cellListTask})
	dep(haloIntFinalize, nil, []scheduler.TaskID{haloIntInit})
	dep(localIntermediate, nil, []scheduler.TaskID{clearIntermediate, cellListTask})
	dep(haloIntermediate, nil, []scheduler.TaskID{haloIntFinalize, clearIntermediate})
	dep(accumulateIntermediate, nil, []scheduler.TaskID{localIntermediate, haloIntermediate})
	dep(gatherIntermediate, nil, []scheduler.TaskID{accumulateIntermediate})

	dep(objExtentsHalo, nil, []scheduler.TaskID{plBeforeCellLists})
	dep(objHaloInit, nil, []scheduler.TaskID{objExtentsHalo, cellListTask})
	dep(objHaloFinalize, nil, []scheduler.TaskID{objHaloInit})
	dep(objExtraInit, nil, []scheduler.TaskID{objHaloFinalize, accumulateIntermediate})
	dep(objExtraFinalize, nil, []scheduler.TaskID{objExtraInit})

	dep(plBeforeForces, nil, []scheduler.TaskID{cellListTask})
	dep(clearFinal, nil, []scheduler.TaskID{cellListTask})
	dep(haloFinInit, nil, []scheduler.TaskID{cellListTask, accumulateIntermediate})
	dep(haloFinFinalize, nil, []scheduler.TaskID{haloFinInit})
	dep(localFinal, nil, []scheduler.TaskID{clearFinal, gatherIntermediate, plBeforeForces})
	dep(haloFinal, nil, []scheduler.TaskID{
		haloFinFinalize, objHaloFinalize, objExtraFinalize, clearFinal, gatherIntermediate, plBeforeForces,
	})
	dep(accumulateFinal, nil, []scheduler.TaskID{localFinal, haloFinal})
	dep(objReverseInit, nil, []scheduler.TaskID{haloFinal})
	dep(objReverseFinalize, nil, []scheduler.TaskID{objReverseInit})

	dep(plSerializeSend, nil, []scheduler.TaskID{accumulateFinal})
	dep(plBeforeIntegration, nil, []scheduler.TaskID{accumulateFinal, objReverseFinalize})
	dep(integrate, nil, []scheduler.TaskID{accumulateFinal, objReverseFinalize, plBeforeIntegration})
	dep(plAfterIntegration, nil, []scheduler.TaskID{integrate})
	dep(wallBounce, nil, []scheduler.TaskID{integrate})
	dep(wallCheck, nil, []scheduler.TaskID{wallBounce})
	dep(clearObjBounceForces, nil, []scheduler.TaskID{integrate})
	dep(bounceLocal, nil, []scheduler.TaskID{integrate, clearObjBounceForces, wallBounce})
	dep(bounceHalo, nil, []scheduler.TaskID{integrate, clearObjBounceForces, wallBounce})
	dep(objBounceReverseInit, nil, []scheduler.TaskID{bounceHalo})
	dep(objBounceReverseFinalize, nil, []scheduler.TaskID{objBounceReverseInit})
	dep(objExtentsRedist, nil, []scheduler.TaskID{integrate, wallBounce, bounceLocal, bounceHalo})

	dep(plBeforeDistribution, nil, []scheduler.TaskID{
		integrate, wallBounce, bounceLocal, objBounceReverseFinalize,
	})
	dep(redistInit, nil, []scheduler.TaskID{plBeforeDistribution, plAfterIntegration, wallBounce, bounceLocal, bounceHalo})
	dep(redistFinalize, nil, []scheduler.TaskID{redistInit})
	dep(objRedistInit, nil, []scheduler.TaskID{objExtentsRedist, objBounceReverseFinalize, plBeforeDistribution})
	dep(objRedistFinalize, nil, []scheduler.TaskID{objRedistInit})

	dep(belongingCheck, nil, []scheduler.TaskID{redistFinalize, objRedistFinalize})
	dep(checkpoint, nil, []scheduler.TaskID{redistFinalize, objRedistFinalize, belongingCheck})

	if err := sch.Compile(); err != nil {
		return err
	}

	// boot: ship the initial object halos so bouncers and halo kernels
	// see well-formed copies on the very first step
	for _, id := range []scheduler.TaskID{objExtentsHalo, objHaloInit, objHaloFinalize} {
		if err := sch.ForceExec(id, s.stream); err != nil {
			return fmt.Errorf("boot-time object halo: %w", err)
		}
	}
	return nil
}

func (s *Simulation) buildCellLists(stream *device.Stream) {
	for _, name := range s.pvOrder {
		// primary first: it owns the vector's order
		for _, cl := range s.cellLists[name] {
			if cl.IsPrimary() {
				cl.Build(stream)
			}
		}
		for _, cl := range s.cellLists[name] {
			if !cl.IsPrimary() {
				cl.Build(stream)
			}
		}
	}
}

func (s *Simulation) computeExtents() {
	for _, ov := range s.ovList() {
		ov.ComputeCOMExtents()
	}
}

func (s *Simulation) integrateAll(stream *device.Stream) error {
	for _, name := range s.pvOrder {
		it, ok := s.pvIntegrator[name]
		if !ok {
			continue
		}
		if rg, isRigid := it.(*integrators.Rigid); isRigid {
			if err := rg.StageObjects(s.state, s.ovs[name], stream); err != nil {
				return err
			}
			continue
		}
		if err := it.Stage(s.state, s.pvs[name], stream); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) wallNames() []string {
	names := make([]string, 0, len(s.wallsReg))
	for name := range s.wallsReg {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Simulation) ovList() []*particles.ObjectVector {
	var ovs []*particles.ObjectVector
	for _, name := range s.pvOrder {
		if ov, ok := s.ovs[name]; ok {
			ovs = append(ovs, ov)
		}
	}
	return ovs
}

func (s *Simulation) scheduleWallCheck(id scheduler.TaskID) {
	every := int64(0)
	for _, n := range s.wallCheckEvery {
		if n > 0 && (every == 0 || n < every) {
			every = n
		}
	}
	if every > 0 {
		s.sch.SetEvery(id, every)
	} else {
		s.sch.SetEvery(id, 1<<62)
	}
}
