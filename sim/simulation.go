// Package sim wires the whole core together: registration, cell-list
// selection, engine construction, the per-step task graph and the
// stepping loop.
package sim

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/belonging"
	"github.com/mesokit/mesokit/bounce"
	"github.com/mesokit/mesokit/cells"
	"github.com/mesokit/mesokit/comm"
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/domain"
	"github.com/mesokit/mesokit/exchange"
	"github.com/mesokit/mesokit/integrators"
	"github.com/mesokit/mesokit/interactions"
	"github.com/mesokit/mesokit/mkerr"
	"github.com/mesokit/mesokit/particles"
	"github.com/mesokit/mesokit/plugins"
	"github.com/mesokit/mesokit/scheduler"
	"github.com/mesokit/mesokit/walls"
)

// rcDefault is the cell-list cutoff given to vectors with no declared
// interactions, so redistribution still has an index to lean on.
const rcDefault = 1.0

// Config is the complete set of environment knobs; nothing else is read
// implicitly.
type Config struct {
	Dt         float64
	GlobalSize r3.Vec

	CheckpointFolder string
	CheckpointEvery  int64

	GPUAwareMPI bool
}

// Checkpointable is the uniform persistence contract of registered
// components.
type Checkpointable interface {
	Checkpoint(folder string) error
	Restart(folder string) error
}

type boundInteraction struct {
	inter    interactions.Interaction
	pv1, pv2 *particles.ParticleVector
}

type splitterBinding struct {
	checker         belonging.Checker
	src             *particles.ParticleVector
	inside, outside *particles.ParticleVector
	checkEvery      int64
}

// Simulation is the per-rank driver.
type Simulation struct {
	cfg    Config
	state  *domain.State
	comm   comm.Comm
	dev    *device.Device
	stream *device.Stream

	sch     *scheduler.Scheduler
	manager *interactions.Manager

	pvs     map[string]*particles.ParticleVector
	pvOrder []string
	ovs     map[string]*particles.ObjectVector

	integratorsReg  map[string]integrators.Integrator
	interactionsReg map[string]interactions.Interaction
	wallsReg        map[string]*walls.Wall
	wallCheckEvery  map[string]int64
	wallBounced     map[string][]string
	bouncersReg     map[string]bounce.Bouncer
	checkersReg     map[string]belonging.Checker
	pluginsReg      []plugins.Plugin
	pluginNames     map[string]bool
	pipe            plugins.Pipe

	pvIntegrator   map[string]integrators.Integrator
	bound          []boundInteraction
	activeBouncers []bounce.Bouncer
	splitters      []splitterBinding

	cellLists map[string][]*cells.CellList // descending cutoff per vector

	haloIntermediate, haloFinal         *exchange.ParticleHaloExchanger
	redistributor                       *exchange.ParticleRedistributor
	objHalo                             *exchange.ObjectHaloExchanger
	objRedist                           *exchange.ObjectRedistributor
	objExtra                            *exchange.ObjectExtraExchanger
	objReverse                          *exchange.ObjectReverseExchanger
	objReverseBounce                    *exchange.ObjectReverseExchanger
	engHaloIntermediate, engHaloFinal   exchange.Engine
	engRedist, engObjHalo, engObjRedist exchange.Engine
	engObjExtra, engObjReverse          exchange.Engine
	engObjReverseBounce                 exchange.Engine

	checkpointables map[string]Checkpointable
	restartFolder   string

	prepared bool
}

// New builds a driver over an already-sized communicator and device. The
// subdomain geometry follows the communicator's Cartesian coordinates.
func New(cfg Config, c comm.Comm, dev *device.Device) *Simulation {
	dom := domain.NewDomainInfo(cfg.GlobalSize, c.Dims(), c.Coords())
	state := domain.NewState(cfg.Dt, dom)
	return &Simulation{
		cfg:    cfg,
		state:  state,
		comm:   c,
		dev:    dev,
		stream: dev.DefaultStream(),

		sch:     scheduler.New(),
		manager: interactions.NewManager(state),

		pvs:             make(map[string]*particles.ParticleVector),
		ovs:             make(map[string]*particles.ObjectVector),
		integratorsReg:  make(map[string]integrators.Integrator),
		interactionsReg: make(map[string]interactions.Interaction),
		wallsReg:        make(map[string]*walls.Wall),
		wallCheckEvery:  make(map[string]int64),
		wallBounced:     make(map[string][]string),
		bouncersReg:     make(map[string]bounce.Bouncer),
		checkersReg:     make(map[string]belonging.Checker),
		pluginNames:     make(map[string]bool),
		pvIntegrator:    make(map[string]integrators.Integrator),
		cellLists:       make(map[string][]*cells.CellList),
		checkpointables: make(map[string]Checkpointable),
		pipe:            plugins.NullPipe{},
	}
}

// State exposes the clock and domain to tests and tools; components must
// treat it as read-only.
func (s *Simulation) State() *domain.State { return s.state }

// Scheduler exposes the compiled task graph for inspection.
func (s *Simulation) Scheduler() *scheduler.Scheduler { return s.sch }

// SetPostprocessPipe routes plugin payloads to a postprocess side.
func (s *Simulation) SetPostprocessPipe(p plugins.Pipe) { s.pipe = p }

// Pipe returns the active postprocess pipe.
func (s *Simulation) Pipe() plugins.Pipe { return s.pipe }

// CellLists returns a vector's cell lists, descending by cutoff. Only
// populated once the simulation has been assembled.
func (s *Simulation) CellLists(pvName string) []*cells.CellList { return s.cellLists[pvName] }

var reservedNames = map[string]bool{"": true, "none": true, "all": true}

func validateName(name string) error {
	if reservedNames[name] {
		return fmt.Errorf("%w: name %q is reserved", mkerr.ErrConfiguration, name)
	}
	if strings.HasPrefix(name, "_") {
		return fmt.Errorf("%w: name %q starts with an underscore", mkerr.ErrConfiguration, name)
	}
	return nil
}

func (s *Simulation) checkFresh(kind, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, ok := s.pvs[name]; ok {
		return fmt.Errorf("%w: duplicate %s name %q", mkerr.ErrConfiguration, kind, name)
	}
	if _, ok := s.checkpointables[name]; ok {
		return fmt.Errorf("%w: duplicate %s name %q", mkerr.ErrConfiguration, kind, name)
	}
	return nil
}

// RegisterParticleVector adds a species, runs its initial conditions (or
// its restart read) and schedules its checkpointing.
func (s *Simulation) RegisterParticleVector(pv *particles.ParticleVector, ic InitialConditions, checkpointEvery int64) error {
	if err := s.checkFresh("particle vector", pv.Name()); err != nil {
		return err
	}
	s.pvs[pv.Name()] = pv
	s.pvOrder = append(s.pvOrder, pv.Name())
	s.checkpointables[pv.Name()] = pv
	if s.restartFolder != "" {
		return pv.Restart(s.restartFolder)
	}
	if ic != nil {
		return ic.Exec(s.state.Domain, pv)
	}
	return nil
}

// RegisterObjectVector is the object-vector variant of
// RegisterParticleVector.
func (s *Simulation) RegisterObjectVector(ov *particles.ObjectVector, ic InitialConditions, checkpointEvery int64) error {
	if err := s.checkFresh("object vector", ov.Name()); err != nil {
		return err
	}
	s.pvs[ov.Name()] = &ov.ParticleVector
	s.pvOrder = append(s.pvOrder, ov.Name())
	s.ovs[ov.Name()] = ov
	s.checkpointables[ov.Name()] = ov
	if s.restartFolder != "" {
		return ov.Restart(s.restartFolder)
	}
	if ic != nil {
		return ic.Exec(s.state.Domain, &ov.ParticleVector)
	}
	return nil
}

func (s *Simulation) RegisterInteraction(i interactions.Interaction) error {
	if err := validateName(i.Name()); err != nil {
		return err
	}
	if _, ok := s.interactionsReg[i.Name()]; ok {
		return fmt.Errorf("%w: duplicate interaction name %q", mkerr.ErrConfiguration, i.Name())
	}
	s.interactionsReg[i.Name()] = i
	return nil
}

func (s *Simulation) RegisterIntegrator(it integrators.Integrator) error {
	if err := validateName(it.Name()); err != nil {
		return err
	}
	if _, ok := s.integratorsReg[it.Name()]; ok {
		return fmt.Errorf("%w: duplicate integrator name %q", mkerr.ErrConfiguration, it.Name())
	}
	s.integratorsReg[it.Name()] = it
	return nil
}

func (s *Simulation) RegisterWall(w *walls.Wall, checkEvery int64) error {
	if err := validateName(w.Name()); err != nil {
		return err
	}
	if _, ok := s.wallsReg[w.Name()]; ok {
		return fmt.Errorf("%w: duplicate wall name %q", mkerr.ErrConfiguration, w.Name())
	}
	s.wallsReg[w.Name()] = w
	s.wallCheckEvery[w.Name()] = checkEvery
	return nil
}

func (s *Simulation) RegisterBouncer(b bounce.Bouncer) error {
	if err := validateName(b.Name()); err != nil {
		return err
	}
	if _, ok := s.bouncersReg[b.Name()]; ok {
		return fmt.Errorf("%w: duplicate bouncer name %q", mkerr.ErrConfiguration, b.Name())
	}
	s.bouncersReg[b.Name()] = b
	return nil
}

func (s *Simulation) RegisterObjectBelongingChecker(c belonging.Checker) error {
	if err := validateName(c.Name()); err != nil {
		return err
	}
	if _, ok := s.checkersReg[c.Name()]; ok {
		return fmt.Errorf("%w: duplicate belonging checker name %q", mkerr.ErrConfiguration, c.Name())
	}
	s.checkersReg[c.Name()] = c
	return nil
}

func (s *Simulation) RegisterPlugin(p plugins.Plugin) error {
	if err := validateName(p.Name()); err != nil {
		return err
	}
	if s.pluginNames[p.Name()] {
		return fmt.Errorf("%w: duplicate plugin name %q", mkerr.ErrConfiguration, p.Name())
	}
	s.pluginNames[p.Name()] = true
	s.pluginsReg = append(s.pluginsReg, p)
	return nil
}

func (s *Simulation) pvByName(name string) (*particles.ParticleVector, error) {
	pv, ok := s.pvs[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown particle vector %q", mkerr.ErrConfiguration, name)
	}
	return pv, nil
}

// SetIntegrator binds a registered integrator to a vector.
func (s *Simulation) SetIntegrator(itName, pvName string) error {
	it, ok := s.integratorsReg[itName]
	if !ok {
		return fmt.Errorf("%w: unknown integrator %q", mkerr.ErrConfiguration, itName)
	}
	pv, err := s.pvByName(pvName)
	if err != nil {
		return err
	}
	if _, bound := s.pvIntegrator[pvName]; bound {
		return fmt.Errorf("%w: vector %q already has an integrator", mkerr.ErrConfiguration, pvName)
	}
	if err := it.SetPrerequisites(pv); err != nil {
		return err
	}
	if rg, isRigid := it.(*integrators.Rigid); isRigid {
		ov, isOV := s.ovs[pvName]
		if !isOV {
			return fmt.Errorf("%w: rigid integrator %q needs an object vector, got %q",
				mkerr.ErrConfiguration, itName, pvName)
		}
		if err := rg.SetObjectPrerequisites(ov); err != nil {
			return err
		}
	}
	s.pvIntegrator[pvName] = it
	return nil
}

// SetInteraction binds a registered interaction to a vector pair.
func (s *Simulation) SetInteraction(iName, pv1Name, pv2Name string) error {
	inter, ok := s.interactionsReg[iName]
	if !ok {
		return fmt.Errorf("%w: unknown interaction %q", mkerr.ErrConfiguration, iName)
	}
	pv1, err := s.pvByName(pv1Name)
	if err != nil {
		return err
	}
	pv2, err := s.pvByName(pv2Name)
	if err != nil {
		return err
	}
	s.bound = append(s.bound, boundInteraction{inter: inter, pv1: pv1, pv2: pv2})
	return nil
}

// SetBouncer activates a registered bouncer; the named vectors must be
// the ones it was built with.
func (s *Simulation) SetBouncer(bName, ovName, pvName string) error {
	b, ok := s.bouncersReg[bName]
	if !ok {
		return fmt.Errorf("%w: unknown bouncer %q", mkerr.ErrConfiguration, bName)
	}
	if b.OV().Name() != ovName || b.PV().Name() != pvName {
		return fmt.Errorf("%w: bouncer %q is built for (%s, %s), not (%s, %s)",
			mkerr.ErrConfiguration, bName, b.OV().Name(), b.PV().Name(), ovName, pvName)
	}
	if _, ok := s.ovs[ovName]; !ok {
		return fmt.Errorf("%w: bouncer %q: %q is not a registered object vector",
			mkerr.ErrConfiguration, bName, ovName)
	}
	if _, err := s.pvByName(pvName); err != nil {
		return err
	}
	s.activeBouncers = append(s.activeBouncers, b)
	return nil
}

// SetWallBounce makes a wall reflect a vector.
func (s *Simulation) SetWallBounce(wName, pvName string) error {
	w, ok := s.wallsReg[wName]
	if !ok {
		return fmt.Errorf("%w: unknown wall %q", mkerr.ErrConfiguration, wName)
	}
	pv, err := s.pvByName(pvName)
	if err != nil {
		return err
	}
	w.AttachBounce(pv)
	s.wallBounced[wName] = append(s.wallBounced[wName], pvName)
	return nil
}

// ApplyObjectBelongingChecker splits src into inside/outside vectors at
// startup and, when checkEvery > 0, re-checks periodically. The name
// "none" discards that class.
func (s *Simulation) ApplyObjectBelongingChecker(cName, srcName, insideName, outsideName string, checkEvery int64) error {
	c, ok := s.checkersReg[cName]
	if !ok {
		return fmt.Errorf("%w: unknown belonging checker %q", mkerr.ErrConfiguration, cName)
	}
	src, err := s.pvByName(srcName)
	if err != nil {
		return err
	}
	resolve := func(name string) (*particles.ParticleVector, error) {
		if name == "none" {
			return nil, nil
		}
		return s.pvByName(name)
	}
	inside, err := resolve(insideName)
	if err != nil {
		return err
	}
	outside, err := resolve(outsideName)
	if err != nil {
		return err
	}
	s.splitters = append(s.splitters, splitterBinding{
		checker: c, src: src, inside: inside, outside: outside, checkEvery: checkEvery,
	})
	return nil
}

// Restart switches the driver into restart mode: the clock is read back
// immediately and every subsequently registered component reads its own
// saved state.
func (s *Simulation) Restart(folder string) error {
	if err := s.state.Restart(folder); err != nil {
		return err
	}
	s.restartFolder = folder
	return nil
}

// Checkpoint writes the clock and every registered component into folder.
func (s *Simulation) Checkpoint(folder string) error {
	if err := s.state.Checkpoint(folder); err != nil {
		return err
	}
	names := make([]string, 0, len(s.checkpointables))
	for name := range s.checkpointables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checkpointables[name].Checkpoint(folder); err != nil {
			return err
		}
	}
	slog.Info("checkpoint written", "component", "sim", "folder", folder,
		"step", s.state.CurrentStep)
	return nil
}

// SaveDependencyGraph exports the compiled task graph as GraphML.
func (s *Simulation) SaveDependencyGraph(path string) error {
	if !s.prepared {
		if err := s.prepare(); err != nil {
			return err
		}
	}
	return s.sch.SaveGraphMLFile(path)
}
