// Package scheduler executes the per-step task DAG. The graph is built
// once after registration, compiled into a deterministic execution plan
// and replayed every step.
package scheduler

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/mkerr"
)

// Priority orders tasks whose dependencies are satisfied at the same
// time. High is used on halo pack/unpack and force clears so network
// latency hides behind interior work.
type Priority int

const (
	Low Priority = iota
	High
)

// TaskID identifies a task; ids double as graph node ids, so plan order
// tie-breaks are stable across runs on identical input.
type TaskID int64

type task struct {
	id       TaskID
	name     string
	runs     []func(*device.Stream) error
	every    int64
	priority Priority
	level    int
}

// Scheduler is the static DAG plus its compiled execution plan.
type Scheduler struct {
	g      *simple.DirectedGraph
	tasks  map[TaskID]*task
	byName map[string]TaskID
	plan   []*task
	nextID int64
}

func New() *Scheduler {
	return &Scheduler{
		g:      simple.NewDirectedGraph(),
		tasks:  make(map[TaskID]*task),
		byName: make(map[string]TaskID),
	}
}

// CreateTask registers a named task and returns its id. Task names are
// unique.
func (s *Scheduler) CreateTask(name string) (TaskID, error) {
	if _, ok := s.byName[name]; ok {
		return 0, fmt.Errorf("%w: duplicate task %q", mkerr.ErrConfiguration, name)
	}
	id := TaskID(s.nextID)
	s.nextID++
	t := &task{id: id, name: name, every: 1}
	s.tasks[id] = t
	s.byName[name] = id
	s.g.AddNode(simple.Node(id))
	return id, nil
}

// AddRun appends a callable to a task; a task may hold several.
func (s *Scheduler) AddRun(id TaskID, run func(*device.Stream) error) {
	s.tasks[id].runs = append(s.tasks[id].runs, run)
}

// SetEvery makes a task run only on steps divisible by n (n >= 1).
func (s *Scheduler) SetEvery(id TaskID, n int64) {
	if n < 1 {
		n = 1
	}
	s.tasks[id].every = n
}

// SetPriority raises or lowers a task among its peers.
func (s *Scheduler) SetPriority(id TaskID, p Priority) {
	s.tasks[id].priority = p
}

// AddDependency wires a task both ways: everything in after must finish
// before id runs; id must finish before anything in before runs.
func (s *Scheduler) AddDependency(id TaskID, before, after []TaskID) {
	for _, b := range before {
		s.g.SetEdge(s.g.NewEdge(simple.Node(id), simple.Node(b)))
	}
	for _, a := range after {
		s.g.SetEdge(s.g.NewEdge(simple.Node(a), simple.Node(id)))
	}
}

// Lookup resolves a task name.
func (s *Scheduler) Lookup(name string) (TaskID, bool) {
	id, ok := s.byName[name]
	return id, ok
}

// NumTasks is the constant size of the graph.
func (s *Scheduler) NumTasks() int { return len(s.tasks) }

// Compile topologically orders the tasks into the execution plan. Ties
// are broken deterministically: by dependency depth, then priority (High
// first), then task id.
func (s *Scheduler) Compile() error {
	sorted, err := topo.SortStabilized(s.g, nil)
	if err != nil {
		return fmt.Errorf("%w: task graph has cycles: %v", mkerr.ErrInvariant, err)
	}

	for _, n := range sorted {
		t := s.tasks[TaskID(n.ID())]
		t.level = 0
		preds := s.g.To(n.ID())
		for preds.Next() {
			p := s.tasks[TaskID(preds.Node().ID())]
			if p.level+1 > t.level {
				t.level = p.level + 1
			}
		}
	}

	s.plan = make([]*task, 0, len(sorted))
	for _, n := range sorted {
		s.plan = append(s.plan, s.tasks[TaskID(n.ID())])
	}
	sort.SliceStable(s.plan, func(i, j int) bool {
		a, b := s.plan[i], s.plan[j]
		if a.level != b.level {
			return a.level < b.level
		}
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return a.id < b.id
	})
	return nil
}

// Run executes one step of the plan. Any task failure is fatal to the
// step and is returned with the task name attached.
func (s *Scheduler) Run(step int64, stream *device.Stream) error {
	if s.plan == nil {
		return fmt.Errorf("%w: scheduler not compiled", mkerr.ErrInvariant)
	}
	for _, t := range s.plan {
		if step%t.every != 0 {
			continue
		}
		if err := s.exec(t, stream); err != nil {
			return err
		}
	}
	return nil
}

// ForceExec runs one task unconditionally, outside the plan. Used for
// boot-time initialisation.
func (s *Scheduler) ForceExec(id TaskID, stream *device.Stream) error {
	return s.exec(s.tasks[id], stream)
}

func (s *Scheduler) exec(t *task, stream *device.Stream) error {
	for _, run := range t.runs {
		if err := run(stream); err != nil {
			return fmt.Errorf("task %q: %w", t.name, err)
		}
	}
	return nil
}
