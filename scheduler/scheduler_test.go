package scheduler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/mkerr"
)

func collector(order *[]string, name string) func(*device.Stream) error {
	return func(*device.Stream) error {
		*order = append(*order, name)
		return nil
	}
}

func TestScheduler_TopologicalOrder(t *testing.T) {
	s := New()
	var order []string

	a, _ := s.CreateTask("a")
	b, _ := s.CreateTask("b")
	c, _ := s.CreateTask("c")
	s.AddRun(a, collector(&order, "a"))
	s.AddRun(b, collector(&order, "b"))
	s.AddRun(c, collector(&order, "c"))

	// c before a; b after a  =>  c, a, b
	s.AddDependency(c, []TaskID{a}, nil)
	s.AddDependency(b, nil, []TaskID{a})

	require.NoError(t, s.Compile())
	require.NoError(t, s.Run(0, nil))
	assert.Equal(t, []string{"c", "a", "b"}, order)
}

func TestScheduler_PriorityWithinLevel(t *testing.T) {
	s := New()
	var order []string

	root, _ := s.CreateTask("root")
	slow, _ := s.CreateTask("slow")
	urgent, _ := s.CreateTask("urgent")
	s.AddRun(root, collector(&order, "root"))
	s.AddRun(slow, collector(&order, "slow"))
	s.AddRun(urgent, collector(&order, "urgent"))
	s.AddDependency(slow, nil, []TaskID{root})
	s.AddDependency(urgent, nil, []TaskID{root})
	s.SetPriority(urgent, High)

	require.NoError(t, s.Compile())
	require.NoError(t, s.Run(0, nil))
	assert.Equal(t, []string{"root", "urgent", "slow"}, order)
}

func TestScheduler_DeterministicTieBreak(t *testing.T) {
	build := func() []string {
		s := New()
		var order []string
		for _, name := range []string{"t0", "t1", "t2", "t3"} {
			id, _ := s.CreateTask(name)
			s.AddRun(id, collector(&order, name))
		}
		require.NoError(t, s.Compile())
		require.NoError(t, s.Run(0, nil))
		return order
	}
	assert.Equal(t, build(), build())
	assert.Equal(t, []string{"t0", "t1", "t2", "t3"}, build())
}

func TestScheduler_Stride(t *testing.T) {
	s := New()
	var order []string
	every, _ := s.CreateTask("every")
	third, _ := s.CreateTask("third")
	s.AddRun(every, collector(&order, "e"))
	s.AddRun(third, collector(&order, "t"))
	s.SetEvery(third, 3)
	s.AddDependency(third, nil, []TaskID{every})
	require.NoError(t, s.Compile())

	for step := int64(0); step < 6; step++ {
		require.NoError(t, s.Run(step, nil))
	}
	assert.Equal(t, []string{"e", "t", "e", "e", "e", "t", "e", "e"}, order)
}

func TestScheduler_CycleIsFatal(t *testing.T) {
	s := New()
	a, _ := s.CreateTask("a")
	b, _ := s.CreateTask("b")
	s.AddDependency(a, []TaskID{b}, nil)
	s.AddDependency(b, []TaskID{a}, nil)
	err := s.Compile()
	require.ErrorIs(t, err, mkerr.ErrInvariant)
}

func TestScheduler_DuplicateName(t *testing.T) {
	s := New()
	_, err := s.CreateTask("x")
	require.NoError(t, err)
	_, err = s.CreateTask("x")
	require.ErrorIs(t, err, mkerr.ErrConfiguration)
}

func TestScheduler_TaskFailureNamed(t *testing.T) {
	s := New()
	id, _ := s.CreateTask("doomed")
	s.AddRun(id, func(*device.Stream) error { return assert.AnError })
	require.NoError(t, s.Compile())
	err := s.Run(0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doomed")
}

func TestScheduler_ForceExec(t *testing.T) {
	s := New()
	var order []string
	id, _ := s.CreateTask("boot")
	s.AddRun(id, collector(&order, "boot"))
	// no compile needed for a forced execution
	require.NoError(t, s.ForceExec(id, nil))
	assert.Equal(t, []string{"boot"}, order)
}

func TestScheduler_SaveGraphML(t *testing.T) {
	s := New()
	a, _ := s.CreateTask("first task")
	b, _ := s.CreateTask("second task")
	s.AddDependency(b, nil, []TaskID{a})

	var buf bytes.Buffer
	require.NoError(t, s.SaveGraphML(&buf))
	out := buf.String()
	assert.True(t, strings.Contains(out, "graphml"))
	assert.Contains(t, out, "first task")
	assert.Contains(t, out, "second task")
	assert.Contains(t, out, `source="n0"`)
	assert.Contains(t, out, `target="n1"`)
}
