package axon

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func mustAdd(t *testing.T, m *TaskManager, task Task) {
	t.Helper()
	if err := m.Add(task); err != nil {
		t.Fatalf("Add(%s): %v", task.ID, err)
	}
}

func TestAddRejectsUnknownDependency(t *testing.T) {
	m := NewTaskManager()
	err := m.Add(Task{ID: "a", Description: "a", Dependencies: []string{"ghost"}})
	var graphErr *ErrTaskGraph
	if !errors.As(err, &graphErr) {
		t.Errorf("err = %v, want *ErrTaskGraph", err)
	}
}

func TestAddRejectsDuplicateID(t *testing.T) {
	m := NewTaskManager()
	mustAdd(t, m, Task{ID: "a", Description: "a"})
	if err := m.Add(Task{ID: "a", Description: "again"}); err == nil {
		t.Error("duplicate id accepted")
	}
}

func TestDetectCyclesAndTopoOrderAgree(t *testing.T) {
	m := NewTaskManager()
	mustAdd(t, m, Task{ID: "a", Description: "a"})
	mustAdd(t, m, Task{ID: "b", Description: "b", Dependencies: []string{"a"}})
	mustAdd(t, m, Task{ID: "c", Description: "c", Dependencies: []string{"b"}})

	if m.DetectCycles() {
		t.Error("acyclic graph reported a cycle")
	}
	order, err := m.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
		t.Errorf("order = %v", order)
	}
}

func TestAddRefusesCycle(t *testing.T) {
	// Insert-time enforcement: edges reference existing tasks only, so
	// Add can never close a loop through earlier tasks. A self-cycle is
	// refused too: its dependency on itself is not yet registered, so
	// Add rejects it before inserting anything.
	m := NewTaskManager()
	mustAdd(t, m, Task{ID: "a", Description: "a"})
	mustAdd(t, m, Task{ID: "b", Description: "b", Dependencies: []string{"a"}})
	err := m.Add(Task{ID: "c", Description: "c", Dependencies: []string{"c"}})
	if err == nil {
		t.Error("self-cycle accepted")
	}
	if _, ok := m.Get("c"); ok {
		t.Error("rejected task was not rolled back")
	}
	if m.DetectCycles() {
		t.Error("manager left in a cyclic state")
	}
}

func TestTopologicalOrderPriorityAware(t *testing.T) {
	m := NewTaskManager()
	mustAdd(t, m, Task{ID: "low", Description: "low", Priority: 2})
	mustAdd(t, m, Task{ID: "high", Description: "high", Priority: 9})
	mustAdd(t, m, Task{ID: "mid", Description: "mid", Priority: 5})
	mustAdd(t, m, Task{ID: "after", Description: "after", Priority: 10, Dependencies: []string{"low"}})

	order, err := m.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	// Among indegree-zero nodes, highest priority first: high(9),
	// mid(5), low(2); "after" unlocks only once low completes.
	want := []string{"high", "mid", "low", "after"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTopologicalOrderTieBreaksByInsertion(t *testing.T) {
	m := NewTaskManager()
	mustAdd(t, m, Task{ID: "first", Description: "first", Priority: 5})
	mustAdd(t, m, Task{ID: "second", Description: "second", Priority: 5})
	mustAdd(t, m, Task{ID: "third", Description: "third", Priority: 5})

	order, err := m.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	want := []string{"first", "second", "third"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want insertion order on ties", order)
	}
}

func TestTopologicalOrderRespectsDependencies(t *testing.T) {
	m := NewTaskManager()
	mustAdd(t, m, Task{ID: "a", Description: "a", Priority: 1})
	mustAdd(t, m, Task{ID: "b", Description: "b", Priority: 10, Dependencies: []string{"a"}})
	mustAdd(t, m, Task{ID: "c", Description: "c", Priority: 5})
	mustAdd(t, m, Task{ID: "d", Description: "d", Priority: 1, Dependencies: []string{"b", "c"}})

	order, err := m.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	for _, task := range m.All() {
		for _, dep := range task.Dependencies {
			if pos[dep] > pos[task.ID] {
				t.Errorf("dependency %s ordered after %s: %v", dep, task.ID, order)
			}
		}
	}
}

func TestStateMachineTransitions(t *testing.T) {
	cases := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{TaskPending, TaskRunning, true},
		{TaskPending, TaskSkipped, true},
		{TaskPending, TaskCompleted, false},
		{TaskPending, TaskFailed, false},
		{TaskRunning, TaskCompleted, true},
		{TaskRunning, TaskFailed, true},
		{TaskRunning, TaskSkipped, false},
		{TaskRunning, TaskPending, false},
		{TaskCompleted, TaskRunning, false},
		{TaskFailed, TaskPending, false},
		{TaskSkipped, TaskRunning, false},
	}
	for _, tc := range cases {
		m := NewTaskManager()
		mustAdd(t, m, Task{ID: "t", Description: "t", Status: tc.from})
		err := m.Update("t", tc.to, "")
		if tc.ok && err != nil {
			t.Errorf("%s -> %s rejected: %v", tc.from, tc.to, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s -> %s accepted, want rejection", tc.from, tc.to)
		}
	}
}

func TestUpdateUnknownTask(t *testing.T) {
	m := NewTaskManager()
	if err := m.Update("ghost", TaskRunning, ""); err == nil {
		t.Error("update of unknown task accepted")
	}
}

func TestUpdateRecordsResult(t *testing.T) {
	m := NewTaskManager()
	mustAdd(t, m, Task{ID: "t", Description: "t"})
	if err := m.Update("t", TaskRunning, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Update("t", TaskCompleted, "it worked"); err != nil {
		t.Fatal(err)
	}
	task, _ := m.Get("t")
	if task.Result != "it worked" {
		t.Errorf("result = %q", task.Result)
	}
}

func TestReadyTasksRequireCompletedDependencies(t *testing.T) {
	m := NewTaskManager()
	mustAdd(t, m, Task{ID: "a", Description: "a"})
	mustAdd(t, m, Task{ID: "b", Description: "b", Dependencies: []string{"a"}})

	ready := m.ReadyTasks()
	if len(ready) != 1 || ready[0].ID != "a" {
		t.Fatalf("ready = %+v, want just a", ready)
	}

	if err := m.Update("a", TaskRunning, ""); err != nil {
		t.Fatal(err)
	}
	if err := m.Update("a", TaskCompleted, ""); err != nil {
		t.Fatal(err)
	}
	ready = m.ReadyTasks()
	if len(ready) != 1 || ready[0].ID != "b" {
		t.Errorf("ready after completing a = %+v, want just b", ready)
	}
}

func TestNextTaskPicksHighestPriorityReady(t *testing.T) {
	m := NewTaskManager()
	mustAdd(t, m, Task{ID: "small", Description: "small", Priority: 2})
	mustAdd(t, m, Task{ID: "big", Description: "big", Priority: 8})

	next, ok := m.NextTask()
	if !ok || next.ID != "big" {
		t.Errorf("next = %+v", next)
	}
}

func TestVisualizeMermaid(t *testing.T) {
	m := NewTaskManager()
	mustAdd(t, m, Task{ID: "a", Description: "fetch"})
	mustAdd(t, m, Task{ID: "b", Description: "parse", Dependencies: []string{"a"}})

	out := m.Visualize()
	if !strings.HasPrefix(out, "graph TD\n") {
		t.Errorf("not mermaid: %q", out)
	}
	if !strings.Contains(out, "a[fetch] --> b[parse]") {
		t.Errorf("edge missing: %q", out)
	}
}

func TestPriorityClamped(t *testing.T) {
	m := NewTaskManager()
	mustAdd(t, m, Task{ID: "hot", Description: "hot", Priority: 99})
	mustAdd(t, m, Task{ID: "cold", Description: "cold", Priority: -3})
	hot, _ := m.Get("hot")
	cold, _ := m.Get("cold")
	if hot.Priority != 10 || cold.Priority != 1 {
		t.Errorf("priorities = %d, %d; want clamped to 10 and 1", hot.Priority, cold.Priority)
	}
}
