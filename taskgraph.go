package axon

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TaskStatus is the lifecycle state of a planned task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// legalTransitions encodes the task state machine: Pending may move to
// Running or Skipped; Running to Completed or Failed; terminal states
// never re-enter.
var legalTransitions = map[TaskStatus][]TaskStatus{
	TaskPending: {TaskRunning, TaskSkipped},
	TaskRunning: {TaskCompleted, TaskFailed},
}

// Task is one node of the planning DAG. Edges are string ids into the
// manager's flat map, so the graph itself carries no pointers.
type Task struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	Dependencies []string   `json:"dependencies,omitempty"`
	// Priority ranges 1-10; higher runs earlier among ready tasks.
	Priority int    `json:"priority"`
	Result   string `json:"result,omitempty"`
}

// TaskManager maintains the task DAG for the planner tools. Safe for
// concurrent use; the driver and tools share one instance.
type TaskManager struct {
	mu    sync.RWMutex
	tasks map[string]Task
	// order preserves insertion order for deterministic tie-breaks.
	order []string
}

// NewTaskManager creates an empty manager.
func NewTaskManager() *TaskManager {
	return &TaskManager{tasks: make(map[string]Task)}
}

// Add appends a task. Dependencies must reference existing tasks and
// the insert must not create a cycle.
func (m *TaskManager) Add(t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		return &ErrTaskGraph{Message: "task id must not be empty"}
	}
	if _, exists := m.tasks[t.ID]; exists {
		return &ErrTaskGraph{Message: fmt.Sprintf("task %q already exists", t.ID)}
	}
	for _, dep := range t.Dependencies {
		if _, ok := m.tasks[dep]; !ok {
			return &ErrTaskGraph{Message: fmt.Sprintf("unknown dependency %q", dep)}
		}
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.Priority < 1 {
		t.Priority = 1
	} else if t.Priority > 10 {
		t.Priority = 10
	}

	m.tasks[t.ID] = t
	m.order = append(m.order, t.ID)
	if m.hasCycleLocked() {
		delete(m.tasks, t.ID)
		m.order = m.order[:len(m.order)-1]
		return &ErrTaskGraph{Message: fmt.Sprintf("adding task %q would create a cycle", t.ID)}
	}
	return nil
}

// Update transitions a task to a new status, enforcing the state
// machine. Result, when non-empty, is recorded on the task.
func (m *TaskManager) Update(id string, status TaskStatus, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return &ErrTaskGraph{Message: fmt.Sprintf("unknown task %q", id)}
	}
	legal := false
	for _, next := range legalTransitions[t.Status] {
		if next == status {
			legal = true
			break
		}
	}
	if !legal {
		return &ErrTaskGraph{Message: fmt.Sprintf("illegal transition %s -> %s for task %q", t.Status, status, id)}
	}
	t.Status = status
	if result != "" {
		t.Result = result
	}
	m.tasks[id] = t
	return nil
}

// Get returns a task by id.
func (m *TaskManager) Get(id string) (Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	return t, ok
}

// All returns every task in insertion order.
func (m *TaskManager) All() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tasks[id])
	}
	return out
}

// DetectCycles reports whether the dependency graph contains a cycle.
func (m *TaskManager) DetectCycles() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasCycleLocked()
}

// hasCycleLocked runs a three-color depth-first search.
func (m *TaskManager) hasCycleLocked() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(m.tasks))
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range m.tasks[id].Dependencies {
			switch color[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	for id := range m.tasks {
		if color[id] == white && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalOrder returns a deterministic execution order using the
// priority-aware variant of Kahn's algorithm: among nodes with indegree
// zero, the highest priority wins; ties break by insertion order.
// Fails when the graph has a cycle.
func (m *TaskManager) TopologicalOrder() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.hasCycleLocked() {
		return nil, &ErrTaskGraph{Message: "cycle detected, no topological order exists"}
	}

	indegree := make(map[string]int, len(m.tasks))
	dependents := make(map[string][]string, len(m.tasks))
	for _, id := range m.order {
		indegree[id] = len(m.tasks[id].Dependencies)
		for _, dep := range m.tasks[id].Dependencies {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	insertionRank := make(map[string]int, len(m.order))
	for i, id := range m.order {
		insertionRank[id] = i
	}

	var ready []string
	for _, id := range m.order {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	pickNext := func() string {
		best := 0
		for i := 1; i < len(ready); i++ {
			a, b := m.tasks[ready[i]], m.tasks[ready[best]]
			if a.Priority > b.Priority ||
				(a.Priority == b.Priority && insertionRank[ready[i]] < insertionRank[ready[best]]) {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		return id
	}

	result := make([]string, 0, len(m.tasks))
	for len(ready) > 0 {
		id := pickNext()
		result = append(result, id)
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return result, nil
}

// ReadyTasks returns Pending tasks whose dependencies are all Completed,
// in insertion order.
func (m *TaskManager) ReadyTasks() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Task
	for _, id := range m.order {
		t := m.tasks[id]
		if t.Status != TaskPending {
			continue
		}
		ok := true
		for _, dep := range t.Dependencies {
			if m.tasks[dep].Status != TaskCompleted {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, t)
		}
	}
	return out
}

// NextTask returns the highest-priority ready task, if any.
func (m *TaskManager) NextTask() (Task, bool) {
	ready := m.ReadyTasks()
	if len(ready) == 0 {
		return Task{}, false
	}
	sort.SliceStable(ready, func(i, j int) bool { return ready[i].Priority > ready[j].Priority })
	return ready[0], true
}

// Progress returns the completed and total task counts.
func (m *TaskManager) Progress() (completed, total int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tasks {
		if t.Status == TaskCompleted {
			completed++
		}
	}
	return completed, len(m.tasks)
}

// Summary returns a one-line progress digest suitable for injection
// into LLM context.
func (m *TaskManager) Summary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var completed, pending, running int
	for _, t := range m.tasks {
		switch t.Status {
		case TaskCompleted:
			completed++
		case TaskPending:
			pending++
		case TaskRunning:
			running++
		}
	}
	return fmt.Sprintf("Task progress: %d/%d completed | %d pending | %d running",
		completed, len(m.tasks), pending, running)
}

// Visualize renders the dependency graph in Mermaid "graph TD" format.
// Tasks without edges appear as bare nodes so nothing is invisible.
func (m *TaskManager) Visualize() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, id := range m.order {
		t := m.tasks[id]
		if len(t.Dependencies) == 0 {
			fmt.Fprintf(&b, "  %s[%s]\n", id, t.Description)
			continue
		}
		for _, dep := range t.Dependencies {
			fmt.Fprintf(&b, "  %s[%s] --> %s[%s]\n", dep, m.tasks[dep].Description, id, t.Description)
		}
	}
	return b.String()
}
