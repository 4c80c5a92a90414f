package axon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Built-in control tool names. Registered by the driver according to
// configuration and never user-removable while the feature is enabled.
const (
	ToolFinalAnswer           = "final_answer"
	ToolPlan                  = "plan"
	ToolCreateTask            = "create_task"
	ToolUpdateTask            = "update_task"
	ToolListTasks             = "list_tasks"
	ToolGetExecutionOrder     = "get_execution_order"
	ToolVisualizeDependencies = "visualize_dependencies"
	ToolAgentDispatch         = "agent_tool"
	ToolHumanInLoop           = "human_in_loop"
	ToolRemember              = "remember"
	ToolRecall                = "recall"
	ToolForget                = "forget"
)

// memoryNamespace returns the namespace the automatic memory tools are
// scoped to for the named agent.
func memoryNamespace(agentName string) []string {
	return []string{agentName, "memories"}
}

// --- final_answer ---

// finalAnswerTool exists for schema exposure. The driver intercepts
// final_answer calls before dispatch and terminates the loop with the
// argument; Execute only runs if a caller invokes it directly.
type finalAnswerTool struct{}

func (finalAnswerTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{
		Name:        ToolFinalAnswer,
		Description: "Provide the final answer to the user's task. Calling this tool ends the execution.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"answer":{"type":"string","description":"The final answer text"}},"required":["answer"]}`),
	}}
}

func (finalAnswerTool) Execute(_ context.Context, _ string, args json.RawMessage) (ToolResult, error) {
	answer, err := parseFinalAnswer(args)
	if err != nil {
		return ToolResult{Error: err.Error()}, nil
	}
	return ToolResult{Content: answer}, nil
}

// parseFinalAnswer extracts the answer string from final_answer args.
// Accepts both {"answer": "..."} and a bare JSON string, since some
// models emit the argument unwrapped.
func parseFinalAnswer(args json.RawMessage) (string, error) {
	var obj struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(args, &obj); err == nil && obj.Answer != "" {
		return obj.Answer, nil
	}
	var bare string
	if err := json.Unmarshal(args, &bare); err == nil {
		return bare, nil
	}
	return "", fmt.Errorf("final_answer requires an answer argument")
}

// --- plan ---

// planTool records a declared plan and acknowledges it. The plan text
// lives in the conversation; the tool exists so intent declaration is a
// structured act rather than free prose.
type planTool struct{}

func (planTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{
		Name:        ToolPlan,
		Description: "Declare your execution plan before acting. Use once at the start of a multi-step task.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"plan":{"type":"string","description":"The step-by-step plan"}},"required":["plan"]}`),
	}}
}

func (planTool) Execute(_ context.Context, _ string, args json.RawMessage) (ToolResult, error) {
	var params struct {
		Plan string `json:"plan"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.Plan == "" {
		return ToolResult{Error: "plan requires a non-empty plan argument"}, nil
	}
	return ToolResult{Content: "Plan recorded. Create tasks for each step, then execute them in dependency order."}, nil
}

// --- task tools ---

// taskTools exposes the TaskManager DAG operations to the model.
type taskTools struct {
	manager *TaskManager
}

func (t *taskTools) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolCreateTask,
			Description: "Create a task in the execution plan. Dependencies must name existing task ids.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"id":{"type":"string","description":"Unique task id; generated when omitted"},
				"description":{"type":"string","description":"What the task accomplishes"},
				"dependencies":{"type":"array","items":{"type":"string"},"description":"Ids of tasks that must complete first"},
				"priority":{"type":"integer","minimum":1,"maximum":10,"description":"1-10, higher runs earlier"}},
				"required":["description"]}`),
		},
		{
			Name:        ToolUpdateTask,
			Description: "Update a task's status. Legal transitions: pending->running|skipped, running->completed|failed.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"id":{"type":"string"},
				"status":{"type":"string","enum":["pending","running","completed","failed","skipped"]},
				"result":{"type":"string","description":"Optional result text"}},
				"required":["id","status"]}`),
		},
		{
			Name:        ToolListTasks,
			Description: "List all tasks with their status, dependencies, and results.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        ToolGetExecutionOrder,
			Description: "Return the dependency-respecting execution order of all tasks.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        ToolVisualizeDependencies,
			Description: "Render the task dependency graph in Mermaid format.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}

func (t *taskTools) Execute(_ context.Context, name string, args json.RawMessage) (ToolResult, error) {
	switch name {
	case ToolCreateTask:
		var params struct {
			ID           string   `json:"id"`
			Description  string   `json:"description"`
			Dependencies []string `json:"dependencies"`
			Priority     int      `json:"priority"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		if params.ID == "" {
			params.ID = NewID()
		}
		if params.Priority == 0 {
			params.Priority = 5
		}
		task := Task{
			ID:           params.ID,
			Description:  params.Description,
			Status:       TaskPending,
			Dependencies: params.Dependencies,
			Priority:     params.Priority,
		}
		if err := t.manager.Add(task); err != nil {
			return ToolResult{Error: err.Error()}, nil
		}
		return ToolResult{Content: fmt.Sprintf("Task %s created.", params.ID)}, nil

	case ToolUpdateTask:
		var params struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Result string `json:"result"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return ToolResult{Error: "invalid args: " + err.Error()}, nil
		}
		if err := t.manager.Update(params.ID, TaskStatus(params.Status), params.Result); err != nil {
			return ToolResult{Error: err.Error()}, nil
		}
		return ToolResult{Content: fmt.Sprintf("Task %s is now %s. %s", params.ID, params.Status, t.manager.Summary())}, nil

	case ToolListTasks:
		tasks := t.manager.All()
		if len(tasks) == 0 {
			return ToolResult{Content: "No tasks."}, nil
		}
		var b strings.Builder
		for _, task := range tasks {
			fmt.Fprintf(&b, "- %s [%s] (priority %d) %s", task.ID, task.Status, task.Priority, task.Description)
			if len(task.Dependencies) > 0 {
				fmt.Fprintf(&b, " deps=%s", strings.Join(task.Dependencies, ","))
			}
			if task.Result != "" {
				fmt.Fprintf(&b, " result=%s", task.Result)
			}
			b.WriteByte('\n')
		}
		b.WriteString(t.manager.Summary())
		return ToolResult{Content: b.String()}, nil

	case ToolGetExecutionOrder:
		order, err := t.manager.TopologicalOrder()
		if err != nil {
			return ToolResult{Error: err.Error()}, nil
		}
		return ToolResult{Content: strings.Join(order, " -> ")}, nil

	case ToolVisualizeDependencies:
		return ToolResult{Content: t.manager.Visualize()}, nil
	}
	return ToolResult{Error: "unknown task tool: " + name}, nil
}

// --- agent_tool ---

// agentDispatchTool routes a task to a named sub-agent through the
// registry's per-handle lock.
type agentDispatchTool struct {
	registry *SubAgentRegistry
}

func (a *agentDispatchTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{
		Name:        ToolAgentDispatch,
		Description: "Delegate a task to a named sub-agent. Calls to the same sub-agent are serialized; different sub-agents run in parallel.",
		Parameters: json.RawMessage(`{"type":"object","properties":{
			"name":{"type":"string","description":"Registered sub-agent name"},
			"task":{"type":"string","description":"The task for the sub-agent, self-contained"}},
			"required":["name","task"]}`),
	}}
}

func (a *agentDispatchTool) Execute(ctx context.Context, _ string, args json.RawMessage) (ToolResult, error) {
	var params struct {
		Name string `json:"name"`
		Task string `json:"task"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	answer, err := a.registry.Dispatch(ctx, params.Name, params.Task)
	if err != nil {
		return ToolResult{Error: err.Error()}, nil
	}
	return ToolResult{Content: answer}, nil
}

// --- human_in_loop ---

// humanInLoopTool requests free-text input from a human through the
// approval gate's text channel.
type humanInLoopTool struct {
	gate func() ApprovalGate
}

func (h *humanInLoopTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{
		Name:        ToolHumanInLoop,
		Description: "Ask the human operator a question when you need clarification or information you cannot obtain otherwise.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"question":{"type":"string","description":"The question for the human"}},"required":["question"]}`),
	}}
}

func (h *humanInLoopTool) Execute(ctx context.Context, _ string, args json.RawMessage) (ToolResult, error) {
	var params struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.Question == "" {
		return ToolResult{Error: "human_in_loop requires a question argument"}, nil
	}
	gate := h.gate()
	if gate == nil {
		return ToolResult{Error: "no approval gate configured"}, nil
	}
	resp, err := gate.Request(ctx, ApprovalRequest{Prompt: params.Question})
	if err != nil {
		return ToolResult{}, err
	}
	if resp.Decision == ApprovalExpired {
		return ToolResult{Error: "no human response before timeout"}, nil
	}
	return ToolResult{Content: resp.Text}, nil
}

// --- memory tools ---

// memoryTools exposes remember / recall / forget over the KV store,
// scoped to the owning agent's memory namespace.
type memoryTools struct {
	store     KvStore
	namespace []string
}

func (m *memoryTools) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolRemember,
			Description: "Save a piece of information to long-term memory.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"content":{"type":"string","description":"The information to remember"},
				"importance":{"type":"number","minimum":0,"maximum":10,"description":"Optional importance score"}},
				"required":["content"]}`),
		},
		{
			Name:        ToolRecall,
			Description: "Search long-term memory by keywords.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"query":{"type":"string","description":"Keywords to search for"},
				"limit":{"type":"integer","minimum":1,"description":"Maximum results, default 5"}},
				"required":["query"]}`),
		},
		{
			Name:        ToolForget,
			Description: "Delete a memory by its key.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"key":{"type":"string","description":"The memory key, as returned by remember or recall"}},"required":["key"]}`),
		},
	}
}

func (m *memoryTools) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	switch name {
	case ToolRemember:
		var params struct {
			Content    string  `json:"content"`
			Importance float64 `json:"importance"`
		}
		if err := json.Unmarshal(args, &params); err != nil || params.Content == "" {
			return ToolResult{Error: "remember requires a content argument"}, nil
		}
		key := NewID()
		value, _ := json.Marshal(map[string]string{"content": params.Content})
		if err := m.store.Put(ctx, m.namespace, key, value, params.Importance); err != nil {
			return ToolResult{}, err
		}
		return ToolResult{Content: "Remembered under key " + key}, nil

	case ToolRecall:
		var params struct {
			Query string `json:"query"`
			Limit int    `json:"limit"`
		}
		if err := json.Unmarshal(args, &params); err != nil || params.Query == "" {
			return ToolResult{Error: "recall requires a query argument"}, nil
		}
		if params.Limit <= 0 {
			params.Limit = 5
		}
		items, err := m.store.Search(ctx, m.namespace, params.Query, params.Limit)
		if err != nil {
			return ToolResult{}, err
		}
		if len(items) == 0 {
			return ToolResult{Content: "No matching memories."}, nil
		}
		var b strings.Builder
		for _, item := range items {
			fmt.Fprintf(&b, "[%s] %s\n", item.Key, string(item.Value))
		}
		return ToolResult{Content: b.String()}, nil

	case ToolForget:
		var params struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(args, &params); err != nil || params.Key == "" {
			return ToolResult{Error: "forget requires a key argument"}, nil
		}
		existed, err := m.store.Delete(ctx, m.namespace, params.Key)
		if err != nil {
			return ToolResult{}, err
		}
		if !existed {
			return ToolResult{Content: "No memory under that key."}, nil
		}
		return ToolResult{Content: "Forgotten."}, nil
	}
	return ToolResult{Error: "unknown memory tool: " + name}, nil
}
