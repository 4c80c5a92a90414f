package axon

import (
	"context"
	"encoding/json"
	"sync"
)

// mockProvider returns scripted responses in order and records every
// request it receives. Safe for concurrent use.
type mockProvider struct {
	mu        sync.Mutex
	name      string
	responses []ChatResponse
	errs      []error
	calls     int
	requests  []ChatRequest
}

func (m *mockProvider) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return ChatResponse{}, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return ChatResponse{Content: "exhausted"}, nil
}

func (m *mockProvider) ChatStream(ctx context.Context, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error) {
	resp, err := m.Chat(ctx, req)
	if err != nil {
		close(ch)
		return ChatResponse{}, err
	}
	if resp.Content != "" {
		ch <- StreamEvent{Type: EventToken, Content: resp.Content}
	}
	close(ch)
	return resp, nil
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockProvider) request(i int) ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

// callTool builds a ToolCall with JSON args.
func callTool(id, name, args string) ToolCall {
	return ToolCall{ID: id, Name: name, Args: json.RawMessage(args)}
}

// fnTool builds a FuncTool with an object schema accepting anything.
func fnTool(name string, fn func(ctx context.Context, args json.RawMessage) (ToolResult, error)) *FuncTool {
	return &FuncTool{
		Def: ToolDefinition{
			Name:        name,
			Description: name + " test tool",
			Parameters:  json.RawMessage(`{"type":"object"}`),
		},
		Fn: fn,
	}
}

// scriptedGate returns a fixed approval response and records requests.
type scriptedGate struct {
	mu       sync.Mutex
	response ApprovalResponse
	err      error
	requests []ApprovalRequest
}

func (g *scriptedGate) Request(_ context.Context, req ApprovalRequest) (ApprovalResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	return g.response, g.err
}

// echoAgent is a scripted sub-agent that records and echoes its task.
type echoAgent struct {
	mu    sync.Mutex
	name  string
	tasks []string
}

func (e *echoAgent) Name() string { return e.name }

func (e *echoAgent) Execute(_ context.Context, task string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return task, nil
}

// countingHooks counts lifecycle callback invocations.
type countingHooks struct {
	NopHooks
	mu           sync.Mutex
	thinkStarts  int
	thinkEnds    int
	toolStarts   int
	toolEnds     int
	toolErrors   int
	iterations   int
	finalAnswers int
	lastAnswer   string
}

func (c *countingHooks) OnThinkStart(string, []ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thinkStarts++
}

func (c *countingHooks) OnThinkEnd(string, ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thinkEnds++
}

func (c *countingHooks) OnToolStart(string, string, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolStarts++
}

func (c *countingHooks) OnToolEnd(string, string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolEnds++
}

func (c *countingHooks) OnToolError(string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolErrors++
}

func (c *countingHooks) OnIteration(string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iterations++
}

func (c *countingHooks) OnFinalAnswer(_ string, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalAnswers++
	c.lastAnswer = answer
}

// finalAnswerCall builds the final_answer tool call.
func finalAnswerCall(id, answer string) ToolCall {
	raw, _ := json.Marshal(map[string]string{"answer": answer})
	return ToolCall{ID: id, Name: ToolFinalAnswer, Args: raw}
}
