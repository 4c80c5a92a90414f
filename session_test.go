package axon

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

// memSessions is a minimal in-package SessionStore for driver tests.
type memSessions struct {
	mu   sync.Mutex
	data map[string][]ChatMessage
	puts int
}

func newMemSessions() *memSessions {
	return &memSessions{data: make(map[string][]ChatMessage)}
}

func (m *memSessions) Get(_ context.Context, id string) (SessionSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	messages, ok := m.data[id]
	if !ok {
		return SessionSnapshot{}, false, nil
	}
	return SessionSnapshot{SessionID: id, Messages: append([]ChatMessage(nil), messages...)}, true, nil
}

func (m *memSessions) Put(_ context.Context, id string, messages []ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = append([]ChatMessage(nil), messages...)
	m.puts++
	return nil
}

func (m *memSessions) List(_ context.Context) ([]string, error) { return nil, nil }

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

func TestSessionSavedOnNormalReturn(t *testing.T) {
	sessions := newMemSessions()
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{finalAnswerCall("c1", "done")}},
	}}
	agent := NewDriver("saver", provider,
		WithTools(addTool(nil)),
		WithSessionStore(sessions),
		WithSessionID("sess-1"),
	)

	if _, err := agent.Execute(context.Background(), "task"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	snapshot, ok, _ := sessions.Get(context.Background(), "sess-1")
	if !ok {
		t.Fatal("no snapshot saved")
	}
	if len(snapshot.Messages) != len(agent.Messages()) {
		t.Errorf("snapshot length %d != buffer length %d", len(snapshot.Messages), len(agent.Messages()))
	}
}

func TestSessionNotSavedOnIterationLimit(t *testing.T) {
	sessions := newMemSessions()
	noop := fnTool("noop", func(_ context.Context, _ json.RawMessage) (ToolResult, error) {
		return ToolResult{Content: "ok"}, nil
	})
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{callTool("c1", "noop", `{}`)}},
		{ToolCalls: []ToolCall{callTool("c2", "noop", `{}`)}},
	}}
	agent := NewDriver("crasher", provider,
		WithTools(noop),
		WithMaxIterations(2),
		WithSessionStore(sessions),
		WithSessionID("sess-err"),
	)

	if _, err := agent.Execute(context.Background(), "task"); err == nil {
		t.Fatal("expected iteration limit error")
	}
	if _, ok, _ := sessions.Get(context.Background(), "sess-err"); ok {
		t.Error("snapshot saved despite abnormal termination")
	}
}

func TestSessionRestoredOnExecute(t *testing.T) {
	sessions := newMemSessions()
	prior := []ChatMessage{
		SystemMessage("restored system prompt"),
		UserMessage("earlier question"),
		AssistantMessage("earlier answer"),
	}
	if err := sessions.Put(context.Background(), "sess-2", prior); err != nil {
		t.Fatal(err)
	}

	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{finalAnswerCall("c1", "continued")}},
	}}
	agent := NewDriver("resumer", provider,
		WithSystemPrompt("default prompt that the snapshot replaces"),
		WithTools(addTool(nil)),
		WithSessionStore(sessions),
		WithSessionID("sess-2"),
	)

	if _, err := agent.Execute(context.Background(), "next question"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	req := provider.request(0)
	// The snapshot's system message replaced the configured default.
	if req.Messages[0].Content != "restored system prompt" {
		t.Errorf("system = %q", req.Messages[0].Content)
	}
	var sawEarlier bool
	for _, m := range req.Messages {
		if strings.Contains(m.Content, "earlier question") {
			sawEarlier = true
		}
	}
	if !sawEarlier {
		t.Error("restored history missing from the model request")
	}
	if req.Messages[len(req.Messages)-1].Content != "next question" {
		t.Error("new task not appended after the restored history")
	}
}

func TestFreshDriversProduceSameTranscriptAsReset(t *testing.T) {
	script := func() *mockProvider {
		return &mockProvider{responses: []ChatResponse{
			{ToolCalls: []ToolCall{finalAnswerCall("c1", "one")}},
			{ToolCalls: []ToolCall{finalAnswerCall("c2", "two")}},
		}}
	}

	reused := NewDriver("r", script(), WithSystemPrompt("p"), WithTools(addTool(nil)))
	if _, err := reused.Execute(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	firstTranscript := append([]ChatMessage(nil), reused.Messages()...)
	if _, err := reused.Execute(context.Background(), "t2"); err != nil {
		t.Fatal(err)
	}
	secondTranscript := reused.Messages()

	fresh1 := NewDriver("f", &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{finalAnswerCall("c1", "one")}},
	}}, WithSystemPrompt("p"), WithTools(addTool(nil)))
	if _, err := fresh1.Execute(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	fresh2 := NewDriver("f", &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{finalAnswerCall("c2", "two")}},
	}}, WithSystemPrompt("p"), WithTools(addTool(nil)))
	if _, err := fresh2.Execute(context.Background(), "t2"); err != nil {
		t.Fatal(err)
	}

	compare := func(a, b []ChatMessage, label string) {
		if len(a) != len(b) {
			t.Fatalf("%s: lengths %d vs %d", label, len(a), len(b))
		}
		for i := range a {
			if a[i].Role != b[i].Role || a[i].Content != b[i].Content {
				t.Errorf("%s: message %d differs", label, i)
			}
		}
	}
	compare(firstTranscript, fresh1.Messages(), "first execution")
	compare(secondTranscript, fresh2.Messages(), "second execution")
}
