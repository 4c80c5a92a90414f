package axon

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

// kvRecorder is a minimal in-package KvStore for builtin-tool tests.
type kvRecorder struct {
	items map[string]map[string]KvItem
}

func newKvRecorder() *kvRecorder {
	return &kvRecorder{items: make(map[string]map[string]KvItem)}
}

func (k *kvRecorder) Put(_ context.Context, namespace []string, key string, value json.RawMessage, importance float64) error {
	ns := JoinNamespace(namespace)
	if k.items[ns] == nil {
		k.items[ns] = make(map[string]KvItem)
	}
	k.items[ns][key] = KvItem{Namespace: namespace, Key: key, Value: value, Importance: importance, CreatedAt: NowUnix()}
	return nil
}

func (k *kvRecorder) Get(_ context.Context, namespace []string, key string) (KvItem, bool, error) {
	item, ok := k.items[JoinNamespace(namespace)][key]
	return item, ok, nil
}

func (k *kvRecorder) Delete(_ context.Context, namespace []string, key string) (bool, error) {
	ns := JoinNamespace(namespace)
	if _, ok := k.items[ns][key]; !ok {
		return false, nil
	}
	delete(k.items[ns], key)
	return true, nil
}

func (k *kvRecorder) ListNamespaces(_ context.Context, _ []string) ([][]string, error) {
	return nil, nil
}

func (k *kvRecorder) Search(_ context.Context, namespace []string, query string, limit int) ([]KvItem, error) {
	tokens := TokenizeQuery(query)
	var out []KvItem
	for _, item := range k.items[JoinNamespace(namespace)] {
		score := ScoreItem(item, tokens)
		if score == 0 {
			continue
		}
		item.Score = score
		out = append(out, item)
	}
	RankItems(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestMemoryToolsScopedToAgentNamespace(t *testing.T) {
	kv := newKvRecorder()
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{callTool("c1", ToolRemember, `{"content":"user likes tea","importance":4}`)}},
		{ToolCalls: []ToolCall{finalAnswerCall("c2", "noted")}},
	}}
	agent := NewDriver("butler", provider, WithMemory(kv))

	if _, err := agent.Execute(context.Background(), "remember my preference"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	ns := JoinNamespace(memoryNamespace("butler"))
	if len(kv.items[ns]) != 1 {
		t.Fatalf("items in %s = %d, want 1", ns, len(kv.items[ns]))
	}
	for _, item := range kv.items[ns] {
		if !strings.Contains(string(item.Value), "user likes tea") {
			t.Errorf("stored value = %s", item.Value)
		}
		if item.Importance != 4 {
			t.Errorf("importance = %v", item.Importance)
		}
	}
}

func TestRecallSearchesAndFormatsResults(t *testing.T) {
	kv := newKvRecorder()
	ns := memoryNamespace("butler")
	_ = kv.Put(context.Background(), ns, "k1", json.RawMessage(`{"content":"user likes tea"}`), 0)
	_ = kv.Put(context.Background(), ns, "k2", json.RawMessage(`{"content":"user hates mornings"}`), 0)

	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{callTool("c1", ToolRecall, `{"query":"tea"}`)}},
		{ToolCalls: []ToolCall{finalAnswerCall("c2", "tea it is")}},
	}}
	agent := NewDriver("butler", provider, WithMemory(kv))

	if _, err := agent.Execute(context.Background(), "what do I like?"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var recallResult string
	for _, m := range agent.Messages() {
		if m.Role == "tool" {
			recallResult = m.Content
		}
	}
	if !strings.Contains(recallResult, "likes tea") {
		t.Errorf("recall result = %q", recallResult)
	}
	if strings.Contains(recallResult, "mornings") {
		t.Errorf("recall leaked non-matching items: %q", recallResult)
	}
}

func TestForgetDeletesByKey(t *testing.T) {
	kv := newKvRecorder()
	ns := memoryNamespace("butler")
	_ = kv.Put(context.Background(), ns, "gone", json.RawMessage(`{"content":"stale"}`), 0)

	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{callTool("c1", ToolForget, `{"key":"gone"}`)}},
		{ToolCalls: []ToolCall{finalAnswerCall("c2", "forgotten")}},
	}}
	agent := NewDriver("butler", provider, WithMemory(kv))

	if _, err := agent.Execute(context.Background(), "forget it"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok, _ := kv.Get(context.Background(), ns, "gone"); ok {
		t.Error("item not deleted")
	}
}

func TestTaskToolsDriveTheManager(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{callTool("c1", ToolCreateTask, `{"id":"fetch","description":"fetch data","priority":8}`)}},
		{ToolCalls: []ToolCall{callTool("c2", ToolCreateTask, `{"id":"parse","description":"parse data","dependencies":["fetch"],"priority":5}`)}},
		{ToolCalls: []ToolCall{callTool("c3", ToolGetExecutionOrder, `{}`)}},
		{ToolCalls: []ToolCall{callTool("c4", ToolUpdateTask, `{"id":"fetch","status":"running"}`)}},
		{ToolCalls: []ToolCall{callTool("c5", ToolUpdateTask, `{"id":"fetch","status":"completed","result":"42 rows"}`)}},
		{ToolCalls: []ToolCall{callTool("c6", ToolListTasks, `{}`)}},
		{ToolCalls: []ToolCall{finalAnswerCall("c7", "planned")}},
	}}
	agent := NewDriver("planner", provider, WithTasks(), WithMaxIterations(10))

	if _, err := agent.Execute(context.Background(), "plan the work"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	fetch, ok := agent.Tasks().Get("fetch")
	if !ok || fetch.Status != TaskCompleted || fetch.Result != "42 rows" {
		t.Errorf("fetch = %+v", fetch)
	}

	var sawOrder, sawList bool
	for _, m := range agent.Messages() {
		if m.Role != "tool" {
			continue
		}
		if strings.Contains(m.Content, "fetch -> parse") {
			sawOrder = true
		}
		if strings.Contains(m.Content, "parse data") && strings.Contains(m.Content, "pending") {
			sawList = true
		}
	}
	if !sawOrder {
		t.Error("execution order result missing")
	}
	if !sawList {
		t.Error("list result missing")
	}
}

func TestIllegalTaskTransitionSurfacesToModel(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{callTool("c1", ToolCreateTask, `{"id":"t","description":"t"}`)}},
		{ToolCalls: []ToolCall{callTool("c2", ToolUpdateTask, `{"id":"t","status":"completed"}`)}},
		{ToolCalls: []ToolCall{finalAnswerCall("c3", "oops")}},
	}}
	agent := NewDriver("planner", provider, WithTasks())

	if _, err := agent.Execute(context.Background(), "misuse"); err != nil {
		t.Fatalf("illegal transition must not abort: %v", err)
	}
	var sawRejection bool
	for _, m := range agent.Messages() {
		if m.Role == "tool" && strings.Contains(m.Content, "illegal transition") {
			sawRejection = true
		}
	}
	if !sawRejection {
		t.Error("illegal transition not reported to the model")
	}
}

func TestHumanInLoopRoutesThroughGateTextChannel(t *testing.T) {
	gate := &scriptedGate{response: ApprovalResponse{Decision: Approved, Text: "blue"}}
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{callTool("c1", ToolHumanInLoop, `{"question":"favorite color?"}`)}},
		{ToolCalls: []ToolCall{finalAnswerCall("c2", "blue")}},
	}}
	agent := NewDriver("curious", provider, WithHumanInLoop())
	agent.SetApprovalGate(gate)

	answer, err := agent.Execute(context.Background(), "ask me something")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if answer != "blue" {
		t.Errorf("answer = %q", answer)
	}
	if len(gate.requests) != 1 || gate.requests[0].Prompt != "favorite color?" {
		t.Errorf("gate requests = %+v", gate.requests)
	}
	// Free-text requests carry no tool name.
	if gate.requests[0].Tool != "" {
		t.Error("human_in_loop request should not look like a tool approval")
	}
	var sawText bool
	for _, m := range agent.Messages() {
		if m.Role == "tool" && m.Content == "blue" {
			sawText = true
		}
	}
	if !sawText {
		t.Error("human answer missing from the transcript")
	}
}

func TestPlanToolAcknowledges(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{callTool("c1", ToolPlan, `{"plan":"1. do x\n2. do y"}`)}},
		{ToolCalls: []ToolCall{finalAnswerCall("c2", "ok")}},
	}}
	agent := NewDriver("planner", provider, WithTasks())
	if _, err := agent.Execute(context.Background(), "plan"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var acked bool
	for _, m := range agent.Messages() {
		if m.Role == "tool" && strings.Contains(m.Content, "Plan recorded") {
			acked = true
		}
	}
	if !acked {
		t.Error("plan tool did not acknowledge")
	}
}

func TestParseFinalAnswerShapes(t *testing.T) {
	if got, err := parseFinalAnswer(json.RawMessage(`{"answer":"wrapped"}`)); err != nil || got != "wrapped" {
		t.Errorf("wrapped: %q, %v", got, err)
	}
	if got, err := parseFinalAnswer(json.RawMessage(`"bare"`)); err != nil || got != "bare" {
		t.Errorf("bare: %q, %v", got, err)
	}
	if _, err := parseFinalAnswer(json.RawMessage(`{"other":1}`)); err == nil {
		t.Error("missing answer accepted")
	}
}
