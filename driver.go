package axon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// cotInstruction is appended to the system prompt when chain-of-thought
// is enabled. A prompt-level mechanism only; no separate think tool.
const cotInstruction = "Before calling any tool, briefly state your reasoning and plan as ordinary text."

// nudgeMessage is appended when the model returns plain text without a
// tool call, so it can terminate cleanly through final_answer.
const nudgeMessage = "Wrap up now: call final_answer with your complete answer to the task."

const defaultMaxIterations = 10

// Driver runs the think-act-observe loop: it presents the conversation
// and the allowed tool schemas to the provider, executes the returned
// tool calls through the dispatcher, feeds observations back, and
// repeats until the model calls final_answer or the iteration budget
// runs out.
//
// A Driver must not be driven from multiple goroutines concurrently;
// its execution state is exclusively owned for the duration of a call,
// and concurrent entry is rejected with an error.
type Driver struct {
	config     Config
	provider   Provider
	registry   *ToolRegistry
	dispatcher *Dispatcher
	buffer     *ContextBuffer
	subAgents  *SubAgentRegistry
	tasks      *TaskManager
	sessions   SessionStore
	kv         KvStore
	hooks      []Hooks
	logger     *slog.Logger
	tracer     Tracer

	retryOpts []RetryOption
	wrapRetry bool

	// builtins names the control tools registered by configuration;
	// they bypass the user allow-list.
	builtins map[string]bool

	running atomic.Bool
}

// NewDriver creates a driver for the given agent name and provider.
func NewDriver(name string, provider Provider, opts ...Option) *Driver {
	d := &Driver{
		config: Config{
			Name:              name,
			MaxIterations:     defaultMaxIterations,
			ToolErrorFeedback: true,
		},
		provider:  provider,
		registry:  NewToolRegistry(),
		subAgents: NewSubAgentRegistry(),
		tasks:     NewTaskManager(),
		builtins:  map[string]bool{},
		logger:    nopLogger,
	}
	d.buffer = NewContextBuffer(0)
	d.dispatcher = NewDispatcher(d.registry, nil)
	for _, opt := range opts {
		opt(d)
	}

	d.buffer.budget = d.config.TokenBudget
	d.buffer.SetLogger(d.logger)
	d.dispatcher.logger = d.logger
	if d.tracer != nil {
		d.dispatcher.SetTracer(d.tracer)
	}
	if d.wrapRetry {
		d.provider = WithRetry(d.provider, append(d.retryOpts, RetryLogger(d.logger))...)
	}
	if d.config.MaxIterations <= 0 {
		d.config.MaxIterations = defaultMaxIterations
	}

	d.registerBuiltins()
	d.buffer.Reset(d.systemPrompt())
	return d
}

// registerBuiltins adds the control tools selected by configuration.
func (d *Driver) registerBuiltins() {
	add := func(t Tool) {
		d.registry.Add(t)
		for _, def := range t.Definitions() {
			d.builtins[def.Name] = true
		}
	}
	add(finalAnswerTool{})
	if d.config.EnableTasks {
		add(planTool{})
		add(&taskTools{manager: d.tasks})
	}
	if d.config.EnableSubAgents {
		add(&agentDispatchTool{registry: d.subAgents})
	}
	if d.config.EnableHumanInLoop {
		add(&humanInLoopTool{gate: func() ApprovalGate {
			d.dispatcher.mu.RLock()
			defer d.dispatcher.mu.RUnlock()
			return d.dispatcher.gate
		}})
	}
	if d.config.EnableMemory && d.kv != nil {
		add(&memoryTools{store: d.kv, namespace: memoryNamespace(d.config.Name)})
	}
}

// Name returns the agent's display name.
func (d *Driver) Name() string { return d.config.Name }

// Tasks exposes the driver's task manager.
func (d *Driver) Tasks() *TaskManager { return d.tasks }

// SetCompressor installs the context compressor.
func (d *Driver) SetCompressor(c Compressor) { d.buffer.SetCompressor(c) }

// SetApprovalGate installs the human approval gate.
func (d *Driver) SetApprovalGate(g ApprovalGate) { d.dispatcher.SetGate(g) }

// RegisterSubAgent registers a sub-agent under the given name. The
// sub-agent keeps its own buffer, tools, and memory namespace; only the
// task string and the answer cross the boundary.
func (d *Driver) RegisterSubAgent(name string, agent Agent) {
	d.subAgents.Register(name, agent)
}

// MarkNeedsApproval gates the named tool behind the approval gate.
func (d *Driver) MarkNeedsApproval(toolName string) {
	d.dispatcher.MarkNeedsApproval(toolName)
}

// RegisterTool adds a capability tool after construction.
func (d *Driver) RegisterTool(t Tool) { d.registry.Add(t) }

// systemPrompt returns the configured system prompt with the
// chain-of-thought instruction appended when enabled.
func (d *Driver) systemPrompt() string {
	if d.config.EnableCoT {
		if d.config.SystemPrompt == "" {
			return cotInstruction
		}
		return d.config.SystemPrompt + "\n\n" + cotInstruction
	}
	return d.config.SystemPrompt
}

// Reset clears the conversation history back to the system prompt.
func (d *Driver) Reset() {
	d.buffer.Reset(d.systemPrompt())
}

// Messages returns the current buffer contents. Intended for
// inspection; callers must not mutate the returned slice.
func (d *Driver) Messages() []ChatMessage { return d.buffer.Messages() }

// Execute resets the buffer (or restores the configured session
// snapshot), appends the task as a user message, and runs the loop to
// completion, returning the final answer.
func (d *Driver) Execute(ctx context.Context, task string) (string, error) {
	return d.execute(ctx, task, nil)
}

// ExecuteStream runs the loop like Execute but emits StreamEvent values
// into ch throughout execution: tokens as assistant content arrives,
// tool call starts and results, iteration markers, and the final
// answer. ch is closed when execution finishes on any path. The
// blocking Execute is this same loop with event delivery skipped; the
// two modes produce identical transcripts.
func (d *Driver) ExecuteStream(ctx context.Context, task string, ch chan<- StreamEvent) (string, error) {
	return d.execute(ctx, task, ch)
}

func (d *Driver) execute(ctx context.Context, task string, ch chan<- StreamEvent) (string, error) {
	if !d.running.CompareAndSwap(false, true) {
		if ch != nil {
			close(ch)
		}
		return "", errors.New("driver is already executing; concurrent invocations are not allowed")
	}
	defer d.running.Store(false)

	if err := d.initBuffer(ctx); err != nil {
		if ch != nil {
			close(ch)
		}
		return "", err
	}
	d.buffer.Push(UserMessage(task))
	return d.run(ctx, ch)
}

// Chat appends the message to the existing buffer without resetting,
// preserving cross-turn history, and runs the loop.
func (d *Driver) Chat(ctx context.Context, message string) (string, error) {
	if !d.running.CompareAndSwap(false, true) {
		return "", errors.New("driver is already executing; concurrent invocations are not allowed")
	}
	defer d.running.Store(false)

	// A fresh driver holds only the system message; restore the
	// session (when configured) before the first turn.
	if d.buffer.Len() <= 1 {
		if err := d.initBuffer(ctx); err != nil {
			return "", err
		}
	}
	d.buffer.Push(UserMessage(message))
	return d.run(ctx, nil)
}

// initBuffer resets the buffer to the system prompt, or to the session
// snapshot when one is configured and present. The snapshot's own
// system message replaces the default.
func (d *Driver) initBuffer(ctx context.Context) error {
	if d.config.SessionID != "" && d.sessions != nil {
		snapshot, ok, err := d.sessions.Get(ctx, d.config.SessionID)
		if err != nil {
			return err
		}
		if ok && len(snapshot.Messages) > 0 {
			d.logger.Info("session restored",
				"agent", d.config.Name,
				"session", d.config.SessionID,
				"messages", len(snapshot.Messages))
			d.buffer.Restore(snapshot.Messages)
			return nil
		}
	}
	d.buffer.Reset(d.systemPrompt())
	return nil
}

// run is the think-act-observe loop shared by Execute, Chat, and
// ExecuteStream. When ch is nil it operates in blocking mode; when
// non-nil it emits StreamEvent values and closes ch when done.
//
// Iteration accounting: each provider round consumes one iteration,
// including the terminal nudge round issued when the model answers in
// prose without calling final_answer. The loop therefore makes at most
// MaxIterations provider calls (plus any summarization calls made by
// the compressor).
func (d *Driver) run(ctx context.Context, ch chan<- StreamEvent) (answer string, err error) {
	agent := d.config.Name

	if ch != nil {
		defer close(ch)
	}

	runCtx := ctx
	var span Span
	if d.tracer != nil {
		runCtx, span = d.tracer.Start(ctx, "agent.execute",
			StringAttr("agent.name", agent),
			StringAttr("agent.model", d.config.Model))
		defer func() {
			if err != nil {
				span.Error(err)
			}
			span.End()
		}()
	}

	d.logger.Info("agent started", "agent", agent, "model", d.config.Model)
	toolDefs := d.visibleToolDefs()

	for i := 0; i < d.config.MaxIterations; i++ {
		if runCtx.Err() != nil {
			return "", runCtx.Err()
		}

		iterCtx := runCtx
		var iterSpan Span
		if d.tracer != nil {
			iterCtx, iterSpan = d.tracer.Start(runCtx, "agent.iteration", IntAttr("iteration", i))
		}
		endIter := func() {
			if iterSpan != nil {
				iterSpan.End()
			}
		}

		resp, thinkErr := d.think(iterCtx, toolDefs, ch)
		if thinkErr != nil {
			endIter()
			return "", thinkErr
		}

		// The assistant message always lands in the buffer, content and
		// tool calls both, so the transcript is complete.
		d.buffer.Push(ChatMessage{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
		d.emitThinkEnd(resp)

		if len(resp.ToolCalls) == 0 {
			endIter()
			d.iterationDone(ch, i)
			if len(toolDefs) == 0 {
				// No tools exposed at all: plain conversational mode,
				// the prose response is the answer.
				d.finish(ch, resp.Content)
				if saveErr := d.saveSession(runCtx); saveErr != nil {
					return "", saveErr
				}
				d.logger.Info("agent completed", "agent", agent, "iterations", i+1)
				return resp.Content, nil
			}
			if i < d.config.MaxIterations-1 {
				// Terminal nudge: give the model one more round to
				// finish through final_answer.
				d.buffer.Push(UserMessage(nudgeMessage))
				continue
			}
			break
		}

		finalArgs, rest := splitFinalAnswer(resp.ToolCalls)
		if len(rest) > 0 {
			if execErr := d.actOnCalls(iterCtx, rest, ch); execErr != nil {
				endIter()
				return "", execErr
			}
		}
		endIter()
		d.iterationDone(ch, i)

		if finalArgs != nil {
			text, parseErr := parseFinalAnswer(finalArgs)
			if parseErr != nil {
				// Malformed final_answer: report it and keep looping so
				// the model can correct itself.
				d.buffer.Push(UserMessage("final_answer was malformed: " + parseErr.Error()))
				continue
			}
			d.finish(ch, text)
			if saveErr := d.saveSession(runCtx); saveErr != nil {
				return "", saveErr
			}
			d.logger.Info("agent completed", "agent", agent, "iterations", i+1)
			return text, nil
		}
	}

	d.logger.Warn("iteration limit reached", "agent", agent, "max", d.config.MaxIterations)
	return "", &ErrIterationLimit{Max: d.config.MaxIterations}
}

// think prepares the buffer (compressing when over budget), fires the
// think hooks, and requests one completion. In streaming mode with no
// tools the provider streams tokens directly; otherwise the content is
// surfaced as a single token event.
func (d *Driver) think(ctx context.Context, toolDefs []ToolDefinition, ch chan<- StreamEvent) (ChatResponse, error) {
	messages, err := d.buffer.Prepare(ctx)
	if err != nil {
		return ChatResponse{}, err
	}
	for _, h := range d.hooks {
		h.OnThinkStart(d.config.Name, messages)
	}

	req := ChatRequest{
		Messages:       messages,
		Tools:          toolDefs,
		ResponseSchema: d.config.ResponseFormat,
	}

	var resp ChatResponse
	if ch != nil && len(toolDefs) == 0 {
		mid := make(chan StreamEvent, 64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range mid {
				select {
				case ch <- ev:
				case <-ctx.Done():
				}
			}
		}()
		resp, err = d.provider.ChatStream(ctx, req, mid)
		<-done
		if err != nil {
			return ChatResponse{}, err
		}
		return resp, nil
	}

	resp, err = d.provider.Chat(ctx, req)
	if err != nil {
		return ChatResponse{}, err
	}
	if ch != nil && resp.Content != "" {
		select {
		case ch <- StreamEvent{Type: EventToken, Content: resp.Content}:
		case <-ctx.Done():
		}
	}
	return resp, nil
}

// actOnCalls executes a batch of tool calls and appends one tool_result
// message per call, in the order the assistant declared them,
// regardless of completion order.
func (d *Driver) actOnCalls(ctx context.Context, calls []ToolCall, ch chan<- StreamEvent) error {
	agent := d.config.Name
	for _, tc := range calls {
		for _, h := range d.hooks {
			h.OnToolStart(agent, tc.Name, tc.Args)
		}
		if ch != nil {
			select {
			case ch <- StreamEvent{Type: EventToolCallStart, Name: tc.Name, Args: tc.Args}:
			case <-ctx.Done():
			}
		}
	}

	results := d.dispatcher.ExecuteBatch(ctx, calls, d.config.ToolPolicy)

	for i, tc := range calls {
		res := results[i]
		content := res.Content

		if res.Err != nil {
			for _, h := range d.hooks {
				h.OnToolError(agent, tc.Name, res.Err)
			}
			if isApprovalOutcome(res.Err) {
				// Approval rejection is control flow, not failure: the
				// model learns why the call was skipped.
				content = res.Err.Error()
			} else if d.config.ToolErrorFeedback && !IsCancelled(res.Err) {
				content = fmt.Sprintf("tool failed with %v; consider another approach", res.Err)
			} else {
				return res.Err
			}
		} else {
			for _, h := range d.hooks {
				h.OnToolEnd(agent, tc.Name, res.Content)
			}
		}

		if ch != nil {
			select {
			case ch <- StreamEvent{Type: EventToolCallResult, Name: tc.Name, Content: content}:
			case <-ctx.Done():
			}
		}
		d.buffer.Push(ToolResultMessage(tc.ID, content))
	}
	return nil
}

// iterationDone fires the iteration hooks and event.
func (d *Driver) iterationDone(ch chan<- StreamEvent, i int) {
	for _, h := range d.hooks {
		h.OnIteration(d.config.Name, i)
	}
	if ch != nil {
		ch <- StreamEvent{Type: EventIteration, Iteration: i}
	}
}

// finish fires the final-answer hooks and event.
func (d *Driver) finish(ch chan<- StreamEvent, answer string) {
	for _, h := range d.hooks {
		h.OnFinalAnswer(d.config.Name, answer)
	}
	if ch != nil {
		ch <- StreamEvent{Type: EventFinalAnswer, Content: answer}
	}
}

// emitThinkEnd fires the think-end hooks with the assistant message.
func (d *Driver) emitThinkEnd(resp ChatResponse) {
	msg := ChatMessage{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}
	for _, h := range d.hooks {
		h.OnThinkEnd(d.config.Name, msg)
	}
}

// saveSession persists the buffer under the configured session id.
// Called only on normal termination; aborted executions leave the
// previous snapshot untouched.
func (d *Driver) saveSession(ctx context.Context) error {
	if d.config.SessionID == "" || d.sessions == nil {
		return nil
	}
	if err := d.sessions.Put(ctx, d.config.SessionID, d.buffer.Messages()); err != nil {
		return &ErrMemory{Op: "session save", Message: err.Error()}
	}
	return nil
}

// visibleToolDefs returns the schema-serialized tool subset exposed to
// the model: the user allow-list (empty means all) plus the built-in
// control tools enabled by configuration.
func (d *Driver) visibleToolDefs() []ToolDefinition {
	if !d.config.EnableTools && len(d.builtins) <= 1 {
		// Tools disabled and only final_answer registered: run as a
		// plain conversational model.
		return nil
	}
	allowed := d.config.AllowedTools
	if len(allowed) > 0 {
		for name := range d.builtins {
			allowed = append(allowed, name)
		}
	}
	return d.registry.Definitions(allowed)
}

// splitFinalAnswer separates the final_answer call (if any) from the
// rest of a batch. final_answer terminates the loop and produces no
// tool_result message.
func splitFinalAnswer(calls []ToolCall) (finalArgs json.RawMessage, rest []ToolCall) {
	for _, tc := range calls {
		if tc.Name == ToolFinalAnswer {
			if finalArgs == nil {
				finalArgs = tc.Args
			}
			continue
		}
		rest = append(rest, tc)
	}
	return finalArgs, rest
}

// isApprovalOutcome reports whether err is a rejection or timeout from
// the approval gate.
func isApprovalOutcome(err error) bool {
	var rej *ErrApprovalRejected
	var to *ErrApprovalTimeout
	return errors.As(err, &rej) || errors.As(err, &to)
}

// Extract performs a single schema-constrained LLM call and returns the
// raw JSON document. It does not enter the loop and does not expose
// tools.
func (d *Driver) Extract(ctx context.Context, prompt string, schema *ResponseSchema) (json.RawMessage, error) {
	resp, err := d.provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			SystemMessage(d.config.SystemPrompt),
			UserMessage(prompt),
		},
		ResponseSchema: schema,
	})
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(resp.Content)
	if !json.Valid(raw) {
		return nil, &ErrProtocol{Message: "extract: model returned invalid JSON"}
	}
	return raw, nil
}

// compile-time check
var _ Agent = (*Driver)(nil)
