package axon

import (
	"context"
	"log/slog"
)

// Config holds the full configuration of a Driver. Construct through
// NewDriver and the With* options; the zero value is usable defaults.
type Config struct {
	// Model is the model identifier, recorded for logging and spans.
	// The provider itself decides what to send on the wire.
	Model string
	// Name is the agent's display name.
	Name string
	// SystemPrompt seeds the buffer on every Execute / Reset.
	SystemPrompt string

	// Feature switches.
	EnableTools       bool
	EnableTasks       bool
	EnableSubAgents   bool
	EnableMemory      bool
	EnableHumanInLoop bool
	EnableCoT         bool

	// TokenBudget is the advisory estimate threshold that triggers
	// compression. Zero disables compression.
	TokenBudget int
	// MaxIterations bounds the think-act-observe loop.
	MaxIterations int
	// AllowedTools restricts which registered tools are exposed to the
	// model. Empty means all. Built-in control tools enabled by the
	// feature switches are always exposed.
	AllowedTools []string
	// ToolPolicy bounds tool execution.
	ToolPolicy ToolPolicy
	// ToolErrorFeedback converts tool failures into tool results the
	// model can react to, instead of aborting the execution.
	ToolErrorFeedback bool
	// ResponseFormat optionally constrains the model output format.
	ResponseFormat *ResponseSchema
	// SessionID, when set, loads a snapshot on Execute and saves the
	// buffer back on normal return.
	SessionID string
}

// Option configures a Driver at construction time.
type Option func(*Driver)

// WithModel records the model identifier.
func WithModel(model string) Option {
	return func(d *Driver) { d.config.Model = model }
}

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(d *Driver) { d.config.SystemPrompt = prompt }
}

// WithMaxIterations bounds the loop (default 10).
func WithMaxIterations(n int) Option {
	return func(d *Driver) { d.config.MaxIterations = n }
}

// WithTokenBudget sets the compression trigger threshold.
func WithTokenBudget(n int) Option {
	return func(d *Driver) { d.config.TokenBudget = n }
}

// WithTools enables tool calling and registers the given tools.
func WithTools(tools ...Tool) Option {
	return func(d *Driver) {
		d.config.EnableTools = true
		for _, t := range tools {
			d.registry.Add(t)
		}
	}
}

// WithAllowedTools restricts exposed tools to the named set.
func WithAllowedTools(names ...string) Option {
	return func(d *Driver) { d.config.AllowedTools = names }
}

// WithToolPolicy sets timeout, retry, and concurrency bounds for tool
// execution.
func WithToolPolicy(p ToolPolicy) Option {
	return func(d *Driver) { d.config.ToolPolicy = p }
}

// WithToolErrorFeedback controls whether tool failures are fed back to
// the model as observations (default true) or abort the execution.
func WithToolErrorFeedback(enabled bool) Option {
	return func(d *Driver) { d.config.ToolErrorFeedback = enabled }
}

// WithTasks enables the planning tools (plan, create_task, update_task,
// list_tasks, get_execution_order, visualize_dependencies).
func WithTasks() Option {
	return func(d *Driver) { d.config.EnableTasks = true }
}

// WithSubAgents enables the agent_tool dispatch tool.
func WithSubAgents() Option {
	return func(d *Driver) { d.config.EnableSubAgents = true }
}

// WithHumanInLoop enables the human_in_loop free-text tool.
func WithHumanInLoop() Option {
	return func(d *Driver) { d.config.EnableHumanInLoop = true }
}

// WithChainOfThought appends the reasoning instruction to the system
// prompt, asking the model to narrate before calling tools.
func WithChainOfThought() Option {
	return func(d *Driver) { d.config.EnableCoT = true }
}

// WithMemory enables the remember/recall/forget tools over the given
// store, scoped to the namespace [agent_name, "memories"].
func WithMemory(store KvStore) Option {
	return func(d *Driver) {
		d.config.EnableMemory = true
		d.kv = store
	}
}

// WithSessionStore installs the session snapshot store.
func WithSessionStore(store SessionStore) Option {
	return func(d *Driver) { d.sessions = store }
}

// WithSessionID sets the session under which snapshots load and save.
func WithSessionID(id string) Option {
	return func(d *Driver) { d.config.SessionID = id }
}

// WithResponseFormat constrains the model's output format on every call.
func WithResponseFormat(schema *ResponseSchema) Option {
	return func(d *Driver) { d.config.ResponseFormat = schema }
}

// WithCompressor installs the context compressor.
func WithCompressor(c Compressor) Option {
	return func(d *Driver) { d.buffer.SetCompressor(c) }
}

// WithApprovalGate installs the human approval gate.
func WithApprovalGate(g ApprovalGate) Option {
	return func(d *Driver) { d.dispatcher.SetGate(g) }
}

// WithHooks registers a lifecycle callback receiver. May be given more
// than once; all receivers fire in registration order.
func WithHooks(h Hooks) Option {
	return func(d *Driver) { d.hooks = append(d.hooks, h) }
}

// WithLLMRetry wraps the driver's provider with retry middleware at
// construction time. Equivalent to passing axon.WithRetry(provider, ...)
// yourself.
func WithLLMRetry(opts ...RetryOption) Option {
	return func(d *Driver) { d.retryOpts = opts; d.wrapRetry = true }
}

// WithLogger sets the structured logger. If not set, a no-op logger is
// used (no output).
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithTracer sets the tracer. Use observer.NewTracer() for an
// OTEL-backed implementation.
func WithTracer(t Tracer) Option {
	return func(d *Driver) { d.tracer = t }
}

// nopLogger discards all output. Used when WithLogger is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
