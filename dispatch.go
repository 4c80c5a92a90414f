package axon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ToolPolicy bounds tool execution for one batch: per-call timeout,
// bounded retry with exponential backoff, and global parallelism.
type ToolPolicy struct {
	// Timeout bounds each attempt. Zero means no timeout.
	Timeout time.Duration
	// RetryOnFail enables retry of failed attempts.
	RetryOnFail bool
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// RetryBaseDelay is the delay before the first retry; each later
	// retry waits twice as long as the one before (retry i waits
	// base * 2^(i-1)).
	RetryBaseDelay time.Duration
	// MaxConcurrency bounds in-flight calls in one batch. Zero or
	// negative falls back to defaultMaxConcurrency.
	MaxConcurrency int
}

// defaultMaxConcurrency caps parallel tool calls when the policy does
// not say otherwise, to avoid overwhelming external services.
const defaultMaxConcurrency = 10

// DispatchResult is the outcome of one dispatched tool call.
type DispatchResult struct {
	// Content is the tool output, or a short error description the
	// driver can hand back to the model.
	Content string
	// Err is the underlying failure, nil on success. Approval
	// rejections and timeouts are reported here as their error kinds.
	Err error
	// Duration is the wall-clock time of the call including retries.
	Duration time.Duration
}

// Dispatcher executes tool call batches against a registry, enforcing
// the policy, and consulting the approval gate for gated tools.
type Dispatcher struct {
	registry *ToolRegistry
	logger   *slog.Logger
	tracer   Tracer

	mu            sync.RWMutex
	gate          ApprovalGate
	needsApproval map[string]bool
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *ToolRegistry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = nopLogger
	}
	return &Dispatcher{
		registry:      registry,
		logger:        logger,
		needsApproval: make(map[string]bool),
	}
}

// SetGate installs the approval gate consulted for gated tools.
func (d *Dispatcher) SetGate(g ApprovalGate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = g
}

// SetTracer installs a tracer for per-call spans.
func (d *Dispatcher) SetTracer(t Tracer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tracer = t
}

// MarkNeedsApproval adds a tool name to the needs-approval set.
func (d *Dispatcher) MarkNeedsApproval(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.needsApproval[name] = true
}

func (d *Dispatcher) requiresApproval(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.needsApproval[name]
}

// ExecuteBatch runs all calls subject to the policy and returns results
// in input order. Calls start in input order; completion order is
// arbitrary; a semaphore of width policy.MaxConcurrency bounds how many
// are in flight at once.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, calls []ToolCall, policy ToolPolicy) []DispatchResult {
	if len(calls) == 0 {
		return nil
	}
	// Fast path: single call, no goroutine needed.
	if len(calls) == 1 {
		return []DispatchResult{d.executeOne(ctx, calls[0], policy)}
	}

	width := policy.MaxConcurrency
	if width <= 0 {
		width = defaultMaxConcurrency
	}
	sem := make(chan struct{}, width)
	results := make([]DispatchResult, len(calls))

	var wg sync.WaitGroup
	for i, tc := range calls {
		// Acquire in submission order so calls start in input order.
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			err := ctx.Err()
			for j := i; j < len(calls); j++ {
				results[j] = DispatchResult{Content: "error: " + err.Error(), Err: err}
			}
			wg.Wait()
			return results
		}
		wg.Add(1)
		go func(i int, tc ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = d.executeOne(ctx, tc, policy)
		}(i, tc)
	}
	wg.Wait()
	return results
}

// executeOne runs a single call through approval, timeout, and retry.
func (d *Dispatcher) executeOne(ctx context.Context, tc ToolCall, policy ToolPolicy) DispatchResult {
	start := time.Now()

	execCtx := ctx
	var span Span
	d.mu.RLock()
	tracer := d.tracer
	d.mu.RUnlock()
	if tracer != nil {
		execCtx, span = tracer.Start(ctx, "tool.execute", StringAttr("tool.name", tc.Name))
		defer span.End()
	}

	// Approval is consulted once, before the first attempt, with the
	// arguments presented verbatim. A gate timeout counts as rejection.
	if d.requiresApproval(tc.Name) {
		if res := d.approve(execCtx, tc); res != nil {
			res.Duration = time.Since(start)
			if span != nil && res.Err != nil {
				span.Error(res.Err)
			}
			return *res
		}
	}

	attempts := 1
	if policy.RetryOnFail && policy.MaxRetries > 0 {
		attempts += policy.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := policy.RetryBaseDelay * (1 << (attempt - 1))
			d.logger.Warn("retrying tool call",
				"tool", tc.Name,
				"attempt", attempt,
				"max_retries", policy.MaxRetries,
				"delay", delay)
			timer := time.NewTimer(delay)
			select {
			case <-execCtx.Done():
				timer.Stop()
				err := execCtx.Err()
				return DispatchResult{Content: "error: " + err.Error(), Err: err, Duration: time.Since(start)}
			case <-timer.C:
			}
		}

		result, err := d.attempt(execCtx, tc, policy.Timeout)
		if err == nil && result.Error == "" {
			if span != nil {
				span.SetAttr(IntAttr("tool.attempts", attempt+1))
			}
			return DispatchResult{Content: result.Content, Duration: time.Since(start)}
		}
		if err == nil {
			err = &ErrTool{Tool: tc.Name, Kind: ToolErrInternal, Message: result.Error}
		}
		lastErr = err

		// Parent cancellation is not worth retrying against.
		if execCtx.Err() != nil {
			break
		}
		// Invalid arguments will fail identically on every attempt.
		var toolErr *ErrTool
		if errors.As(err, &toolErr) && toolErr.Kind == ToolErrInvalidArguments {
			break
		}
	}

	if span != nil {
		span.Error(lastErr)
	}
	d.logger.Warn("tool call failed", "tool", tc.Name, "error", lastErr)
	return DispatchResult{
		Content:  "error: " + lastErr.Error(),
		Err:      lastErr,
		Duration: time.Since(start),
	}
}

// attempt runs one execution attempt under the per-call timeout. The
// timeout cancels the tool's context so in-flight I/O is abandoned
// cooperatively; the attempt then reports ToolErrTimeout.
func (d *Dispatcher) attempt(ctx context.Context, tc ToolCall, timeout time.Duration) (ToolResult, error) {
	if timeout <= 0 {
		return d.run(ctx, tc)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result ToolResult
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := d.run(attemptCtx, tc)
		ch <- outcome{result: result, err: err}
	}()

	select {
	case o := <-ch:
		// A cooperative tool may return the deadline error itself;
		// report it as a timeout either way.
		if errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return ToolResult{}, &ErrTool{Tool: tc.Name, Kind: ToolErrTimeout}
		}
		return o.result, o.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return ToolResult{}, ctx.Err()
		}
		return ToolResult{}, &ErrTool{Tool: tc.Name, Kind: ToolErrTimeout}
	}
}

// run executes the call with panic recovery, so a panicking tool is
// reported as an error result instead of crashing the process.
func (d *Dispatcher) run(ctx context.Context, tc ToolCall) (result ToolResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ErrTool{Tool: tc.Name, Kind: ToolErrInternal, Message: fmt.Sprintf("panic: %v", p)}
		}
	}()
	return d.registry.Execute(ctx, tc.Name, tc.Args)
}

// approve consults the gate. A nil return means the call may proceed;
// a non-nil DispatchResult short-circuits execution.
func (d *Dispatcher) approve(ctx context.Context, tc ToolCall) *DispatchResult {
	d.mu.RLock()
	gate := d.gate
	d.mu.RUnlock()
	if gate == nil {
		// Gated tool with no gate installed: refuse rather than run
		// a sensitive call unreviewed.
		err := &ErrApprovalRejected{Tool: tc.Name, Reason: "no approval gate configured"}
		return &DispatchResult{Content: err.Error(), Err: err}
	}

	resp, err := gate.Request(ctx, ApprovalRequest{
		Tool:   tc.Name,
		Prompt: fmt.Sprintf("Approve execution of tool %q?", tc.Name),
		Args:   tc.Args,
	})
	if err != nil {
		rejErr := &ErrApprovalRejected{Tool: tc.Name, Reason: err.Error()}
		return &DispatchResult{Content: rejErr.Error(), Err: rejErr}
	}
	switch resp.Decision {
	case Approved:
		d.logger.Info("tool approved", "tool", tc.Name)
		return nil
	case ApprovalExpired:
		d.logger.Warn("tool approval timed out", "tool", tc.Name)
		toErr := &ErrApprovalTimeout{Tool: tc.Name}
		return &DispatchResult{Content: toErr.Error(), Err: toErr}
	default:
		d.logger.Warn("tool rejected", "tool", tc.Name, "reason", resp.Reason)
		rejErr := &ErrApprovalRejected{Tool: tc.Name, Reason: resp.Reason}
		return &DispatchResult{Content: rejErr.Error(), Err: rejErr}
	}
}
