package axon

import (
	"context"
	"errors"
	"fmt"
)

// ErrLLM reports a failure originating in an LLM provider.
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP is a non-2xx response from an LLM transport. Retry middleware
// inspects Status to decide whether the failure is transient.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrProtocol reports a structurally malformed LLM response: missing
// required fields, undecodable JSON, or a schema rejection in strict
// structured-output mode.
type ErrProtocol struct {
	Message string
}

func (e *ErrProtocol) Error() string {
	return "protocol: " + e.Message
}

// ToolErrorKind classifies tool execution failures.
type ToolErrorKind int

const (
	ToolErrInternal ToolErrorKind = iota
	ToolErrTimeout
	ToolErrInvalidArguments
)

// ErrTool reports a failed tool execution. By default the driver feeds
// it back to the model as a tool result rather than aborting.
type ErrTool struct {
	Tool    string
	Kind    ToolErrorKind
	Message string
}

func (e *ErrTool) Error() string {
	switch e.Kind {
	case ToolErrTimeout:
		return fmt.Sprintf("tool %q timed out", e.Tool)
	case ToolErrInvalidArguments:
		return fmt.Sprintf("tool %q invalid arguments: %s", e.Tool, e.Message)
	default:
		return fmt.Sprintf("tool %q failed: %s", e.Tool, e.Message)
	}
}

// ErrApprovalRejected is returned when a human rejects a gated tool call.
// Control flow, not fatal: the driver reports the rejection to the model.
type ErrApprovalRejected struct {
	Tool   string
	Reason string
}

func (e *ErrApprovalRejected) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("tool %q rejected by approver", e.Tool)
	}
	return fmt.Sprintf("tool %q rejected by approver: %s", e.Tool, e.Reason)
}

// ErrApprovalTimeout is returned when an approval request expires before
// a decision arrives. Treated the same as a rejection.
type ErrApprovalTimeout struct {
	Tool string
}

func (e *ErrApprovalTimeout) Error() string {
	return fmt.Sprintf("tool %q approval timed out", e.Tool)
}

// ErrTaskGraph reports an invalid task-graph operation: a dependency
// cycle, a reference to an unknown task, or an illegal state transition.
type ErrTaskGraph struct {
	Message string
}

func (e *ErrTaskGraph) Error() string {
	return "task graph: " + e.Message
}

// ErrIterationLimit is returned by Execute when the loop exhausts its
// iteration budget without the model calling final_answer.
type ErrIterationLimit struct {
	Max int
}

func (e *ErrIterationLimit) Error() string {
	return fmt.Sprintf("iteration limit reached after %d iterations without a final answer", e.Max)
}

// ErrMemory reports a persistence failure in the KV or session store.
type ErrMemory struct {
	Op      string
	Message string
}

func (e *ErrMemory) Error() string {
	return fmt.Sprintf("memory %s: %s", e.Op, e.Message)
}

// IsCancelled reports whether err represents cooperative cancellation
// (context cancellation or deadline expiry anywhere in the chain).
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
