package axon

import (
	"context"
	"encoding/json"
)

// ApprovalDecision is the outcome of a human approval request.
type ApprovalDecision int

const (
	// Approved means the call may proceed.
	Approved ApprovalDecision = iota
	// Rejected means the call is skipped; Reason may explain why.
	Rejected
	// ApprovalExpired means no decision arrived in time. Treated the
	// same as a rejection by the dispatcher.
	ApprovalExpired
)

// ApprovalRequest presents a pending tool call to a human. Args is the
// argument object verbatim; deliveries must not redact or reformat it.
type ApprovalRequest struct {
	// Tool is the name of the tool awaiting approval. Empty for
	// free-text input requests issued by the human_in_loop tool.
	Tool string
	// Prompt is the question shown to the human.
	Prompt string
	// Args carries the tool call arguments.
	Args json.RawMessage
}

// ApprovalResponse is the human's reply.
type ApprovalResponse struct {
	Decision ApprovalDecision
	// Reason optionally explains a rejection.
	Reason string
	// Text carries the free-text answer for input requests.
	Text string
}

// ApprovalGate delivers approval and free-text requests to a human and
// blocks until a response arrives or ctx is cancelled. The delivery
// mechanism (console, webhook, push channel) is pluggable; the approval
// package ships console and webhook implementations.
type ApprovalGate interface {
	Request(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error)
}
