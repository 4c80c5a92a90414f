package axon

import "encoding/json"

// StreamEventType identifies the kind of streaming event.
type StreamEventType string

const (
	// EventToken carries an incremental text chunk from the LLM.
	EventToken StreamEventType = "token"
	// EventToolCallStart signals a tool is about to be invoked.
	EventToolCallStart StreamEventType = "tool-call-start"
	// EventToolCallResult carries the result of a completed tool call.
	EventToolCallResult StreamEventType = "tool-call-result"
	// EventIteration marks the end of one think-act-observe round.
	EventIteration StreamEventType = "iteration"
	// EventFinalAnswer carries the answer extracted from final_answer.
	EventFinalAnswer StreamEventType = "final-answer"
)

// StreamEvent is a typed event emitted during agent streaming.
// Consumers receive these on the channel passed to ExecuteStream.
type StreamEvent struct {
	// Type identifies the event kind.
	Type StreamEventType `json:"type"`
	// Name is the tool name (set for tool events, empty otherwise).
	Name string `json:"name,omitempty"`
	// Content carries the text delta (token), tool result
	// (tool-call-result), or answer text (final-answer).
	Content string `json:"content,omitempty"`
	// Args carries the tool call arguments (tool-call-start only).
	Args json.RawMessage `json:"args,omitempty"`
	// Iteration is the 0-based round index (iteration events only).
	Iteration int `json:"iteration,omitempty"`
}
