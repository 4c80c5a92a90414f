package axon

import (
	"context"
	"fmt"
	"strings"
)

// Compressor transforms a message sequence into a shorter one. The
// leading system message is always preserved, and the configured tail
// of the input survives verbatim at the end of the output.
type Compressor interface {
	Compress(ctx context.Context, messages []ChatMessage) ([]ChatMessage, error)
}

// splitSystem partitions messages into leading system messages and the
// conversation remainder. Synthetic summary messages produced by earlier
// compression passes carry the system role too and stay with the head,
// so successive passes never push them into the window count.
func splitSystem(messages []ChatMessage) (system, conv []ChatMessage) {
	for _, m := range messages {
		if m.Role == "system" && len(conv) == 0 {
			system = append(system, m)
			continue
		}
		conv = append(conv, m)
	}
	return system, conv
}

// --- Sliding window ---

// SlidingWindowCompressor keeps the last Window conversation messages,
// always preserving the leading system message. Pure memory operation.
type SlidingWindowCompressor struct {
	Window int
}

// NewSlidingWindow creates a sliding-window compressor keeping the last
// window messages.
func NewSlidingWindow(window int) *SlidingWindowCompressor {
	return &SlidingWindowCompressor{Window: window}
}

func (c *SlidingWindowCompressor) Compress(_ context.Context, messages []ChatMessage) ([]ChatMessage, error) {
	system, conv := splitSystem(messages)
	if len(conv) <= c.Window {
		return messages, nil
	}
	out := make([]ChatMessage, 0, len(system)+c.Window)
	out = append(out, system...)
	out = append(out, conv[len(conv)-c.Window:]...)
	return out, nil
}

// --- Summary ---

// summaryPrompt instructs the model to fold older conversation into a
// compact state description the loop can continue from.
const summaryPrompt = `Summarize the following conversation history concisely. Preserve the user's explicit requests and goals, key decisions, tool results that matter for continuing the work, errors and how they were resolved, and any pending tasks. Omit redundant detail. The summary must be sufficient for the conversation to continue without the original messages.`

// SummaryCompressor replaces everything but the last KeepRecent
// conversation messages with one LLM-written summary, inserted as a
// system message between the original system prompt and the preserved
// tail. Errors from the provider propagate; the input is not mutated.
type SummaryCompressor struct {
	Provider   Provider
	KeepRecent int
}

// NewSummary creates a summary compressor preserving the last
// keepRecent messages verbatim.
func NewSummary(provider Provider, keepRecent int) *SummaryCompressor {
	return &SummaryCompressor{Provider: provider, KeepRecent: keepRecent}
}

func (c *SummaryCompressor) Compress(ctx context.Context, messages []ChatMessage) ([]ChatMessage, error) {
	system, conv := splitSystem(messages)
	if len(conv) <= c.KeepRecent {
		return messages, nil
	}

	split := len(conv) - c.KeepRecent
	old, tail := conv[:split], conv[split:]

	var history strings.Builder
	for _, m := range old {
		if m.Content == "" {
			continue
		}
		fmt.Fprintf(&history, "[%s]: %s\n", m.Role, m.Content)
	}

	// Deterministic-leaning temperature: the summary should be stable
	// for identical history.
	temp := 0.2
	resp, err := c.Provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{
			SystemMessage(summaryPrompt),
			UserMessage(history.String()),
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}

	out := make([]ChatMessage, 0, len(system)+1+len(tail))
	out = append(out, system...)
	out = append(out, SystemMessage("Summary of earlier conversation: "+resp.Content))
	out = append(out, tail...)
	return out, nil
}

// --- Staged ---

// StagedCompressor chains compressors: each stage's output feeds the
// next. Typical use: a sliding window first (cheap trim), then a
// summary (expensive but semantic).
type StagedCompressor struct {
	Stages []Compressor
}

// NewStaged creates a pipeline running stages in order.
func NewStaged(stages ...Compressor) *StagedCompressor {
	return &StagedCompressor{Stages: stages}
}

func (c *StagedCompressor) Compress(ctx context.Context, messages []ChatMessage) ([]ChatMessage, error) {
	var err error
	for _, stage := range c.Stages {
		messages, err = stage.Compress(ctx, messages)
		if err != nil {
			return nil, err
		}
	}
	return messages, nil
}
