package axon

import (
	"context"
	"log/slog"
)

// ContextBuffer is the ordered message history for one driver. It owns
// the token budget and invokes the installed compressor lazily before
// each model call. Not safe for concurrent use; the driver owns it
// exclusively for its lifetime.
type ContextBuffer struct {
	messages   []ChatMessage
	budget     int
	compressor Compressor
	logger     *slog.Logger
}

// NewContextBuffer creates a buffer with the given token budget.
// A budget of zero disables compression entirely.
func NewContextBuffer(budget int) *ContextBuffer {
	return &ContextBuffer{budget: budget, logger: nopLogger}
}

// SetCompressor installs the compressor invoked by Prepare.
func (b *ContextBuffer) SetCompressor(c Compressor) { b.compressor = c }

// SetLogger replaces the buffer's logger.
func (b *ContextBuffer) SetLogger(l *slog.Logger) {
	if l != nil {
		b.logger = l
	}
}

// Push appends a message. Messages are append-only within a single
// execution; compression replaces the sequence wholesale instead of
// mutating entries.
func (b *ContextBuffer) Push(m ChatMessage) {
	b.messages = append(b.messages, m)
}

// Messages returns the current sequence. Callers must not mutate it.
func (b *ContextBuffer) Messages() []ChatMessage { return b.messages }

// Len returns the number of messages.
func (b *ContextBuffer) Len() int { return len(b.messages) }

// Reset clears the history back to a single system message.
func (b *ContextBuffer) Reset(systemPrompt string) {
	b.messages = b.messages[:0]
	b.messages = append(b.messages, SystemMessage(systemPrompt))
}

// Restore replaces the buffer contents with a session snapshot.
func (b *ContextBuffer) Restore(messages []ChatMessage) {
	b.messages = append(b.messages[:0], messages...)
}

// Estimate returns the token estimate of the current sequence.
func (b *ContextBuffer) Estimate() int { return EstimateTokens(b.messages) }

// Prepare returns the message sequence for the next model call,
// compressing first when the estimate exceeds the budget and a
// compressor is installed. Idempotent: under budget it returns the
// buffer unchanged. Compression is best-effort — on error the buffer is
// left as is (logged at WARN), and if the result still exceeds the
// budget the driver proceeds anyway.
func (b *ContextBuffer) Prepare(ctx context.Context) ([]ChatMessage, error) {
	if b.budget <= 0 || b.compressor == nil {
		return b.messages, nil
	}
	estimate := b.Estimate()
	if estimate <= b.budget {
		return b.messages, nil
	}

	compressed, err := b.compressor.Compress(ctx, b.messages)
	if err != nil {
		if IsCancelled(err) {
			return nil, err
		}
		b.logger.Warn("context compression failed, continuing uncompressed", "error", err)
		return b.messages, nil
	}

	b.logger.Info("context compressed",
		"before_tokens", estimate,
		"after_tokens", EstimateTokens(compressed),
		"before_messages", len(b.messages),
		"after_messages", len(compressed))
	b.messages = compressed
	return b.messages, nil
}
