package axon

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestEstimateTokensCharsOverFour(t *testing.T) {
	messages := []ChatMessage{
		SystemMessage(strings.Repeat("x", 8)), // 2 tokens
		UserMessage(strings.Repeat("y", 5)),   // rounds up
	}
	// 13 chars -> ceil(13/4) = 4
	if got := EstimateTokens(messages); got != 4 {
		t.Errorf("EstimateTokens = %d, want 4", got)
	}
	if got := EstimateTokens(nil); got != 0 {
		t.Errorf("EstimateTokens(nil) = %d, want 0", got)
	}
}

func TestPrepareUnderBudgetReturnsUnchanged(t *testing.T) {
	b := NewContextBuffer(1000)
	b.SetCompressor(NewSlidingWindow(2))
	b.Reset("sys")
	b.Push(UserMessage("hello"))
	b.Push(AssistantMessage("hi"))

	got, err := b.Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("under-budget Prepare changed the buffer: %d messages", len(got))
	}
}

func TestPrepareCompressesOverBudget(t *testing.T) {
	b := NewContextBuffer(10) // tiny budget
	b.SetCompressor(NewSlidingWindow(2))
	b.Reset("sys")
	for i := 0; i < 10; i++ {
		b.Push(UserMessage(strings.Repeat("a", 40)))
		b.Push(AssistantMessage(strings.Repeat("b", 40)))
	}

	got, err := b.Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(got) != 3 { // system + window of 2
		t.Fatalf("compressed length = %d, want 3", len(got))
	}
	if got[0].Role != "system" {
		t.Error("compression dropped the system message")
	}
	// The buffer itself was replaced.
	if b.Len() != 3 {
		t.Errorf("buffer not replaced after compression: %d", b.Len())
	}
}

func TestPrepareWithoutCompressorProceeds(t *testing.T) {
	b := NewContextBuffer(1)
	b.Reset("sys")
	b.Push(UserMessage(strings.Repeat("x", 100)))

	got, err := b.Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("no-compressor Prepare mutated the buffer")
	}
}

type failingCompressor struct{}

func (failingCompressor) Compress(context.Context, []ChatMessage) ([]ChatMessage, error) {
	return nil, errors.New("summarizer unavailable")
}

func TestPrepareDegradesOnCompressionFailure(t *testing.T) {
	b := NewContextBuffer(1)
	b.SetCompressor(failingCompressor{})
	b.Reset("sys")
	b.Push(UserMessage(strings.Repeat("x", 100)))

	got, err := b.Prepare(context.Background())
	if err != nil {
		t.Fatalf("compression failure must not abort: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("failed compression mutated the buffer: %d messages", len(got))
	}
}

func TestPrepareCancellationPropagates(t *testing.T) {
	b := NewContextBuffer(1)
	b.SetCompressor(&SummaryCompressor{Provider: &mockProvider{errs: []error{context.Canceled}}, KeepRecent: 1})
	b.Reset("sys")
	b.Push(UserMessage(strings.Repeat("x", 100)))
	b.Push(AssistantMessage("y"))

	_, err := b.Prepare(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled to propagate", err)
	}
}
