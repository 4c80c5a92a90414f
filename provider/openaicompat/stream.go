package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/nevindra/axon"
)

// StreamSSE reads an SSE stream from body, forwards token events to ch,
// and returns the fully accumulated response (content + tool calls +
// usage). Content fragments are concatenated; tool-call argument
// fragments accumulate per call index until the stream closes or
// signals completion with [DONE].
//
// The channel is closed when streaming completes. ctx cancels channel
// sends when the consumer is gone.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	data: [DONE]\n
func StreamSSE(ctx context.Context, body io.Reader, ch chan<- axon.StreamEvent) (axon.ChatResponse, error) {
	defer close(ch)

	scanner := bufio.NewScanner(body)
	// Large SSE payloads (long tool arguments) exceed the default.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var fullContent strings.Builder
	var usage axon.Usage
	var finishReason string

	// Tool calls stream incrementally: each chunk carries an index and
	// argument string fragments to append.
	type partialToolCall struct {
		ID   string
		Name string
		Args *strings.Builder
	}
	var toolCalls []partialToolCall

	for scanner.Scan() {
		line := scanner.Text()

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			break
		}

		var chunk ChatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}

		if len(chunk.Choices) == 0 {
			// Usage-only chunk (sent when stream_options.include_usage).
			if chunk.Usage != nil {
				usage.InputTokens = chunk.Usage.PromptTokens
				usage.OutputTokens = chunk.Usage.CompletionTokens
			}
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		delta := choice.Delta
		if delta == nil {
			continue
		}

		if delta.Content != "" {
			fullContent.WriteString(delta.Content)
			select {
			case ch <- axon.StreamEvent{Type: axon.EventToken, Content: delta.Content}:
			case <-ctx.Done():
				return axon.ChatResponse{}, ctx.Err()
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			for len(toolCalls) <= idx {
				toolCalls = append(toolCalls, partialToolCall{Args: &strings.Builder{}})
			}
			if tc.ID != "" {
				toolCalls[idx].ID = tc.ID
			}
			// Some providers resend name="" in later chunks; skip empty
			// values so they never overwrite the real name.
			if tc.Function.Name != "" {
				toolCalls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Args.WriteString(tc.Function.Arguments)
			}
		}

		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}
	}

	if err := scanner.Err(); err != nil {
		return axon.ChatResponse{}, err
	}

	var aggregated []axon.ToolCall
	for _, tc := range toolCalls {
		args := json.RawMessage(tc.Args.String())
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		aggregated = append(aggregated, axon.ToolCall{
			ID:   tc.ID,
			Name: tc.Name,
			Args: args,
		})
	}

	return axon.ChatResponse{
		Content:      fullContent.String(),
		ToolCalls:    aggregated,
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}
