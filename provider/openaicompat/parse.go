package openaicompat

import (
	"encoding/json"

	"github.com/nevindra/axon"
)

// ParseResponse converts an OpenAI completion response into the axon
// shape. A response without choices is a protocol violation (and is
// classified retryable by axon.IsRetryable, since empty responses from
// flaky upstreams resolve on retry).
func ParseResponse(resp ChatResponse) (axon.ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return axon.ChatResponse{}, &axon.ErrProtocol{Message: "response contained no choices"}
	}

	choice := resp.Choices[0]
	if choice.Message == nil {
		return axon.ChatResponse{}, &axon.ErrProtocol{Message: "choice contained no message"}
	}

	out := axon.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	if resp.Usage != nil {
		out.Usage = axon.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out.ToolCalls = append(out.ToolCalls, axon.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}

	return out, nil
}
