package openaicompat

import (
	"errors"
	"testing"

	"github.com/nevindra/axon"
)

func TestParseResponseContentAndUsage(t *testing.T) {
	resp := ChatResponse{
		Choices: []Choice{{
			Message:      &RespMessage{Role: "assistant", Content: "hello"},
			FinishReason: "stop",
		}},
		Usage: &UsageBlock{PromptTokens: 12, CompletionTokens: 4},
	}
	out, err := ParseResponse(resp)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if out.Content != "hello" || out.FinishReason != "stop" {
		t.Errorf("out = %+v", out)
	}
	if out.Usage.InputTokens != 12 || out.Usage.OutputTokens != 4 {
		t.Errorf("usage = %+v", out.Usage)
	}
}

func TestParseResponseToolCalls(t *testing.T) {
	resp := ChatResponse{
		Choices: []Choice{{
			Message: &RespMessage{
				ToolCalls: []RespToolCall{
					{ID: "c1", Function: FunctionCall{Name: "add", Arguments: `{"a":1}`}},
					{ID: "c2", Function: FunctionCall{Name: "mul", Arguments: `not json`}},
				},
			},
			FinishReason: "tool_calls",
		}},
	}
	out, err := ParseResponse(resp)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(out.ToolCalls) != 2 {
		t.Fatalf("tool calls = %d", len(out.ToolCalls))
	}
	if out.ToolCalls[0].Name != "add" || string(out.ToolCalls[0].Args) != `{"a":1}` {
		t.Errorf("first call = %+v", out.ToolCalls[0])
	}
	// Malformed arguments degrade to an empty object, not a crash.
	if string(out.ToolCalls[1].Args) != `{}` {
		t.Errorf("malformed args = %s", out.ToolCalls[1].Args)
	}
}

func TestParseResponseEmptyChoicesIsProtocolError(t *testing.T) {
	_, err := ParseResponse(ChatResponse{})
	var protoErr *axon.ErrProtocol
	if !errors.As(err, &protoErr) {
		t.Errorf("err = %v, want *axon.ErrProtocol", err)
	}
	if !axon.IsRetryable(err) {
		t.Error("empty responses must classify as retryable")
	}
}
