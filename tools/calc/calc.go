// Package calc provides a basic arithmetic tool.
package calc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/nevindra/axon"
)

// Tool performs arithmetic on two operands.
type Tool struct{}

// New creates the calculator tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Definitions() []axon.ToolDefinition {
	return []axon.ToolDefinition{{
		Name:        "calculator",
		Description: "Perform arithmetic: add, subtract, multiply, divide, power, or modulo two numbers.",
		Parameters: json.RawMessage(`{"type":"object","properties":{
			"operation":{"type":"string","enum":["add","subtract","multiply","divide","power","modulo"]},
			"a":{"type":"number"},
			"b":{"type":"number"}},
			"required":["operation","a","b"]}`),
	}}
}

func (t *Tool) Execute(_ context.Context, _ string, args json.RawMessage) (axon.ToolResult, error) {
	var params struct {
		Operation string  `json:"operation"`
		A         float64 `json:"a"`
		B         float64 `json:"b"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return axon.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	var result float64
	switch params.Operation {
	case "add":
		result = params.A + params.B
	case "subtract":
		result = params.A - params.B
	case "multiply":
		result = params.A * params.B
	case "divide":
		if params.B == 0 {
			return axon.ToolResult{Error: "division by zero"}, nil
		}
		result = params.A / params.B
	case "power":
		result = math.Pow(params.A, params.B)
	case "modulo":
		if params.B == 0 {
			return axon.ToolResult{Error: "modulo by zero"}, nil
		}
		result = math.Mod(params.A, params.B)
	default:
		return axon.ToolResult{Error: "unknown operation: " + params.Operation}, nil
	}

	return axon.ToolResult{Content: formatNumber(result)}, nil
}

// formatNumber renders integers without a trailing ".0" so the model
// sees "7", not "7.000000".
func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

var _ axon.Tool = (*Tool)(nil)
