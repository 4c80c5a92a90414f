// Package file provides read, write, and list tools rooted in a
// workspace directory. Paths are confined to the workspace; traversal
// outside it is rejected.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nevindra/axon"
)

// maxReadBytes bounds file reads so one tool call cannot flood the
// conversation history.
const maxReadBytes = 256 * 1024

// Tool exposes workspace file operations.
type Tool struct {
	root string
}

// New creates a file tool rooted at root.
func New(root string) *Tool {
	return &Tool{root: root}
}

func (t *Tool) Definitions() []axon.ToolDefinition {
	return []axon.ToolDefinition{
		{
			Name:        "read_file",
			Description: "Read a text file from the workspace.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Path relative to the workspace root"}},"required":["path"]}`),
		},
		{
			Name:        "write_file",
			Description: "Write a text file in the workspace, creating parent directories as needed.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`),
		},
		{
			Name:        "list_dir",
			Description: "List the entries of a workspace directory.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"Path relative to the workspace root, default ."}}}`),
		},
	}
}

func (t *Tool) Execute(_ context.Context, name string, args json.RawMessage) (axon.ToolResult, error) {
	switch name {
	case "read_file":
		var params struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(args, &params); err != nil || params.Path == "" {
			return axon.ToolResult{Error: "read_file requires a path argument"}, nil
		}
		full, err := t.resolve(params.Path)
		if err != nil {
			return axon.ToolResult{Error: err.Error()}, nil
		}
		raw, err := os.ReadFile(full)
		if err != nil {
			return axon.ToolResult{Error: err.Error()}, nil
		}
		if len(raw) > maxReadBytes {
			raw = raw[:maxReadBytes]
			return axon.ToolResult{Content: string(raw) + "\n[file truncated]"}, nil
		}
		return axon.ToolResult{Content: string(raw)}, nil

	case "write_file":
		var params struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(args, &params); err != nil || params.Path == "" {
			return axon.ToolResult{Error: "write_file requires path and content arguments"}, nil
		}
		full, err := t.resolve(params.Path)
		if err != nil {
			return axon.ToolResult{Error: err.Error()}, nil
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return axon.ToolResult{Error: err.Error()}, nil
		}
		if err := os.WriteFile(full, []byte(params.Content), 0o644); err != nil {
			return axon.ToolResult{Error: err.Error()}, nil
		}
		return axon.ToolResult{Content: fmt.Sprintf("wrote %d bytes to %s", len(params.Content), params.Path)}, nil

	case "list_dir":
		var params struct {
			Path string `json:"path"`
		}
		_ = json.Unmarshal(args, &params)
		if params.Path == "" {
			params.Path = "."
		}
		full, err := t.resolve(params.Path)
		if err != nil {
			return axon.ToolResult{Error: err.Error()}, nil
		}
		entries, err := os.ReadDir(full)
		if err != nil {
			return axon.ToolResult{Error: err.Error()}, nil
		}
		var b strings.Builder
		for _, e := range entries {
			if e.IsDir() {
				fmt.Fprintf(&b, "%s/\n", e.Name())
			} else {
				fmt.Fprintf(&b, "%s\n", e.Name())
			}
		}
		if b.Len() == 0 {
			return axon.ToolResult{Content: "(empty)"}, nil
		}
		return axon.ToolResult{Content: b.String()}, nil
	}
	return axon.ToolResult{Error: "unknown file tool: " + name}, nil
}

// resolve joins path onto the workspace root and rejects escapes.
func (t *Tool) resolve(path string) (string, error) {
	full := filepath.Clean(filepath.Join(t.root, path))
	root := filepath.Clean(t.root)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return full, nil
}

var _ axon.Tool = (*Tool)(nil)
