// Package approval provides ApprovalGate deliveries: an interactive
// console gate and an HTTP webhook gate. Both block the calling
// goroutine until a decision arrives, the configured timeout elapses,
// or the context is cancelled.
package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nevindra/axon"
)

// Console delivers approval requests on a terminal: it prints the tool
// name and arguments, then reads one line. "y"/"yes" approves; an
// empty line, "n" or "no" rejects without a reason; any other text
// rejects, with the typed text recorded as the reason.
// Free-text requests return the line verbatim.
type Console struct {
	in  *bufio.Reader
	out io.Writer
	// Timeout bounds how long to wait for input. Zero waits forever.
	Timeout time.Duration
}

// NewConsole creates a console gate on stdin/stdout.
func NewConsole() *Console {
	return &Console{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

// NewConsoleWith creates a console gate on the given streams, for
// embedding in other UIs and for tests.
func NewConsoleWith(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

func (c *Console) Request(ctx context.Context, req axon.ApprovalRequest) (axon.ApprovalResponse, error) {
	if req.Tool != "" {
		fmt.Fprintf(c.out, "\n[approval] %s\n  args: %s\n  approve? [y/N] ", req.Prompt, string(req.Args))
	} else {
		fmt.Fprintf(c.out, "\n[input] %s\n> ", req.Prompt)
	}

	type lineResult struct {
		line string
		err  error
	}
	ch := make(chan lineResult, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		ch <- lineResult{strings.TrimSpace(line), err}
	}()

	var timeout <-chan time.Time
	if c.Timeout > 0 {
		timer := time.NewTimer(c.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return axon.ApprovalResponse{}, ctx.Err()
	case <-timeout:
		return axon.ApprovalResponse{Decision: axon.ApprovalExpired}, nil
	case res := <-ch:
		if res.err != nil && res.line == "" {
			return axon.ApprovalResponse{}, res.err
		}
		if req.Tool == "" {
			return axon.ApprovalResponse{Decision: axon.Approved, Text: res.line}, nil
		}
		switch strings.ToLower(res.line) {
		case "y", "yes":
			return axon.ApprovalResponse{Decision: axon.Approved}, nil
		case "", "n", "no":
			return axon.ApprovalResponse{Decision: axon.Rejected}, nil
		default:
			return axon.ApprovalResponse{Decision: axon.Rejected, Reason: res.line}, nil
		}
	}
}

var _ axon.ApprovalGate = (*Console)(nil)
