package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nevindra/axon"
)

// Webhook delivers approval requests over HTTP POST, suitable for
// bridging to chat bots and enterprise approval systems. The request
// blocks until the endpoint responds with a decision.
//
// Request body ("kind" distinguishes the scenario):
//
//	{"kind":"approval","prompt":"...","tool":"shell","args":{...}}
//	{"kind":"input","prompt":"..."}
//
// Response body:
//
//	{"decision":"approved"|"rejected"|"timeout","text":"...","reason":"..."}
type Webhook struct {
	url    string
	client *http.Client
	// Timeout bounds the whole round trip (default 5 minutes).
	Timeout time.Duration
}

// NewWebhook creates a webhook gate posting to url.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:     url,
		client:  &http.Client{},
		Timeout: 5 * time.Minute,
	}
}

type webhookPayload struct {
	Kind   string          `json:"kind"`
	Prompt string          `json:"prompt"`
	Tool   string          `json:"tool,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
}

type webhookResponse struct {
	Decision string `json:"decision"`
	Text     string `json:"text"`
	Reason   string `json:"reason"`
}

func (w *Webhook) Request(ctx context.Context, req axon.ApprovalRequest) (axon.ApprovalResponse, error) {
	kind := "approval"
	if req.Tool == "" {
		kind = "input"
	}
	payload, err := json.Marshal(webhookPayload{
		Kind:   kind,
		Prompt: req.Prompt,
		Tool:   req.Tool,
		Args:   req.Args,
	})
	if err != nil {
		return axon.ApprovalResponse{}, err
	}

	reqCtx := ctx
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return axon.ApprovalResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		// A timed-out round trip is a decision that never arrived, not
		// a transport failure worth aborting the execution for.
		if reqCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return axon.ApprovalResponse{Decision: axon.ApprovalExpired}, nil
		}
		return axon.ApprovalResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return axon.ApprovalResponse{}, fmt.Errorf("approval webhook returned status %d", resp.StatusCode)
	}

	var decoded webhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return axon.ApprovalResponse{}, fmt.Errorf("approval webhook response: %w", err)
	}

	if kind == "input" {
		if decoded.Text == "" {
			return axon.ApprovalResponse{Decision: axon.ApprovalExpired}, nil
		}
		return axon.ApprovalResponse{Decision: axon.Approved, Text: decoded.Text}, nil
	}

	switch decoded.Decision {
	case "approved":
		return axon.ApprovalResponse{Decision: axon.Approved}, nil
	case "rejected":
		return axon.ApprovalResponse{Decision: axon.Rejected, Reason: decoded.Reason}, nil
	case "timeout", "":
		return axon.ApprovalResponse{Decision: axon.ApprovalExpired}, nil
	default:
		return axon.ApprovalResponse{}, fmt.Errorf("approval webhook returned unknown decision %q", decoded.Decision)
	}
}

var _ axon.ApprovalGate = (*Webhook)(nil)
