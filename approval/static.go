package approval

import (
	"context"

	"github.com/nevindra/axon"
)

// Static answers every request with a fixed response. Useful for
// non-interactive deployments ("approve everything in CI") and tests.
type Static struct {
	Response axon.ApprovalResponse
}

// ApproveAll returns a gate that approves every request.
func ApproveAll() *Static {
	return &Static{Response: axon.ApprovalResponse{Decision: axon.Approved}}
}

// RejectAll returns a gate that rejects every request with the reason.
func RejectAll(reason string) *Static {
	return &Static{Response: axon.ApprovalResponse{Decision: axon.Rejected, Reason: reason}}
}

func (s *Static) Request(_ context.Context, _ axon.ApprovalRequest) (axon.ApprovalResponse, error) {
	return s.Response, nil
}

var _ axon.ApprovalGate = (*Static)(nil)
