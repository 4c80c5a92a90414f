package axon

import "context"

// SessionSnapshot is the full replayable message prefix needed to
// resume a conversation, keyed by session id.
type SessionSnapshot struct {
	SessionID string        `json:"session_id"`
	Messages  []ChatMessage `json:"messages"`
}

// SessionStore is the short-term memory interface: one snapshot per
// session id, loaded on execute start and saved on normal return.
// Handles may be shared across drivers; implementations serialize
// writes and allow concurrent reads.
type SessionStore interface {
	// Get returns the snapshot for id, if present.
	Get(ctx context.Context, id string) (SessionSnapshot, bool, error)
	// Put stores the snapshot for id, replacing any previous one.
	Put(ctx context.Context, id string, messages []ChatMessage) error
	// List returns all known session ids.
	List(ctx context.Context) ([]string, error)
	// Delete removes the snapshot for id.
	Delete(ctx context.Context, id string) error
}
