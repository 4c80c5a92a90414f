package axon

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"time"
)

// retryProvider wraps a Provider and automatically retries transient
// failures (network I/O, 429, 5xx, empty or undecodable responses) with
// exponential backoff. Terminal failures — authentication, other 4xx,
// schema rejections in strict structured-output mode — surface at once.
type retryProvider struct {
	inner       Provider
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *slog.Logger
}

// RetryOption configures a retryProvider.
type RetryOption func(*retryProvider)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retryProvider) { r.maxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay before the second
// attempt (default: 1s). Each subsequent delay doubles.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.baseDelay = d }
}

// RetryMaxDelay caps the per-attempt backoff delay (default: 30s).
func RetryMaxDelay(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.maxDelay = d }
}

// RetryLogger sets the structured logger for retry events. Retries log
// at WARN; final failures after exhausting attempts log at ERROR.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryProvider) { r.logger = l }
}

// WithRetry wraps p with automatic retry on transient errors. Compose
// with any Provider:
//
//	llm := axon.WithRetry(openaicompat.New(apiKey, model, baseURL))
//	llm := axon.WithRetry(llm, axon.RetryMaxAttempts(5))
func WithRetry(p Provider, opts ...RetryOption) Provider {
	r := &retryProvider{
		inner:       p,
		maxAttempts: 3,
		baseDelay:   time.Second,
		maxDelay:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

func (r *retryProvider) Name() string { return r.inner.Name() }

// Chat implements Provider with retry.
func (r *retryProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var last error
	for i := 0; i < r.maxAttempts; i++ {
		resp, err := r.inner.Chat(ctx, req)
		if err == nil || !IsRetryable(err) {
			return resp, err
		}
		last = err
		r.logger.Warn("retrying transient error",
			"provider", r.inner.Name(),
			"attempt", i+1,
			"max_attempts", r.maxAttempts,
			"error", err)
		if i < r.maxAttempts-1 {
			if err := r.sleep(ctx, i); err != nil {
				return ChatResponse{}, err
			}
		}
	}
	r.logger.Error("all retry attempts exhausted",
		"provider", r.inner.Name(),
		"attempts", r.maxAttempts,
		"error", last)
	return ChatResponse{}, last
}

// ChatStream implements Provider with retry. Retries happen only if no
// event has been forwarded yet — once streaming has started, errors pass
// through immediately to avoid duplicating content. ch is always closed
// before returning.
func (r *retryProvider) ChatStream(ctx context.Context, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error) {
	var last error
	for i := 0; i < r.maxAttempts; i++ {
		mid := make(chan StreamEvent, 64)
		var (
			resp      ChatResponse
			streamErr error
		)
		done := make(chan struct{})
		go func() {
			defer close(done)
			resp, streamErr = r.inner.ChatStream(ctx, req, mid)
		}()

		var eventsSent bool
		for ev := range mid {
			eventsSent = true
			ch <- ev
		}
		<-done

		if streamErr == nil || !IsRetryable(streamErr) || eventsSent {
			close(ch)
			return resp, streamErr
		}

		last = streamErr
		r.logger.Warn("retrying transient error (stream)",
			"provider", r.inner.Name(),
			"attempt", i+1,
			"max_attempts", r.maxAttempts,
			"error", streamErr)
		if i < r.maxAttempts-1 {
			if err := r.sleep(ctx, i); err != nil {
				close(ch)
				return ChatResponse{}, err
			}
		}
	}
	r.logger.Error("all retry attempts exhausted (stream)",
		"provider", r.inner.Name(),
		"attempts", r.maxAttempts,
		"error", last)
	close(ch)
	return ChatResponse{}, last
}

// sleep waits out the backoff delay for attempt i, or returns early if
// ctx is cancelled.
func (r *retryProvider) sleep(ctx context.Context, i int) error {
	timer := time.NewTimer(r.backoff(i))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff returns the delay for retry i (0-indexed): base * 2^i with up
// to 50% random jitter, capped at maxDelay.
func (r *retryProvider) backoff(i int) time.Duration {
	exp := r.baseDelay * (1 << i)
	if exp > r.maxDelay {
		exp = r.maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	d := exp + jitter
	if d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

// IsRetryable classifies an error from an LLM transport. Retryable:
// network I/O failures, HTTP 429 and 5xx, and malformed or empty
// responses (ErrProtocol from a flaky upstream). Terminal: everything
// else, including authentication failures and other 4xx statuses.
func IsRetryable(err error) bool {
	var httpErr *ErrHTTP
	if errors.As(err, &httpErr) {
		return httpErr.Status == 429 || httpErr.Status >= 500
	}
	var protoErr *ErrProtocol
	if errors.As(err, &protoErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

var _ Provider = (*retryProvider)(nil)
