package llm

import (
	"context"
	"sync"

	"github.com/codeforge/codeforge/internal/errs"
)

// Refresher performs a credential refresh for one provider. Implementations
// live alongside each provider adapter (e.g. the OAuth token store).
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshCoalescer serializes concurrent refresh calls for the same
// provider so that N callers observing an expired token trigger exactly
// one in-flight refresh, per spec §4.2. No pack example wires
// golang.org/x/sync/singleflight for this; a small mutex-gated in-flight
// map achieves the same coalescing.
type RefreshCoalescer struct {
	mu       sync.Mutex
	inflight map[string]*refreshCall
}

type refreshCall struct {
	done chan struct{}
	err  error
}

// NewRefreshCoalescer constructs an empty coalescer.
func NewRefreshCoalescer() *RefreshCoalescer {
	return &RefreshCoalescer{inflight: make(map[string]*refreshCall)}
}

// Do runs refresher.Refresh for providerID, coalescing concurrent callers.
func (c *RefreshCoalescer) Do(ctx context.Context, providerID string, refresher Refresher) error {
	c.mu.Lock()
	if call, ok := c.inflight[providerID]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	c.inflight[providerID] = call
	c.mu.Unlock()

	call.err = refresher.Refresh(ctx)

	c.mu.Lock()
	delete(c.inflight, providerID)
	c.mu.Unlock()
	close(call.done)
	return call.err
}

// WithAuthRefresh wraps a Provider operation with the spec's 401 policy:
// on authentication failure, refresh once via the coalescer and retry the
// original operation exactly once; if no refresh is possible or the retry
// also fails, surface an authentication error.
func WithAuthRefresh(ctx context.Context, providerID string, coalescer *RefreshCoalescer, refresher Refresher, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil || !errs.Is(err, errs.KindAuthentication) {
		return err
	}
	if refresher == nil {
		return err
	}
	if rerr := coalescer.Do(ctx, providerID, refresher); rerr != nil {
		return errs.Wrap(errs.KindAuthentication, "refresh failed", rerr)
	}
	return op(ctx)
}
