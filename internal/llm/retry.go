package llm

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/codeforge/codeforge/internal/errs"
)

// RetryConfig configures the exponential-backoff-with-jitter wrapper.
// Defaults mirror the spec: 500ms initial, factor 2, 60s cap, 3 retries.
type RetryConfig struct {
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	MaxRetries   int
}

// DefaultRetryConfig returns the spec's documented defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: 500 * time.Millisecond,
		Factor:       2,
		MaxDelay:     60 * time.Second,
		MaxRetries:   3,
	}
}

func (c RetryConfig) delay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	raw := float64(c.InitialDelay) * math.Pow(c.Factor, float64(attempt))
	if raw > float64(c.MaxDelay) {
		raw = float64(c.MaxDelay)
	}
	jitter := 0.5 + rand.Float64() // [0.5, 1.5)
	return time.Duration(raw * jitter)
}

// ClassifyHTTPStatus maps an HTTP status code to an error Kind.
func ClassifyHTTPStatus(status int) errs.Kind {
	switch {
	case status == http.StatusUnauthorized:
		return errs.KindAuthentication
	case status == http.StatusTooManyRequests:
		return errs.KindRateLimit
	case status >= 400 && status < 500:
		return errs.KindInvalidParameters
	case status >= 500:
		return errs.KindTransientNetwork
	default:
		return ""
	}
}

// RetryableError is satisfied by errors that carry a retry-after hint,
// e.g. a 429 response with a Retry-After header.
type RetryableError interface {
	error
	Kind() errs.Kind
	RetryAfter() time.Duration
}

// WithRetry runs op, retrying on RateLimit/TransientNetwork errors with
// exponential backoff honoring any Retry-After hint, up to MaxRetries.
// Server errors (5xx) retry under the same policy as transient network
// errors, per spec. Invalid-request and Aborted errors never retry.
func WithRetry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if errs.Is(err, errs.KindAborted) || errs.Is(err, errs.KindInternal) {
			return err
		}

		kind := errs.KindOf(err)
		if !errs.RetryPolicy(kind) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		var retryAfter time.Duration
		if re, ok := err.(RetryableError); ok {
			retryAfter = re.RetryAfter()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.delay(attempt, retryAfter)):
		}
	}
	return lastErr
}
