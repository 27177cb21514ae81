// Package retry is the single retry policy used for best-effort calls to
// external collaborators. Call sites share one curve instead of growing their
// own loops.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes an exponential backoff bounded by a fixed attempt count.
type Policy struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultPolicy mirrors the observed resolver behavior: a handful of quick
// attempts, then give up.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, Multiplier: 2}

// Do runs op until it succeeds, the attempt budget is spent, or ctx is done.
// The last error is returned on exhaustion.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	if p.Multiplier > 0 {
		eb.Multiplier = p.Multiplier
	}
	eb.RandomizationFactor = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, attempts-1), ctx)
	return backoff.Retry(op, policy)
}

// Permanent marks an error as non-retriable so Do stops immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
