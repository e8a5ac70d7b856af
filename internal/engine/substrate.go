package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/recordflow/recordflow/pkg/recordflow/core"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

// Substrate is the narrow durability surface the interpreter runs on. It
// hides how retries, timers and long waits are actually realised so the
// step handlers stay pure routing logic.
type Substrate interface {
	// Invoke runs op until it succeeds or the retry policy is exhausted.
	// A nil policy means the default policy.
	Invoke(ctx context.Context, policy *models.RetryPolicy, op func(ctx context.Context) (map[string]any, error)) (map[string]any, error)

	// Sleep blocks for d or until ctx is cancelled.
	Sleep(ctx context.Context, d time.Duration) error

	// Await polls pred every poll interval until it reports done, the
	// timeout elapses, or ctx is cancelled. A zero timeout means no
	// deadline. Returns false with a nil error when the deadline won.
	Await(ctx context.Context, timeout, poll time.Duration, pred func(ctx context.Context) (bool, error)) (bool, error)
}

type clockSubstrate struct {
	clock core.Clock
}

// NewSubstrate returns the in-process substrate. Durability comes from the
// checkpoints the manager writes around it, not from the substrate itself.
func NewSubstrate(clock core.Clock) Substrate {
	return &clockSubstrate{clock: clock}
}

func (s *clockSubstrate) Invoke(ctx context.Context, policy *models.RetryPolicy, op func(ctx context.Context) (map[string]any, error)) (map[string]any, error) {
	if policy == nil {
		policy = models.DefaultRetryPolicy()
	}
	var out map[string]any
	err := backoff.Retry(func() error {
		res, opErr := op(ctx)
		if opErr != nil {
			return opErr
		}
		out = res
		return nil
	}, backoff.WithContext(policy.Backoff(), ctx))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *clockSubstrate) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-s.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *clockSubstrate) Await(ctx context.Context, timeout, poll time.Duration, pred func(ctx context.Context) (bool, error)) (bool, error) {
	if poll <= 0 {
		poll = time.Second
	}
	var deadline <-chan time.Time
	if timeout > 0 {
		deadline = s.clock.After(timeout)
	}
	for {
		done, err := pred(ctx)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
		select {
		case <-deadline:
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		case <-s.clock.After(poll):
		}
	}
}
