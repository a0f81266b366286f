package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Policy controls how connection setup is retried. Zero fields take the
// connect defaults: 4 attempts, 250ms first wait doubling up to 2s, ±20%
// jitter.
type Policy struct {
	// Operation names the step in logs and in the give-up error.
	Operation string

	// Attempts is the total number of calls to fn, including the first.
	Attempts int

	// FirstWait is the wait before the second attempt. Each later wait
	// doubles, capped at MaxWait.
	FirstWait time.Duration
	MaxWait   time.Duration

	// Jitter spreads each wait by ±Jitter of its length. Negative disables it.
	Jitter float64

	// Retryable overrides IsTransient when set.
	Retryable func(err error) bool

	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

func (p Policy) resolved() Policy {
	if p.Operation == "" {
		p.Operation = "connect"
	}
	if p.Attempts <= 0 {
		p.Attempts = 4
	}
	if p.FirstWait <= 0 {
		p.FirstWait = 250 * time.Millisecond
	}
	if p.MaxWait <= 0 {
		p.MaxWait = 2 * time.Second
	}
	if p.MaxWait < p.FirstWait {
		p.MaxWait = p.FirstWait
	}
	switch {
	case p.Jitter == 0:
		p.Jitter = 0.2
	case p.Jitter < 0:
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// waits returns the un-jittered wait after each failed attempt but the last.
func (p Policy) waits() []time.Duration {
	out := make([]time.Duration, 0, p.Attempts-1)
	w := p.FirstWait
	for i := 1; i < p.Attempts; i++ {
		out = append(out, w)
		w = min(2*w, p.MaxWait)
	}
	return out
}

func (p Policy) jitter(w time.Duration) time.Duration {
	if p.Jitter == 0 {
		return w
	}
	span := float64(w) * p.Jitter
	return max(0, w+time.Duration((rand.Float64()*2-1)*span))
}

// Do calls fn until it succeeds or fails with an error that is not
// retryable. Transient failures wait between attempts; when the attempts run
// out the last error is returned wrapped with the operation and attempt
// count. Cancelling ctx ends the wait and returns the last error unwrapped.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.resolved()
	log := zap.L().With(zap.String("operation", p.Operation))

	var err error
	for attempt, wait := range append(p.waits(), 0) {
		if err = fn(ctx); err == nil {
			if attempt > 0 {
				log.Info("recovered after retry", zap.Int("attempts", attempt+1))
			}
			return nil
		}
		if ctx.Err() != nil || !p.Retryable(err) {
			return err
		}
		if attempt == p.Attempts-1 {
			break
		}

		wait = p.jitter(wait)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, wait, err)
		}
		log.Warn("transient failure, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.String("error", err.Error()),
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}

	log.Warn("giving up", zap.Int("attempts", p.Attempts), zap.String("error", err.Error()))
	return eris.Wrapf(err, "%s: gave up after %d attempts", p.Operation, p.Attempts)
}
