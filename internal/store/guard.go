package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gdelt-ingest/internal/model"
	"github.com/sells-group/gdelt-ingest/internal/resilience"
)

// Guarded wraps a Store so that writes and clears retry while the backend
// is unavailable and stop reaching it at all once a breaker opens.
type Guarded struct {
	Store
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
}

// Guard wraps s. Only ErrUnavailable failures are retried or count toward
// the breaker; bad input fails fast.
func Guard(s Store, bc resilience.BreakerConfig, rc resilience.RetryConfig) *Guarded {
	if bc.ShouldTrip == nil {
		bc.ShouldTrip = IsUnavailable
	}
	if bc.OnStateChange == nil {
		bc.OnStateChange = func(from, to resilience.BreakerState) {
			zap.L().Warn("store breaker state change",
				zap.String("component", "store"),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	if rc.ShouldRetry == nil {
		rc.ShouldRetry = IsUnavailable
	}
	if rc.OnRetry == nil {
		rc.OnRetry = resilience.RetryLogger("store", "write")
	}
	return &Guarded{Store: s, breaker: resilience.NewBreaker(bc), retry: rc}
}

// Breaker exposes the breaker state for status output.
func (g *Guarded) Breaker() *resilience.Breaker { return g.breaker }

// Write retries transient failures within one breaker call.
func (g *Guarded) Write(ctx context.Context, t Target, records []model.Record) (int64, error) {
	n, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (int64, error) {
		return resilience.DoVal(ctx, g.retry, func(ctx context.Context) (int64, error) {
			return g.Store.Write(ctx, t, records)
		})
	})
	return n, openAsUnavailable(err, t)
}

// Clear retries transient failures within one breaker call.
func (g *Guarded) Clear(ctx context.Context, t Target) error {
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Do(ctx, g.retry, func(ctx context.Context) error {
			return g.Store.Clear(ctx, t)
		})
	})
	return openAsUnavailable(err, t)
}

func openAsUnavailable(err error, t Target) error {
	if errors.Is(err, resilience.ErrBreakerOpen) {
		return eris.Wrapf(ErrUnavailable, "store: %s skipped, circuit open", t.Table())
	}
	return err
}
