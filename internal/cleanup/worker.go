// Package cleanup runs the periodic purge workers for the revocation ledger
// and the one-time token store. A failed cycle never stops a worker; it logs
// and waits for the next tick.
package cleanup

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"auth-control-plane/internal/retry"
)

const (
	purgeRetryAttempts = 3
	purgeRetryBase     = time.Second
)

// PurgeFunc removes dead rows as of now and returns the number removed.
type PurgeFunc func(ctx context.Context, now time.Time) (int64, error)

// LedgerPurger is the revocation ledger's purge surface.
type LedgerPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenPurger is the one-time token store's purge surface.
type TokenPurger interface {
	PurgeDead(ctx context.Context, cutoff time.Time) (int64, error)
}

// Worker runs one purge function on a fixed interval.
type Worker struct {
	name      string
	interval  time.Duration
	purge     PurgeFunc
	retryBase time.Duration
	log       zerolog.Logger
}

// NewWorker returns a Worker that calls purge every interval.
func NewWorker(name string, interval time.Duration, purge PurgeFunc, log zerolog.Logger) *Worker {
	return &Worker{name: name, interval: interval, purge: purge, retryBase: purgeRetryBase, log: log}
}

// NewLedgerWorker purges revocation ledger entries whose natural expiry has
// passed. Entries are never removed before their credential could have expired
// on its own.
func NewLedgerWorker(ledger LedgerPurger, interval time.Duration, log zerolog.Logger) *Worker {
	return NewWorker("revocation-ledger", interval, func(ctx context.Context, now time.Time) (int64, error) {
		return ledger.PurgeExpired(ctx, now)
	}, log)
}

// NewOneTimeTokenWorker purges one-time tokens that expired, were consumed, or
// were invalidated more than retention ago. Live tokens are never touched.
func NewOneTimeTokenWorker(tokens TokenPurger, interval, retention time.Duration, log zerolog.Logger) *Worker {
	return NewWorker("one-time-tokens", interval, func(ctx context.Context, now time.Time) (int64, error) {
		return tokens.PurgeDead(ctx, now.Add(-retention))
	}, log)
}

// Run executes one cycle immediately, then one per interval until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info().Str("worker", w.name).Dur("interval", w.interval).Msg("cleanup: worker started")
	w.cycle(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Str("worker", w.name).Msg("cleanup: worker stopped")
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

// cycle runs one purge with bounded retry. Exhausted retries are logged; the
// rows stay for the next cycle.
func (w *Worker) cycle(ctx context.Context) {
	var removed int64
	err := retry.Do(ctx, purgeRetryAttempts, w.retryBase, func(ctx context.Context) error {
		n, err := w.purge(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Str("worker", w.name).Msg("cleanup: purge cycle failed")
		}
		return
	}
	if removed > 0 {
		w.log.Info().Str("worker", w.name).Int64("removed", removed).Msg("cleanup: purge cycle done")
	}
}
