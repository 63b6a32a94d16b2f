package cleanup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWorker_RunsCyclesUntilCancelled(t *testing.T) {
	var calls int64
	w := NewWorker("test", 5*time.Millisecond, func(ctx context.Context, now time.Time) (int64, error) {
		atomic.AddInt64(&calls, 1)
		return 1, nil
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	if got := atomic.LoadInt64(&calls); got < 2 {
		t.Errorf("cycles = %d, want at least 2", got)
	}
}

func TestWorker_FailingCycleDoesNotStopWorker(t *testing.T) {
	var calls int64
	w := NewWorker("test", 5*time.Millisecond, func(ctx context.Context, now time.Time) (int64, error) {
		atomic.AddInt64(&calls, 1)
		return 0, errors.New("db down")
	}, zerolog.Nop())
	w.retryBase = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	// Each cycle retries internally and fails; the worker must keep ticking.
	if got := atomic.LoadInt64(&calls); got < purgeRetryAttempts+1 {
		t.Errorf("purge calls = %d, want more than one cycle's worth (%d)", got, purgeRetryAttempts)
	}
}

func TestWorker_RetriesTransientFailure(t *testing.T) {
	var calls int64
	w := NewWorker("test", time.Hour, func(ctx context.Context, now time.Time) (int64, error) {
		if atomic.AddInt64(&calls, 1) < 2 {
			return 0, errors.New("transient")
		}
		return 3, nil
	}, zerolog.Nop())
	w.retryBase = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	w.cycle(ctx)
	cancel()

	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("purge calls = %d, want 2 (one failure, one success)", got)
	}
}

type fakeLedger struct {
	gotNow time.Time
}

func (f *fakeLedger) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	f.gotNow = now
	return 0, nil
}

type fakeTokens struct {
	gotCutoff time.Time
}

func (f *fakeTokens) PurgeDead(ctx context.Context, cutoff time.Time) (int64, error) {
	f.gotCutoff = cutoff
	return 0, nil
}

func TestNewOneTimeTokenWorker_AppliesRetention(t *testing.T) {
	tokens := &fakeTokens{}
	w := NewOneTimeTokenWorker(tokens, time.Hour, 24*time.Hour, zerolog.Nop())

	before := time.Now().UTC().Add(-24 * time.Hour)
	w.cycle(context.Background())
	after := time.Now().UTC().Add(-24 * time.Hour)

	if tokens.gotCutoff.Before(before) || tokens.gotCutoff.After(after) {
		t.Errorf("cutoff = %v, want roughly now-24h", tokens.gotCutoff)
	}
}

func TestNewLedgerWorker_PurgesAtNow(t *testing.T) {
	ledger := &fakeLedger{}
	w := NewLedgerWorker(ledger, time.Hour, zerolog.Nop())

	before := time.Now().UTC()
	w.cycle(context.Background())
	after := time.Now().UTC()

	if ledger.gotNow.Before(before) || ledger.gotNow.After(after) {
		t.Errorf("now = %v, want current time", ledger.gotNow)
	}
}
