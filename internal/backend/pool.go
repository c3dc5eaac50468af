// Copyright 2025 Certen Protocol
//
// Pool wraps exactly one active Backend, selected at process startup from
// configuration; backend selection is a startup-time decision and cannot
// change at runtime. Retryable ProverNetworkError is retried here with
// exponential backoff and jitter; every other failure kind is returned to
// the caller unretried. Grounded on the bounded-retry loop shape of
// pkg/anchor/event_watcher.go, generalized to use cenkalti/backoff/v4 for
// jittered exponential backoff.

package backend

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cenkalti/backoff/v4"
)

// Pool is the single active-backend contract exposed to the three pipelines.
type Pool struct {
	active Backend
	retry  RetryPolicy
	logger *log.Logger
}

// NewPool selects active as the process's sole backend for its lifetime.
func NewPool(active Backend, retry RetryPolicy, logger *log.Logger) *Pool {
	if logger == nil {
		logger = log.New(log.Writer(), "[BackendPool] ", log.LstdFlags)
	}
	return &Pool{active: active, retry: retry, logger: logger}
}

// Name returns the active backend's name, fixed for the process lifetime.
func (p *Pool) Name() string { return p.active.Name() }

// Prove runs the guest program, retrying ProverNetworkError with exponential
// backoff bounded by p.retry; UnsupportedMode, GuestPanic, and Timeout are
// returned immediately as fatal for the job.
func (p *Pool) Prove(ctx context.Context, id ProgramID, input []byte, mode Mode) (Result, error) {
	var result Result
	// MaxAttempts counts the first call, so one fewer retry is allowed.
	maxRetries := 0
	if p.retry.MaxAttempts > 1 {
		maxRetries = p.retry.MaxAttempts - 1
	}
	policy := backoff.WithMaxRetries(
		&backoff.ExponentialBackOff{
			InitialInterval:     p.retry.BaseDelay,
			RandomizationFactor: backoff.DefaultRandomizationFactor,
			Multiplier:          backoff.DefaultMultiplier,
			MaxInterval:         p.retry.MaxDelay,
			MaxElapsedTime:      0,
			Clock:               backoff.SystemClock,
		},
		uint64(maxRetries),
	)

	attempt := 0
	op := func() error {
		attempt++
		res, err := p.active.Prove(ctx, id, input, mode)
		if err == nil {
			result = res
			return nil
		}
		var netErr *ProverNetworkError
		if errors.As(err, &netErr) {
			p.logger.Printf("prove(%s) attempt %d: retryable prover network error: %v", id, attempt, err)
			return err
		}
		// Fatal: UnsupportedMode, GuestPanic, Timeout, or anything unexpected.
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return Result{}, fmt.Errorf("prove(%s): %w", id, perm.Err)
		}
		return Result{}, fmt.Errorf("prove(%s): exhausted retries: %w", id, err)
	}
	return result, nil
}

// VerifyingKey delegates to the active backend.
func (p *Pool) VerifyingKey(id ProgramID) ([32]byte, error) {
	return p.active.VerifyingKey(id)
}

// Verify delegates to the active backend.
func (p *Pool) Verify(id ProgramID, proofBytes, publicOutputsBytes []byte) (bool, error) {
	return p.active.Verify(id, proofBytes, publicOutputsBytes)
}
