package backend

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeBackend lets tests script a sequence of Prove outcomes without
// pulling in the real Groth16 lifecycle.
type fakeBackend struct {
	name      string
	proveFunc func(calls int) (Result, error)
	calls     int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Prove(ctx context.Context, id ProgramID, input []byte, mode Mode) (Result, error) {
	f.calls++
	return f.proveFunc(f.calls)
}

func (f *fakeBackend) VerifyingKey(id ProgramID) ([32]byte, error) { return [32]byte{}, nil }

func (f *fakeBackend) Verify(id ProgramID, proofBytes, publicOutputsBytes []byte) (bool, error) {
	return true, nil
}

func fastRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 5}
}

func TestPool_RetriesProverNetworkError(t *testing.T) {
	fb := &fakeBackend{
		name: "fake",
		proveFunc: func(calls int) (Result, error) {
			if calls < 3 {
				return Result{}, &ProverNetworkError{Err: errors.New("connection reset")}
			}
			return Result{ProofBytes: []byte("ok")}, nil
		},
	}
	pool := NewPool(fb, fastRetryPolicy(), nil)

	res, err := pool.Prove(context.Background(), ProgramBlockExec, []byte("in"), ModeDefault)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if string(res.ProofBytes) != "ok" {
		t.Fatalf("unexpected proof bytes: %q", res.ProofBytes)
	}
	if fb.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", fb.calls)
	}
}

func TestPool_DoesNotRetryFatalErrors(t *testing.T) {
	fb := &fakeBackend{
		name: "fake",
		proveFunc: func(calls int) (Result, error) {
			return Result{}, ErrUnsupportedMode
		},
	}
	pool := NewPool(fb, fastRetryPolicy(), nil)

	_, err := pool.Prove(context.Background(), ProgramBlockExec, []byte("in"), ModeCompressed)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
	if fb.calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a fatal error, got %d", fb.calls)
	}
}

func TestPool_ExhaustsRetriesEventually(t *testing.T) {
	fb := &fakeBackend{
		name: "fake",
		proveFunc: func(calls int) (Result, error) {
			return Result{}, &ProverNetworkError{Err: errors.New("still down")}
		},
	}
	pool := NewPool(fb, fastRetryPolicy(), nil)

	_, err := pool.Prove(context.Background(), ProgramBlockExec, []byte("in"), ModeDefault)
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if fb.calls < 2 {
		t.Fatalf("expected multiple retry attempts, got %d", fb.calls)
	}
}

func TestPool_NameDelegatesToActiveBackend(t *testing.T) {
	fb := &fakeBackend{name: "fake-backend"}
	pool := NewPool(fb, fastRetryPolicy(), nil)
	if pool.Name() != "fake-backend" {
		t.Fatalf("expected pool Name to delegate, got %q", pool.Name())
	}
}
