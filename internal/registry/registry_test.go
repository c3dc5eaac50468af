package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/certen/ev-prover/internal/backend"
	"github.com/certen/ev-prover/internal/proverdata"
)

func testKey(t *testing.T, seed string) proverdata.JobKey {
	t.Helper()
	key, err := proverdata.NewJobKey(proverdata.ProgramBlockExec, seed)
	if err != nil {
		t.Fatalf("NewJobKey: %v", err)
	}
	return key
}

func TestClaim_FirstCallIsFresh(t *testing.T) {
	r := New(time.Minute)
	key := testKey(t, "a")

	_, outcome := r.Claim(key)
	if outcome != Fresh {
		t.Fatalf("expected Fresh, got %v", outcome)
	}
}

func TestClaim_SecondCallIsAlreadyRunning(t *testing.T) {
	r := New(time.Minute)
	key := testKey(t, "a")

	r.Claim(key)
	_, outcome := r.Claim(key)
	if outcome != AlreadyRunning {
		t.Fatalf("expected AlreadyRunning, got %v", outcome)
	}
}

func TestClaim_ConcurrentClaimsOnlyOneFresh(t *testing.T) {
	r := New(time.Minute)
	key := testKey(t, "concurrent")

	const n = 50
	var wg sync.WaitGroup
	freshCount := 0
	var mu sync.Mutex

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, outcome := r.Claim(key)
			if outcome == Fresh {
				mu.Lock()
				freshCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if freshCount != 1 {
		t.Fatalf("expected exactly 1 fresh claim among %d concurrent claims, got %d", n, freshCount)
	}
}

func TestCompleteThenAwait_ReturnsResult(t *testing.T) {
	r := New(time.Minute)
	key := testKey(t, "b")
	handle, _ := r.Claim(key)

	want := Result{Proof: backend.Result{ProofBytes: []byte("proof")}}
	r.Complete(handle, want)

	got, err := r.Await(context.Background(), handle)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if string(got.Proof.ProofBytes) != "proof" {
		t.Fatalf("unexpected proof bytes: %q", got.Proof.ProofBytes)
	}
}

func TestAwait_BlocksUntilComplete(t *testing.T) {
	r := New(time.Minute)
	key := testKey(t, "c")
	handle, _ := r.Claim(key)

	resultCh := make(chan Result, 1)
	go func() {
		res, err := r.Await(context.Background(), handle)
		if err != nil {
			t.Errorf("Await: %v", err)
		}
		resultCh <- res
	}()

	time.Sleep(10 * time.Millisecond)
	r.Complete(handle, Result{Proof: backend.Result{ProofBytes: []byte("done")}})

	select {
	case res := <-resultCh:
		if string(res.Proof.ProofBytes) != "done" {
			t.Fatalf("unexpected result: %v", res)
		}
	case <-time.After(time.Second):
		t.Fatal("Await did not unblock after Complete")
	}
}

func TestAwait_ContextCancellation(t *testing.T) {
	r := New(time.Minute)
	key := testKey(t, "d")
	handle, _ := r.Claim(key)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.Await(ctx, handle)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestGuard_CloseWithoutResolveMarksFailed(t *testing.T) {
	r := New(time.Minute)
	key := testKey(t, "e")
	handle, _ := r.Claim(key)

	fallback := errors.New("panic recovered")
	func() {
		guard := r.NewGuard(handle, fallback)
		defer guard.Close()
		// simulate an early return without calling Resolve
	}()

	res, err := r.Await(context.Background(), handle)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !errors.Is(res.Err, fallback) {
		t.Fatalf("expected fallback error, got %v", res.Err)
	}

	state, ok := r.State(handle)
	if !ok || state != StateFailed {
		t.Fatalf("expected Failed state, got %v (ok=%v)", state, ok)
	}
}

func TestGuard_ResolveDisarmsFallback(t *testing.T) {
	r := New(time.Minute)
	key := testKey(t, "f")
	handle, _ := r.Claim(key)

	func() {
		guard := r.NewGuard(handle, errors.New("should not be used"))
		defer guard.Close()
		guard.Resolve(Result{Proof: backend.Result{ProofBytes: []byte("ok")}})
	}()

	res, err := r.Await(context.Background(), handle)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("expected no error, got %v", res.Err)
	}
	if string(res.Proof.ProofBytes) != "ok" {
		t.Fatalf("unexpected proof bytes: %q", res.Proof.ProofBytes)
	}
}

func TestComplete_NoOpOnceTerminal(t *testing.T) {
	r := New(time.Minute)
	key := testKey(t, "g")
	handle, _ := r.Claim(key)

	r.Complete(handle, Result{Proof: backend.Result{ProofBytes: []byte("first")}})
	r.Complete(handle, Result{Proof: backend.Result{ProofBytes: []byte("second")}})

	res, err := r.Await(context.Background(), handle)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if string(res.Proof.ProofBytes) != "first" {
		t.Fatalf("expected first completion to win, got %q", res.Proof.ProofBytes)
	}
}

func TestReap_RemovesOldTerminalEntriesOnly(t *testing.T) {
	r := New(time.Millisecond)
	key := testKey(t, "h")
	handle, _ := r.Claim(key)
	r.Complete(handle, Result{})

	time.Sleep(5 * time.Millisecond)

	stillPendingKey := testKey(t, "i")
	r.Claim(stillPendingKey)

	removed := r.Reap()
	if removed != 1 {
		t.Fatalf("expected to reap 1 entry, reaped %d", removed)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", r.Len())
	}
}

func TestSubscribe_ReceivesCompletionNotice(t *testing.T) {
	r := New(time.Minute)
	ch, unsubscribe := r.Subscribe()
	defer unsubscribe()

	key := testKey(t, "subscribe")
	handle, _ := r.Claim(key)
	r.Complete(handle, Result{})

	select {
	case notice := <-ch:
		if notice.Key != key {
			t.Fatalf("expected notice for key %s, got %s", key, notice.Key)
		}
		if notice.Err != nil {
			t.Fatalf("expected nil error, got %v", notice.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion notice")
	}
}

func TestUnsubscribe_StopsDeliveringAndClosesChannel(t *testing.T) {
	r := New(time.Minute)
	ch, unsubscribe := r.Subscribe()
	unsubscribe()

	key := testKey(t, "unsubscribe")
	handle, _ := r.Claim(key)
	r.Complete(handle, Result{})

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}
