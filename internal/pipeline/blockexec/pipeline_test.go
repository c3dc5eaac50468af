package blockexec

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/certen/ev-prover/internal/backend"
	"github.com/certen/ev-prover/internal/proverdata"
	"github.com/certen/ev-prover/internal/registry"
)

type fakeProver struct {
	proveFunc func(id backend.ProgramID, input []byte) (backend.Result, error)
	vk        [32]byte
	vkErr     error
	calls     int32
}

func (f *fakeProver) Prove(ctx context.Context, id backend.ProgramID, input []byte, mode backend.Mode) (backend.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.proveFunc(id, input)
}

func (f *fakeProver) VerifyingKey(id backend.ProgramID) ([32]byte, error) {
	return f.vk, f.vkErr
}

func testInput(daHeight proverdata.Height) proverdata.BlockExecInput {
	return proverdata.BlockExecInput{
		DAHeight: daHeight,
		Trusted:  proverdata.TrustedCheckpoint{RollupHeight: proverdata.Height(daHeight)},
	}
}

func TestProveJob_Success(t *testing.T) {
	prover := &fakeProver{
		proveFunc: func(id backend.ProgramID, input []byte) (backend.Result, error) {
			if id != backend.ProgramBlockExec {
				t.Fatalf("expected program %q, got %q", backend.ProgramBlockExec, id)
			}
			return backend.Result{ProofBytes: []byte("proof")}, nil
		},
		vk: [32]byte{0xaa},
	}

	p := New(nil, prover, registry.New(time.Minute), DefaultConfig(), nil)

	j := dispatched{
		height: 5,
		input:  testInput(5),
		output: proverdata.BlockExecOutput{NewRollupHeight: 5},
	}

	out := p.proveJob(context.Background(), j)
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.DAHeight != 5 {
		t.Fatalf("expected DAHeight 5, got %d", out.DAHeight)
	}
	if string(out.Receipt.ProofBytes) != "proof" {
		t.Fatalf("expected proof bytes to carry through, got %q", out.Receipt.ProofBytes)
	}
	if out.Receipt.VerifyingKey != prover.vk {
		t.Fatalf("expected verifying key to carry through")
	}
	if atomic.LoadInt32(&prover.calls) != 1 {
		t.Fatalf("expected exactly one Prove call, got %d", prover.calls)
	}
}

func TestProveJob_ProveError(t *testing.T) {
	wantErr := fmt.Errorf("backend unavailable")
	prover := &fakeProver{
		proveFunc: func(id backend.ProgramID, input []byte) (backend.Result, error) {
			return backend.Result{}, wantErr
		},
	}

	p := New(nil, prover, registry.New(time.Minute), DefaultConfig(), nil)

	j := dispatched{height: 7, input: testInput(7)}
	out := p.proveJob(context.Background(), j)
	if out.Err == nil {
		t.Fatal("expected an error to propagate from a failed Prove call")
	}
}

// TestProveJob_DedupesInFlightJobs claims the same fingerprint from two
// concurrent callers; the second must observe AlreadyRunning and resolve via
// toOutput against the first caller's result rather than invoking Prove
// itself.
func TestProveJob_DedupesInFlightJobs(t *testing.T) {
	release := make(chan struct{})
	prover := &fakeProver{
		proveFunc: func(id backend.ProgramID, input []byte) (backend.Result, error) {
			<-release
			return backend.Result{ProofBytes: []byte("shared-proof")}, nil
		},
	}

	p := New(nil, prover, registry.New(time.Minute), DefaultConfig(), nil)

	j := dispatched{height: 9, input: testInput(9), output: proverdata.BlockExecOutput{NewRollupHeight: 9}}

	var wg sync.WaitGroup
	results := make([]Output, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0] = p.proveJob(context.Background(), j)
	}()

	// Give the first goroutine time to claim the job and block inside Prove
	// before the second attempts the same fingerprint.
	time.Sleep(20 * time.Millisecond)

	go func() {
		defer wg.Done()
		results[1] = p.proveJob(context.Background(), j)
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if atomic.LoadInt32(&prover.calls) != 1 {
		t.Fatalf("expected exactly one Prove call across both dedup'd jobs, got %d", prover.calls)
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("result %d: unexpected error: %v", i, r.Err)
		}
		if string(r.Receipt.ProofBytes) != "shared-proof" {
			t.Fatalf("result %d: expected shared proof bytes, got %q", i, r.Receipt.ProofBytes)
		}
	}
}

func TestToOutput_CarriesProofForward(t *testing.T) {
	prover := &fakeProver{vk: [32]byte{0xbb}}
	p := New(nil, prover, registry.New(time.Minute), DefaultConfig(), nil)

	j := dispatched{height: 3, input: testInput(3), output: proverdata.BlockExecOutput{NewRollupHeight: 3}}
	res := registry.Result{Proof: backend.Result{ProofBytes: []byte("from-other-caller")}}

	out := p.toOutput(j, res)
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if string(out.Receipt.ProofBytes) != "from-other-caller" {
		t.Fatalf("expected proof bytes from the registry result, got %q", out.Receipt.ProofBytes)
	}
	if out.Receipt.VerifyingKey != prover.vk {
		t.Fatalf("expected verifying key fetched from the prover")
	}
}

func TestToOutput_PropagatesError(t *testing.T) {
	prover := &fakeProver{}
	p := New(nil, prover, registry.New(time.Minute), DefaultConfig(), nil)

	j := dispatched{height: 4, input: testInput(4)}
	wantErr := fmt.Errorf("job failed upstream")
	out := p.toOutput(j, registry.Result{Err: wantErr})
	if out.Err != wantErr {
		t.Fatalf("expected the upstream error to propagate unchanged, got %v", out.Err)
	}
}

func TestInFlight_ReflectsSemaphoreOccupancy(t *testing.T) {
	prover := &fakeProver{proveFunc: func(id backend.ProgramID, input []byte) (backend.Result, error) {
		return backend.Result{}, nil
	}}
	p := New(nil, prover, registry.New(time.Minute), Config{MaxConcurrentProofs: 2, ProveTimeout: time.Second}, nil)

	if p.InFlight() != 0 {
		t.Fatalf("expected 0 in-flight before any job is dispatched, got %d", p.InFlight())
	}

	p.sem <- struct{}{}
	if p.InFlight() != 1 {
		t.Fatalf("expected 1 in-flight with one semaphore slot taken, got %d", p.InFlight())
	}
	<-p.sem
}
