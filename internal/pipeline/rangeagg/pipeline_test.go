package rangeagg

import (
	"context"
	"testing"
	"time"

	"github.com/certen/ev-prover/internal/backend"
	blockexec "github.com/certen/ev-prover/internal/pipeline/blockexec"
	"github.com/certen/ev-prover/internal/proverdata"
	"github.com/certen/ev-prover/internal/registry"
)

type fakeProver struct {
	proveFunc func(id backend.ProgramID, input []byte) (backend.Result, error)
}

func (f *fakeProver) Prove(ctx context.Context, id backend.ProgramID, input []byte, mode backend.Mode) (backend.Result, error) {
	return f.proveFunc(id, input)
}

func genesisCheckpoint() proverdata.TrustedCheckpoint {
	return proverdata.TrustedCheckpoint{RollupHeight: 0, RollupStateRoot: proverdata.Hash32{}, DAHeaderHash: proverdata.Hash32{}, DAHeight: 0}
}

func receiptAt(daHeight proverdata.Height, trustedHeight proverdata.Height, trustedRoot proverdata.Hash32, newHeight proverdata.Height, newRoot proverdata.Hash32, prevDA, newDA proverdata.Hash32) proverdata.BlockExecReceipt {
	return proverdata.BlockExecReceipt{
		DAHeight: daHeight,
		Output: proverdata.BlockExecOutput{
			NewRollupHeight:     newHeight,
			NewRollupStateRoot:  newRoot,
			PrevDAHeaderHash:    prevDA,
			NewDAHeaderHash:     newDA,
			TrustedRollupHeight: trustedHeight,
			TrustedRollupRoot:   trustedRoot,
		},
	}
}

func TestPipeline_DispatchesOnWindowFull(t *testing.T) {
	root1 := proverdata.Hash32{1}
	root2 := proverdata.Hash32{2}
	da1 := proverdata.Hash32{0xa1}
	da2 := proverdata.Hash32{0xa2}

	genesis := genesisCheckpoint()
	r1 := receiptAt(1, 0, genesis.RollupStateRoot, 1, root1, genesis.DAHeaderHash, da1)
	r2 := receiptAt(2, 1, root1, 2, root2, da1, da2)

	prover := &fakeProver{proveFunc: func(id backend.ProgramID, input []byte) (backend.Result, error) {
		return backend.Result{ProofBytes: []byte("range-proof")}, nil
	}}

	p := New(prover, registry.New(time.Minute), genesis, Config{WindowSize: 2, WindowTimeout: time.Hour, ProveTimeout: time.Second}, nil)

	in := make(chan blockexec.Output, 2)
	in <- blockexec.Output{DAHeight: 1, Receipt: r1}
	in <- blockexec.Output{DAHeight: 2, Receipt: r2}
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := p.Run(ctx, in)

	select {
	case notif, ok := <-out:
		if !ok {
			t.Fatal("expected a notification before channel close")
		}
		if notif.Checkpoint.RollupHeight != 2 {
			t.Fatalf("expected advanced checkpoint height 2, got %d", notif.Checkpoint.RollupHeight)
		}
		if notif.Checkpoint.RollupStateRoot != root2 {
			t.Fatalf("expected checkpoint root to match last receipt's new root")
		}
		if notif.Checkpoint.DAHeight != 2 {
			t.Fatalf("expected checkpoint DA height to advance to the last receipt's DA height 2, got %d", notif.Checkpoint.DAHeight)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for notification")
	}

	if p.Checkpoint().RollupHeight != 2 {
		t.Fatalf("expected pipeline checkpoint to advance to 2, got %d", p.Checkpoint().RollupHeight)
	}
	if p.Checkpoint().DAHeight != 2 {
		t.Fatalf("expected pipeline checkpoint DA height to advance to 2, got %d", p.Checkpoint().DAHeight)
	}
}

func TestPipeline_HaltsOnContinuityViolation(t *testing.T) {
	genesis := genesisCheckpoint()
	root1 := proverdata.Hash32{1}
	badRoot := proverdata.Hash32{0xff}

	r1 := receiptAt(1, 0, genesis.RollupStateRoot, 1, root1, genesis.DAHeaderHash, proverdata.Hash32{0xa1})
	// r2's TrustedRollupRoot deliberately does not match r1's NewRollupStateRoot.
	r2 := receiptAt(2, 1, badRoot, 2, proverdata.Hash32{2}, proverdata.Hash32{0xa1}, proverdata.Hash32{0xa2})

	prover := &fakeProver{proveFunc: func(id backend.ProgramID, input []byte) (backend.Result, error) {
		t.Fatal("prover should not be invoked when continuity fails")
		return backend.Result{}, nil
	}}

	p := New(prover, registry.New(time.Minute), genesis, Config{WindowSize: 2, WindowTimeout: time.Hour}, nil)

	in := make(chan blockexec.Output, 2)
	in <- blockexec.Output{DAHeight: 1, Receipt: r1}
	in <- blockexec.Output{DAHeight: 2, Receipt: r2}
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out := p.Run(ctx, in)

	for range out {
		t.Fatal("expected no notifications on a continuity violation")
	}

	if p.Checkpoint().RollupHeight != 0 {
		t.Fatalf("expected checkpoint to remain at genesis, got height %d", p.Checkpoint().RollupHeight)
	}
}

func TestPipeline_SkipsErroredCompletions(t *testing.T) {
	genesis := genesisCheckpoint()
	prover := &fakeProver{proveFunc: func(id backend.ProgramID, input []byte) (backend.Result, error) {
		t.Fatal("prover should not be invoked with no valid receipts")
		return backend.Result{}, nil
	}}

	p := New(prover, registry.New(time.Minute), genesis, Config{WindowSize: 2, WindowTimeout: 50 * time.Millisecond}, nil)

	in := make(chan blockexec.Output, 1)
	in <- blockexec.Output{DAHeight: 1, Err: context.DeadlineExceeded}
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out := p.Run(ctx, in)
	for range out {
		t.Fatal("expected no notifications when all completions errored")
	}
}
