package snark

import (
	"context"
	"testing"

	"github.com/certen/ev-prover/internal/backend"
)

func TestAdapter_ProveVerifyRoundTrip(t *testing.T) {
	a := NewAdapter("test", true)
	ctx := context.Background()

	res, err := a.Prove(ctx, backend.ProgramBlockExec, []byte("some witness bytes"), backend.ModeDefault)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	ok, err := a.Verify(backend.ProgramBlockExec, res.ProofBytes, res.PublicOutputsBytes)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected proof to verify")
	}
}

func TestAdapter_VerifyRejectsWrongOutput(t *testing.T) {
	a := NewAdapter("test", true)
	ctx := context.Background()

	res, err := a.Prove(ctx, backend.ProgramBlockExec, []byte("some witness bytes"), backend.ModeDefault)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}

	wrongOutputs := make([]byte, 32)
	ok, err := a.Verify(backend.ProgramBlockExec, res.ProofBytes, wrongOutputs)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("expected verification against a mismatched output digest to fail")
	}
}

func TestAdapter_RejectsCompressedWhenUnsupported(t *testing.T) {
	a := NewAdapter("test", false)
	ctx := context.Background()

	_, err := a.Prove(ctx, backend.ProgramRangeAggregation, []byte("witness"), backend.ModeCompressed)
	if err == nil {
		t.Fatal("expected an error for unsupported compressed mode")
	}
}

func TestAdapter_VerifyingKeyStableAcrossCalls(t *testing.T) {
	a := NewAdapter("test", true)

	k1, err := a.VerifyingKey(backend.ProgramMessageInclusion)
	if err != nil {
		t.Fatalf("VerifyingKey: %v", err)
	}
	k2, err := a.VerifyingKey(backend.ProgramMessageInclusion)
	if err != nil {
		t.Fatalf("VerifyingKey: %v", err)
	}
	if k1 != k2 {
		t.Fatal("expected verifying key digest to be stable across calls")
	}
}

func TestAdapter_VerifyingKeyDiffersPerProgram(t *testing.T) {
	a := NewAdapter("test", true)

	k1, err := a.VerifyingKey(backend.ProgramBlockExec)
	if err != nil {
		t.Fatalf("VerifyingKey: %v", err)
	}
	k2, err := a.VerifyingKey(backend.ProgramRangeAggregation)
	if err != nil {
		t.Fatalf("VerifyingKey: %v", err)
	}
	// Both programs share the same generic circuit shape but maintain
	// independently-generated Groth16 keys, so their digests differ.
	if k1 == k2 {
		t.Fatal("expected distinct verifying key digests per program")
	}
}
