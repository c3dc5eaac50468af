// Copyright 2025 Certen Protocol
//
// Backend pool — hides the two concrete zk-VM runtimes behind one contract.
// The guest circuits themselves are treated as opaque; each backend here is
// grounded on pkg/crypto/bls_zkp's Groth16 lifecycle (compile, setup,
// prove, verify) but generalized from a single BLS-specific circuit to a
// generic per-program commitment circuit, since the real guest programs
// (sp1/risc0 VMs executing Celestia/EVM verification logic) are a function
// contract we implement, not a circuit we can faithfully reproduce.

package backend

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Mode selects the proof system variant requested of a backend.
type Mode string

const (
	ModeDefault    Mode = "default"
	ModeCompressed Mode = "compressed"
	ModeGroth16    Mode = "groth16"
)

// ProgramID selects a compiled guest program.
type ProgramID string

const (
	ProgramBlockExec        ProgramID = "block-exec"
	ProgramRangeAggregation ProgramID = "range-aggregation"
	ProgramMessageInclusion ProgramID = "message-inclusion"
)

// Sentinel failure kinds.
var (
	ErrUnsupportedMode = errors.New("unsupported proof mode")
	ErrGuestPanic      = errors.New("guest program panicked")
	ErrTimeout         = errors.New("backend call timed out")
)

// ProverNetworkError wraps a retryable failure reported by a remote prover
// network. Retryable is always true; it exists so callers can type-assert
// without string matching.
type ProverNetworkError struct {
	Err error
}

func (e *ProverNetworkError) Error() string { return fmt.Sprintf("prover network error: %v", e.Err) }
func (e *ProverNetworkError) Unwrap() error  { return e.Err }
func (e *ProverNetworkError) Retryable() bool { return true }

// Result is the output of a successful Prove call.
type Result struct {
	ProofBytes         []byte
	PublicOutputsBytes []byte
}

// Backend is a function from (program, serialized input) to (proof, public
// outputs). Inputs are opaque: serialization is the caller's responsibility
// (internal/proverdata.CanonicalSerialize). Implementations must be safe
// for concurrent use.
type Backend interface {
	// Prove runs the guest program for id over input and returns a proof.
	Prove(ctx context.Context, id ProgramID, input []byte, mode Mode) (Result, error)

	// VerifyingKey returns a stable 32-byte digest for a program, pure and
	// stable across restarts.
	VerifyingKey(id ProgramID) ([32]byte, error)

	// Verify checks a proof against its claimed public outputs. Used only
	// in tests and diagnostics.
	Verify(id ProgramID, proofBytes, publicOutputsBytes []byte) (bool, error)

	// Name identifies the backend for logging and metrics.
	Name() string
}

// RetryPolicy bounds the exponential-backoff retry applied to
// ProverNetworkError. All other Backend errors are fatal for the job and
// are never retried here.
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: 250 * time.Millisecond, MaxDelay: 30 * time.Second, MaxAttempts: 6}
}
