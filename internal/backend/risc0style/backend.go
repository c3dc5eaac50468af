//go:build risc0backend

// Copyright 2025 Certen Protocol
//
// risc0style is the risc0-shaped backend variant, linked in only when the
// process is built with -tags risc0backend. The compressed proof mode is
// permitted only by one backend variant; this one rejects it with
// ErrUnsupportedMode.

package risc0style

import (
	"context"

	"github.com/certen/ev-prover/internal/backend"
	"github.com/certen/ev-prover/internal/backend/snark"
)

// Backend wraps a snark.Adapter that rejects the compressed proof mode.
type Backend struct {
	adapter *snark.Adapter
}

func New() *Backend {
	return &Backend{adapter: snark.NewAdapter("risc0style", false)}
}

func (b *Backend) Name() string { return b.adapter.Name() }

func (b *Backend) Prove(ctx context.Context, id backend.ProgramID, input []byte, mode backend.Mode) (backend.Result, error) {
	return b.adapter.Prove(ctx, id, input, mode)
}

func (b *Backend) VerifyingKey(id backend.ProgramID) ([32]byte, error) {
	return b.adapter.VerifyingKey(id)
}

func (b *Backend) Verify(id backend.ProgramID, proofBytes, publicOutputsBytes []byte) (bool, error) {
	return b.adapter.Verify(id, proofBytes, publicOutputsBytes)
}
