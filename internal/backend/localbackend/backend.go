//go:build !sp1backend && !risc0backend

// Copyright 2025 Certen Protocol
//
// localbackend is the default backend variant, linked in when the process
// is built without either witness-format tag (sp1backend/risc0backend).
// Used by tests and local development so the module builds and proves
// end to end without choosing a production witness format. Accepts the
// compressed proof mode, matching sp1style's contract.

package localbackend

import (
	"context"

	"github.com/certen/ev-prover/internal/backend"
	"github.com/certen/ev-prover/internal/backend/snark"
)

// Backend wraps a snark.Adapter for use when no witness-format build tag
// is set.
type Backend struct {
	adapter *snark.Adapter
}

func New() *Backend {
	return &Backend{adapter: snark.NewAdapter("local", true)}
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
