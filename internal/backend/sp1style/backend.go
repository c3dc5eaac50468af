//go:build sp1backend

// Copyright 2025 Certen Protocol
//
// sp1style is the sp1-shaped backend variant, linked in only when the
// process is built with -tags sp1backend: the two witness-format backends
// are mutually exclusive and never link into the same process image.
// Exactly one backend variant permits Mode "compressed"; sp1style is that
// one, mirroring sp1's native compressed-proof support.

package sp1style

import (
	"context"

	"github.com/certen/ev-prover/internal/backend"
	"github.com/certen/ev-prover/internal/backend/snark"
)

// Backend wraps a snark.Adapter configured to accept the compressed proof
// mode.
type Backend struct {
	adapter *snark.Adapter
}

func New() *Backend {
	return &Backend{adapter: snark.NewAdapter("sp1style", true)}
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
