//go:build !sp1backend && !risc0backend

// Copyright 2025 Certen Protocol
//
// Build-tag selector: resolves the process's single active backend variant
// and matching witness format to the local development pair, used when
// neither witness-format tag is set.

package activebackend

import (
	"github.com/certen/ev-prover/internal/backend"
	"github.com/certen/ev-prover/internal/backend/localbackend"
	"github.com/certen/ev-prover/internal/proverdata"
)

// New returns the process's active backend.
func New() backend.Backend { return localbackend.New() }

// WitnessVariant returns the witness format this backend variant consumes.
func WitnessVariant() proverdata.WitnessVariant { return proverdata.WitnessRsp }
