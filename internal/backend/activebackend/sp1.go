//go:build sp1backend

// Copyright 2025 Certen Protocol
//
// Build-tag selector: resolves the process's single active backend variant
// and matching witness format to the sp1-style pair. Kept in its own
// package so main.go never imports more than one backend variant.

package activebackend

import (
	"github.com/certen/ev-prover/internal/backend"
	"github.com/certen/ev-prover/internal/backend/sp1style"
	"github.com/certen/ev-prover/internal/proverdata"
)

// New returns the process's active backend.
func New() backend.Backend { return sp1style.New() }

// WitnessVariant returns the witness format this backend variant consumes.
func WitnessVariant() proverdata.WitnessVariant { return proverdata.WitnessRsp }
