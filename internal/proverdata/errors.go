// Copyright 2025 Certen Protocol
//
// Shared error taxonomy referenced across packages. These are sentinel
// kinds (wrapped with fmt.Errorf(...%w...) at each call site), not a
// custom error type hierarchy — a handful of package-level sentinel
// errors, the same shape as pkg/ledger/errors.go.

package proverdata

import "errors"

var (
	// ErrContinuity marks a continuity violation: fatal for the affected
	// pipeline, never retried.
	ErrContinuity = errors.New("continuity violation")

	// ErrCancelled marks cooperative shutdown. Not logged as an error by
	// callers.
	ErrCancelled = errors.New("cancelled")
)
