// Copyright 2025 Certen Protocol

package witness

import "errors"

// Sentinel failure kinds for witness assembly.
var (
	// ErrRpcUnavailable is retryable: the DA or rollup RPC endpoint didn't
	// answer within the assembler's local retry budget.
	ErrRpcUnavailable = errors.New("witness assembler: rpc unavailable")

	// ErrNamespaceEmpty is not an error condition to propagate as a
	// failure — callers should treat it as "skip to the empty-transition
	// path" rather than retry or abort.
	ErrNamespaceEmpty = errors.New("witness assembler: namespace empty at this height")

	// ErrWitnessFetchFailed is retryable up to the assembler's local
	// budget, then fatal for the height.
	ErrWitnessFetchFailed = errors.New("witness assembler: execution witness fetch failed")

	// ErrMalformedBlob is fatal and non-retryable: the height is skipped
	// with a loud diagnostic.
	ErrMalformedBlob = errors.New("witness assembler: malformed blob")
)
