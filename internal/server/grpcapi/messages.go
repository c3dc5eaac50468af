// Copyright 2025 Certen Protocol
//
// Request/response shapes for the prover gRPC surface. Hand-written in
// place of protoc-gen-go output: each type
// here is what protoc would have generated from a ProverService.proto,
// laid out with the same field naming protoc-gen-go uses.

package grpcapi

import (
	"time"

	"github.com/certen/ev-prover/internal/proverdata"
)

// StatusRequest takes no parameters; present for symmetry with generated
// stubs, which always pass a request message even when empty.
type StatusRequest struct{}

// PipelineHealth summarizes one pipeline's operational state.
type PipelineHealth struct {
	Name         string `json:"name"`
	QueueDepth   int    `json:"queue_depth"`
	LastHeight   uint64 `json:"last_height"`
	Healthy      bool   `json:"healthy"`
	LastError    string `json:"last_error,omitempty"`
}

// JobSummary is one entry in StatusResponse's RecentCompletions list.
type JobSummary struct {
	JobKey      string    `json:"job_key"`
	Program     ProgramID `json:"program"`
	Succeeded   bool      `json:"succeeded"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// StatusResponse answers Status().
type StatusResponse struct {
	TrustedCheckpoint proverdata.TrustedCheckpoint `json:"trusted_checkpoint"`
	Pipelines         []PipelineHealth             `json:"pipelines"`
	CompletedJobs     int                           `json:"completed_jobs"`
	RecentCompletions []JobSummary                  `json:"recent_completions,omitempty"`
}

// ProgramID mirrors backend.ProgramID without importing the backend
// package into the wire contract.
type ProgramID string

const (
	ProgramBlockExec         ProgramID = "block-exec"
	ProgramRangeAggregation  ProgramID = "range-aggregation"
	ProgramMessageInclusion  ProgramID = "message-inclusion"
)

// ProveRequest carries a program identifier and program-specific
// parameters as an opaque, already-canonicalized payload; the caller is
// responsible for constructing a payload the corresponding pipeline
// understands.
type ProveRequest struct {
	Program ProgramID `json:"program"`
	Payload []byte    `json:"payload"`
}

// ProveResponse returns a job handle the caller can pass to Await.
type ProveResponse struct {
	JobKey string `json:"job_key"`
}

// AwaitRequest resolves a previously issued job handle.
type AwaitRequest struct {
	JobKey string `json:"job_key"`
}

// AwaitResponse is the terminal outcome of a job.
type AwaitResponse struct {
	ProofBytes  []byte `json:"proof_bytes,omitempty"`
	Succeeded   bool   `json:"succeeded"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// StreamCompletionsRequest takes no parameters.
type StreamCompletionsRequest struct{}

// CompletionEvent is one entry in the StreamCompletions server stream.
type CompletionEvent struct {
	JobKey      string    `json:"job_key"`
	Program     ProgramID `json:"program"`
	Succeeded   bool      `json:"succeeded"`
	ErrorDetail string    `json:"error_detail,omitempty"`
}
