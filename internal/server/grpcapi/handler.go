// Copyright 2025 Certen Protocol
//
// Production Server implementation, wiring the gRPC surface to the job
// registry and the three pipelines. Grounded on pkg/server/proof_handlers.go's
// handler-struct-with-logger construction pattern, generalized from HTTP
// JSON responses to typed gRPC responses with status-code mapping.

package grpcapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"google.golang.org/grpc/codes"

	"github.com/certen/ev-prover/internal/backend"
	blockexec "github.com/certen/ev-prover/internal/pipeline/blockexec"
	"github.com/certen/ev-prover/internal/pipeline/message"
	rangeagg "github.com/certen/ev-prover/internal/pipeline/rangeagg"
	"github.com/certen/ev-prover/internal/proverdata"
	"github.com/certen/ev-prover/internal/registry"
	"github.com/certen/ev-prover/pkg/database"
)

// recentCompletionsLimit bounds the Status response's RecentCompletions list.
const recentCompletionsLimit = 20

// messageInclusionPayload is the JSON wire shape ProveRequest.Payload must
// decode into for ProgramMessageInclusion requests.
type messageInclusionPayload struct {
	StartNonce           uint64 `json:"start_nonce"`
	EndNonce             uint64 `json:"end_nonce"`
	RequiredRollupHeight uint64 `json:"required_rollup_height"`
}

// Handler implements Server against the live pipelines. Program identifiers
// that aren't externally submittable (block-exec and range-aggregation are
// driven by the DA height watcher and the block-exec completion stream,
// not by a gRPC call) return InvalidArgument from Prove.
type Handler struct {
	registry   *registry.Registry
	block      *blockexec.Pipeline
	rangeAgg   *rangeagg.Pipeline
	message    *message.Pipeline
	jobHistory *database.JobHistoryRepository // nil in degraded mode (no DATABASE_URL)
	logger     *log.Logger
}

func NewHandler(reg *registry.Registry, block *blockexec.Pipeline, rangeAgg *rangeagg.Pipeline, msg *message.Pipeline, jobHistory *database.JobHistoryRepository, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(log.Writer(), "[gRPC] ", log.LstdFlags)
	}
	return &Handler{registry: reg, block: block, rangeAgg: rangeAgg, message: msg, jobHistory: jobHistory, logger: logger}
}

func (h *Handler) Status(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	checkpoint := h.rangeAgg.Checkpoint()

	pipelines := []PipelineHealth{
		{Name: "block-exec", QueueDepth: h.block.InFlight(), LastHeight: uint64(checkpoint.DAHeight), Healthy: true},
		{Name: "range-aggregation", QueueDepth: h.rangeAgg.PendingCount(), LastHeight: uint64(checkpoint.RollupHeight), Healthy: true},
		{Name: "message-inclusion", QueueDepth: 0, LastHeight: uint64(checkpoint.RollupHeight), Healthy: true},
	}

	completedJobs, recent := h.completedJobsSummary(ctx)

	return &StatusResponse{
		TrustedCheckpoint: checkpoint,
		Pipelines:         pipelines,
		CompletedJobs:     completedJobs,
		RecentCompletions: recent,
	}, nil
}

// completedJobsSummary reports the completed-job count and the most recent
// completions. It prefers the persistent job-history database, falling back
// to the in-memory registry's own terminal-entry count (with no completions
// list) when running in degraded mode.
func (h *Handler) completedJobsSummary(ctx context.Context) (int, []JobSummary) {
	if h.jobHistory == nil {
		return h.registry.CompletedCount(), nil
	}

	count, err := h.jobHistory.CountCompleted(ctx)
	if err != nil {
		h.logger.Printf("warning: count completed jobs from job history: %v", err)
		return h.registry.CompletedCount(), nil
	}

	records, err := h.jobHistory.RecentCompletions(ctx, recentCompletionsLimit)
	if err != nil {
		h.logger.Printf("warning: list recent completions from job history: %v", err)
		return count, nil
	}

	recent := make([]JobSummary, 0, len(records))
	for _, rec := range records {
		summary := JobSummary{
			JobKey:    rec.JobKey,
			Program:   ProgramID(rec.Program),
			Succeeded: rec.State == "completed",
		}
		if rec.ErrorDetail.Valid {
			summary.ErrorDetail = rec.ErrorDetail.String
		}
		if rec.CompletedAt.Valid {
			summary.CompletedAt = rec.CompletedAt.Time
		}
		recent = append(recent, summary)
	}
	return count, recent
}

func (h *Handler) Prove(ctx context.Context, req *ProveRequest) (*ProveResponse, error) {
	switch req.Program {
	case ProgramMessageInclusion:
		return h.proveMessageInclusion(ctx, req.Payload)
	default:
		return nil, statusError(codes.InvalidArgument, "program %q is not submittable via Prove; it is driven internally", req.Program)
	}
}

func (h *Handler) proveMessageInclusion(ctx context.Context, payload []byte) (*ProveResponse, error) {
	var w messageInclusionPayload
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, statusError(codes.InvalidArgument, "decode message-inclusion payload: %v", err)
	}

	key, err := proverdata.NewJobKey(proverdata.ProgramMessageInclusion, w)
	if err != nil {
		return nil, statusError(codes.Internal, "fingerprint request: %v", err)
	}

	handle, outcome := h.registry.Claim(key)
	if outcome == registry.Fresh {
		h.registry.MarkRunning(handle)
		go func() {
			guard := h.registry.NewGuard(handle, fmt.Errorf("message-inclusion request abandoned"))
			defer guard.Close()

			result, err := h.message.Submit(context.Background(), message.Request{
				StartNonce:           w.StartNonce,
				EndNonce:             w.EndNonce,
				RequiredRollupHeight: proverdata.Height(w.RequiredRollupHeight),
			})
			if err != nil {
				guard.Resolve(registry.Result{Err: err})
				return
			}
			guard.Resolve(registry.Result{Proof: backend.Result{ProofBytes: result.ProofBytes}, Err: result.Err})
		}()
	}

	return &ProveResponse{JobKey: key.String()}, nil
}

func (h *Handler) Await(ctx context.Context, req *AwaitRequest) (*AwaitResponse, error) {
	key, err := proverdata.ParseJobKey(req.JobKey)
	if err != nil {
		return nil, statusError(codes.InvalidArgument, "malformed job key: %v", err)
	}

	res, err := h.registry.Await(ctx, registry.HandleForKey(key))
	if err != nil {
		if ctx.Err() != nil {
			return nil, statusError(codes.DeadlineExceeded, "await job %s: %v", req.JobKey, err)
		}
		return nil, statusError(codes.NotFound, "await job %s: %v", req.JobKey, err)
	}

	if res.Err != nil {
		return &AwaitResponse{Succeeded: false, ErrorDetail: res.Err.Error()}, nil
	}
	return &AwaitResponse{Succeeded: true, ProofBytes: res.Proof.ProofBytes}, nil
}

func (h *Handler) StreamCompletions(_ *StreamCompletionsRequest, stream ProverService_StreamCompletionsServer) error {
	notices, unsubscribe := h.registry.Subscribe()
	defer unsubscribe()

	for {
		select {
		case notice, ok := <-notices:
			if !ok {
				return nil
			}
			ev := &CompletionEvent{
				JobKey:    notice.Key.String(),
				Program:   ProgramID(notice.Key.Program),
				Succeeded: notice.Err == nil,
			}
			if notice.Err != nil {
				ev.ErrorDetail = notice.Err.Error()
			}
			if err := stream.Send(ev); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}
