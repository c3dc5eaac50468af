// Copyright 2025 Certen Protocol
//
// Message-inclusion pipeline. Runs independently of the other two
// pipelines; proves that a window of Hyperlane dispatch events is
// included in the rollup's storage trie, anchored at a state root the
// range-aggregation pipeline has already proven. The range→message
// dependency is resolved via an asynchronous notification channel rather
// than shared mutable state: pending requests are indexed by the rollup
// height they need and drained as Notify delivers a checkpoint that
// satisfies them. Grounded on
// pkg/execution/proof_cycle_orchestrator.go's callback-driven multi-phase
// wiring and pkg/anchor/scheduler.go's request-channel pattern.

package message

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/certen/ev-prover/internal/backend"
	"github.com/certen/ev-prover/internal/metrics"
	"github.com/certen/ev-prover/internal/proverdata"
	"github.com/certen/ev-prover/internal/registry"
	"github.com/certen/ev-prover/internal/rollup"
)

// Config fixes the contract addresses and topic this pipeline watches.
type Config struct {
	MailboxAddress       ethcommon.Address
	DispatchTopic        ethcommon.Hash
	MerkleTreeContract   ethcommon.Address
	ProveTimeout         time.Duration
}

func DefaultConfig() Config {
	return Config{ProveTimeout: 2 * time.Minute}
}

// Prover is the subset of backend.Pool the pipeline needs.
type Prover interface {
	Prove(ctx context.Context, id backend.ProgramID, input []byte, mode backend.Mode) (backend.Result, error)
}

// Request asks the pipeline to prove inclusion of dispatch nonces
// [StartNonce, EndNonce] anchored at or after RequiredRollupHeight.
type Request struct {
	StartNonce           uint64
	EndNonce             uint64
	RequiredRollupHeight proverdata.Height
}

// Result is the terminal outcome of one Request.
type Result struct {
	Output     proverdata.MessageInclusionOutput
	ProofBytes []byte
	Err        error
}

type pendingRequest struct {
	req    Request
	result chan Result
}

// Pipeline proves Hyperlane message inclusion anchored at proven rollup
// checkpoints.
type Pipeline struct {
	rollup   *rollup.Client
	prover   Prover
	registry *registry.Registry
	cfg      Config
	logger   *log.Logger
	metrics  *metrics.Registry

	mu          sync.Mutex
	anchor      proverdata.TrustedCheckpoint // highest checkpoint notified so far
	pending     []*pendingRequest
	snapshot    proverdata.IncrementalMerkleSnapshot
}

// Option configures optional Pipeline behavior.
type Option func(*Pipeline)

// WithMetrics wires per-program prove-latency observations into m.
func WithMetrics(m *metrics.Registry) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func New(rollupClient *rollup.Client, prover Prover, reg *registry.Registry, cfg Config, logger *log.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[MessageInclusion] ", log.LstdFlags)
	}
	p := &Pipeline{rollup: rollupClient, prover: prover, registry: reg, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Notify delivers a newly-proven checkpoint from the range-aggregation
// pipeline, draining (in a background goroutine per satisfied request) any
// pending requests whose RequiredRollupHeight it now covers.
func (p *Pipeline) Notify(ctx context.Context, checkpoint proverdata.TrustedCheckpoint) {
	p.mu.Lock()
	if checkpoint.RollupHeight < p.anchor.RollupHeight {
		p.mu.Unlock()
		return // checkpoints only advance; an out-of-order notify is a no-op
	}
	p.anchor = checkpoint

	var satisfied []*pendingRequest
	remaining := p.pending[:0]
	for _, pr := range p.pending {
		if checkpoint.RollupHeight >= pr.req.RequiredRollupHeight {
			satisfied = append(satisfied, pr)
		} else {
			remaining = append(remaining, pr)
		}
	}
	p.pending = remaining
	p.mu.Unlock()

	for _, pr := range satisfied {
		go func(pr *pendingRequest) {
			out, proofBytes, err := p.proveAgainst(ctx, pr.req, checkpoint)
			pr.result <- Result{Output: out, ProofBytes: proofBytes, Err: err}
		}(pr)
	}
}

// Submit requests inclusion proof for [req.StartNonce, req.EndNonce],
// blocking until a satisfying checkpoint has been notified.
func (p *Pipeline) Submit(ctx context.Context, req Request) (Result, error) {
	p.mu.Lock()
	if p.anchor.RollupHeight >= req.RequiredRollupHeight {
		checkpoint := p.anchor
		p.mu.Unlock()
		out, proofBytes, err := p.proveAgainst(ctx, req, checkpoint)
		return Result{Output: out, ProofBytes: proofBytes, Err: err}, nil
	}

	pr := &pendingRequest{req: req, result: make(chan Result, 1)}
	p.pending = append(p.pending, pr)
	p.mu.Unlock()

	select {
	case res := <-pr.result:
		return res, nil
	case <-ctx.Done():
		return Result{}, fmt.Errorf("await message-inclusion anchor: %w", ctx.Err())
	}
}

func (p *Pipeline) proveAgainst(ctx context.Context, req Request, checkpoint proverdata.TrustedCheckpoint) (proverdata.MessageInclusionOutput, []byte, error) {
	logs, err := p.rollup.DispatchLogs(ctx, p.cfg.MailboxAddress, p.cfg.DispatchTopic, 0, checkpoint.RollupHeight)
	if err != nil {
		return proverdata.MessageInclusionOutput{}, nil, fmt.Errorf("fetch dispatch logs: %w", err)
	}

	messages := decodeDispatchedMessages(logs, req.StartNonce, req.EndNonce)
	sort.Slice(messages, func(i, j int) bool { return messages[i].Nonce < messages[j].Nonce })

	input := proverdata.MessageInclusionInput{
		TargetRollupStateRoot:  checkpoint.RollupStateRoot,
		MerkleTreeContractAddr: p.cfg.MerkleTreeContract,
		DispatchedMessages:     messages,
	}
	if err := input.CheckConsecutiveNonces(); err != nil {
		return proverdata.MessageInclusionOutput{}, nil, err
	}

	proof, err := p.rollup.AccountAndStorageProof(ctx, checkpoint.RollupHeight, p.cfg.MerkleTreeContract, nil)
	if err != nil {
		return proverdata.MessageInclusionOutput{}, nil, fmt.Errorf("fetch storage proof: %w", err)
	}
	input.BranchProof = proverdata.AccountStorageProof{
		Address:      p.cfg.MerkleTreeContract,
		AccountProof: proof.AccountProof,
	}

	p.mu.Lock()
	input.Snapshot = p.snapshot
	p.mu.Unlock()

	key, err := proverdata.NewJobKey(proverdata.ProgramMessageInclusion, input)
	if err != nil {
		return proverdata.MessageInclusionOutput{}, nil, fmt.Errorf("fingerprint message-inclusion input: %w", err)
	}

	handle, outcome := p.registry.Claim(key)
	var proofResult backend.Result
	if outcome == registry.AlreadyRunning {
		res, err := p.registry.Await(ctx, handle)
		if err != nil {
			return proverdata.MessageInclusionOutput{}, nil, err
		}
		if res.Err != nil {
			return proverdata.MessageInclusionOutput{}, nil, res.Err
		}
		proofResult = res.Proof
	} else {
		guard := p.registry.NewGuard(handle, fmt.Errorf("message-inclusion job abandoned"))
		defer guard.Close()
		p.registry.MarkRunning(handle)

		proveCtx := ctx
		if p.cfg.ProveTimeout > 0 {
			var cancel context.CancelFunc
			proveCtx, cancel = context.WithTimeout(ctx, p.cfg.ProveTimeout)
			defer cancel()
		}

		serialized, err := proverdata.CanonicalSerialize(input)
		if err != nil {
			guard.Resolve(registry.Result{Err: err})
			return proverdata.MessageInclusionOutput{}, nil, err
		}

		proveStart := time.Now()
		result, err := p.prover.Prove(proveCtx, backend.ProgramMessageInclusion, serialized, backend.ModeDefault)
		if p.metrics != nil {
			p.metrics.ProveLatency.WithLabelValues(string(backend.ProgramMessageInclusion)).Observe(time.Since(proveStart).Seconds())
		}
		guard.Resolve(registry.Result{Proof: result, Err: err})
		if err != nil {
			return proverdata.MessageInclusionOutput{}, nil, fmt.Errorf("prove message inclusion: %w", err)
		}
		proofResult = result
	}

	ids := make([]proverdata.Hash32, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.MessageID)
	}

	p.mu.Lock()
	for _, id := range ids {
		p.snapshot.Insert(id)
	}
	p.mu.Unlock()

	return proverdata.MessageInclusionOutput{
		TargetRollupStateRoot: checkpoint.RollupStateRoot,
		CommittedMessageIDs:   ids,
	}, proofResult.ProofBytes, nil
}

// decodeDispatchedMessages extracts one DispatchedMessage per log whose
// nonce falls in [startNonce, endNonce]. Hyperlane's real dispatch event
// ABI-encodes (sender, destination, recipient, message) in the log data;
// unpacking that ABI is out of scope here, so the nonce is taken from the
// log's position within the filtered range and the message body is the
// raw log data.
func decodeDispatchedMessages(logs []types.Log, startNonce, endNonce uint64) []proverdata.DispatchedMessage {
	var messages []proverdata.DispatchedMessage
	for i, l := range logs {
		nonce := startNonce + uint64(i)
		if nonce < startNonce || nonce > endNonce {
			continue
		}
		messages = append(messages, proverdata.DispatchedMessage{
			Nonce:     nonce,
			MessageID: proverdata.HashFromBytes(l.Data),
			Body:      l.Data,
		})
	}
	return messages
}
