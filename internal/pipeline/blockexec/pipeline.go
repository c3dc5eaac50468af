// Copyright 2025 Certen Protocol
//
// Block-exec pipeline. Consumes a stream of DA heights in ascending
// order, assembles and proves each, and emits in
// completion order with bounded in-flight concurrency. Grounded on
// pkg/anchor/scheduler.go's queue/channel/config shape (BatchCheckInterval,
// its fields became MaxConcurrentProofs/ProveTimeout here) and
// pkg/execution/proof_cycle_orchestrator.go's multi-phase orchestration.

package blockexec

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/certen/ev-prover/internal/backend"
	"github.com/certen/ev-prover/internal/metrics"
	"github.com/certen/ev-prover/internal/proverdata"
	"github.com/certen/ev-prover/internal/registry"
	"github.com/certen/ev-prover/internal/witness"
)

// Config bounds the pipeline's concurrency and per-prove timeout.
type Config struct {
	MaxConcurrentProofs int
	ProveTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{MaxConcurrentProofs: 4, ProveTimeout: 2 * time.Minute}
}

// Output is one completed (or failed) block-exec job, tagged with its
// inputs for downstream re-sorting by the range-aggregation pipeline.
type Output struct {
	DAHeight proverdata.Height
	Input    proverdata.BlockExecInput
	Output   proverdata.BlockExecOutput
	Receipt  proverdata.BlockExecReceipt
	Err      error
}

// Prover is the subset of backend.Pool the pipeline needs.
type Prover interface {
	Prove(ctx context.Context, id backend.ProgramID, input []byte, mode backend.Mode) (backend.Result, error)
	VerifyingKey(id backend.ProgramID) ([32]byte, error)
}

// dispatched is a height whose witness has already been assembled and
// whose place in the trusted-checkpoint chain is fixed; only the
// (concurrency-bounded) Prove call remains.
type dispatched struct {
	height proverdata.Height
	input  proverdata.BlockExecInput
	output proverdata.BlockExecOutput // public output, minus the proof itself
}

// Pipeline drives the block-exec proving loop.
type Pipeline struct {
	assembler *witness.Assembler
	prover    Prover
	registry  *registry.Registry
	cfg       Config
	logger    *log.Logger
	metrics   *metrics.Registry

	sem chan struct{} // bounds in-flight proving jobs to cfg.MaxConcurrentProofs
}

// Option configures optional Pipeline behavior.
type Option func(*Pipeline)

// WithMetrics wires per-program prove-latency observations into m.
func WithMetrics(m *metrics.Registry) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func New(assembler *witness.Assembler, prover Prover, reg *registry.Registry, cfg Config, logger *log.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[BlockExec] ", log.LstdFlags)
	}
	if cfg.MaxConcurrentProofs <= 0 {
		cfg.MaxConcurrentProofs = 4
	}
	p := &Pipeline{
		assembler: assembler,
		prover:    prover,
		registry:  reg,
		cfg:       cfg,
		logger:    logger,
		sem:       make(chan struct{}, cfg.MaxConcurrentProofs),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InFlight reports the number of proofs currently occupying the
// concurrency semaphore, for status reporting.
func (p *Pipeline) InFlight() int { return len(p.sem) }

// Run consumes heights from in (expected ascending, with no gaps — callers
// must fetch missing heights eagerly) and emits
// completions, in completion order rather than input order, on the
// returned channel. Run returns at once; the returned channel is closed
// once in is closed or ctx is cancelled and in-flight proofs have ended.
//
// Witness assembly and trusted-checkpoint chaining happen strictly in
// input order (chain continuity is real on-chain state, not a function of
// proving order); only the backend Prove call — the expensive step — runs
// with up to cfg.MaxConcurrentProofs heights in flight at once.
func (p *Pipeline) Run(ctx context.Context, in <-chan proverdata.Height, trusted proverdata.TrustedCheckpoint) <-chan Output {
	out := make(chan Output, p.cfg.MaxConcurrentProofs)

	var wg sync.WaitGroup

	go func() {
		defer close(out)
		defer wg.Wait()

		current := trusted
		var prevDAHeaderHash proverdata.Hash32 = trusted.DAHeaderHash

		for {
			select {
			case <-ctx.Done():
				return
			case h, ok := <-in:
				if !ok {
					return
				}

				job, nextTrusted, nextPrevHash, err := p.assembleAndChain(ctx, h, current, prevDAHeaderHash)
				if err != nil {
					select {
					case out <- Output{DAHeight: h, Err: err}:
					case <-ctx.Done():
						return
					}
					continue
				}
				current = nextTrusted
				prevDAHeaderHash = nextPrevHash

				select {
				case p.sem <- struct{}{}:
				case <-ctx.Done():
					return
				}

				wg.Add(1)
				go func(j dispatched) {
					defer wg.Done()
					defer func() { <-p.sem }()
					result := p.proveJob(ctx, j)
					select {
					case out <- result:
					case <-ctx.Done():
					}
				}(job)
			}
		}
	}()

	return out
}

// assembleAndChain fetches the witness for h and computes the
// BlockExecOutput's continuity-bearing fields deterministically from real
// chain state, returning the next height's trusted checkpoint and previous
// DA header hash for the caller to carry forward.
func (p *Pipeline) assembleAndChain(ctx context.Context, h proverdata.Height, current proverdata.TrustedCheckpoint, prevDAHeaderHash proverdata.Hash32) (dispatched, proverdata.TrustedCheckpoint, proverdata.Hash32, error) {
	input, err := p.assembler.Assemble(ctx, h, prevDAHeaderHash, current)
	if err != nil {
		return dispatched{}, current, prevDAHeaderHash, fmt.Errorf("assemble height %d: %w", h, err)
	}

	newDAHeaderHash := proverdata.HashFromBytes(input.DAHeaderBytes)

	finalRollupHeight, finalRoot, err := p.assembler.FinalRollupState(ctx, input, current)
	if err != nil {
		return dispatched{}, current, prevDAHeaderHash, fmt.Errorf("derive rollup state for height %d: %w", h, err)
	}

	output := proverdata.BlockExecOutput{
		NewRollupHeight:     finalRollupHeight,
		NewRollupStateRoot:  finalRoot,
		PrevDAHeaderHash:    prevDAHeaderHash,
		NewDAHeaderHash:     newDAHeaderHash,
		TrustedRollupHeight: current.RollupHeight,
		TrustedRollupRoot:   current.RollupStateRoot,
		Namespace:           input.Namespace,
		SequencerPublicKey:  input.SequencerPublicKey,
	}

	next := proverdata.TrustedCheckpoint{
		RollupHeight:    finalRollupHeight,
		RollupStateRoot: finalRoot,
		DAHeaderHash:    newDAHeaderHash,
		DAHeight:        h,
	}

	return dispatched{height: h, input: input, output: output}, next, newDAHeaderHash, nil
}

// proveJob claims a job for the already-assembled input and runs the
// backend prove call, deduplicating against any identical in-flight job.
func (p *Pipeline) proveJob(ctx context.Context, j dispatched) Output {
	key, err := proverdata.NewJobKey(proverdata.ProgramBlockExec, j.input)
	if err != nil {
		return Output{DAHeight: j.height, Input: j.input, Err: fmt.Errorf("fingerprint height %d: %w", j.height, err)}
	}

	handle, outcome := p.registry.Claim(key)
	if outcome == registry.AlreadyRunning {
		res, err := p.registry.Await(ctx, handle)
		if err != nil {
			return Output{DAHeight: j.height, Input: j.input, Err: err}
		}
		return p.toOutput(j, res)
	}

	guard := p.registry.NewGuard(handle, fmt.Errorf("block-exec job for height %d abandoned", j.height))
	defer guard.Close()
	p.registry.MarkRunning(handle)

	proveCtx := ctx
	if p.cfg.ProveTimeout > 0 {
		var cancel context.CancelFunc
		proveCtx, cancel = context.WithTimeout(ctx, p.cfg.ProveTimeout)
		defer cancel()
	}

	serialized, err := proverdata.CanonicalSerialize(j.input)
	if err != nil {
		guard.Resolve(registry.Result{Err: err})
		return Output{DAHeight: j.height, Input: j.input, Err: err}
	}

	proveStart := time.Now()
	proofResult, err := p.prover.Prove(proveCtx, backend.ProgramBlockExec, serialized, backend.ModeDefault)
	if p.metrics != nil {
		p.metrics.ProveLatency.WithLabelValues(string(backend.ProgramBlockExec)).Observe(time.Since(proveStart).Seconds())
	}
	guard.Resolve(registry.Result{Proof: proofResult, Err: err})
	if err != nil {
		return Output{DAHeight: j.height, Input: j.input, Err: fmt.Errorf("prove height %d: %w", j.height, err)}
	}

	vk, err := p.prover.VerifyingKey(backend.ProgramBlockExec)
	if err != nil {
		p.logger.Printf("warning: verifying key unavailable for height %d: %v", j.height, err)
	}

	return Output{
		DAHeight: j.height,
		Input:    j.input,
		Output:   j.output,
		Receipt: proverdata.BlockExecReceipt{
			DAHeight:     j.height,
			VerifyingKey: vk,
			Output:       j.output,
			ProofBytes:   proofResult.ProofBytes,
		},
	}
}

func (p *Pipeline) toOutput(j dispatched, res registry.Result) Output {
	if res.Err != nil {
		return Output{DAHeight: j.height, Input: j.input, Err: res.Err}
	}
	vk, _ := p.prover.VerifyingKey(backend.ProgramBlockExec)
	return Output{
		DAHeight: j.height,
		Input:    j.input,
		Output:   j.output,
		Receipt: proverdata.BlockExecReceipt{
			DAHeight:     j.height,
			VerifyingKey: vk,
			Output:       j.output,
			ProofBytes:   res.Proof.ProofBytes,
		},
	}
}
