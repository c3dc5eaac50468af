// Copyright 2025 Certen Protocol
//
// Range-aggregation pipeline. Buffers completed block-exec proofs,
// re-sorts by rollup height, and dispatches a range
// proof once a window fills or a timeout elapses. Validates continuity
// before dispatch; a gap beyond tolerance is a fatal halt. Grounded on
// pkg/anchor/scheduler.go's window/timeout config shape
// (OnCadenceInterval/OnCadenceMinBatch) and
// pkg/execution/proof_cycle_orchestrator.go's multi-phase orchestration
// with a notification callback to the next stage.

package rangeagg

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/certen/ev-prover/internal/backend"
	"github.com/certen/ev-prover/internal/metrics"
	blockexec "github.com/certen/ev-prover/internal/pipeline/blockexec"
	"github.com/certen/ev-prover/internal/proverdata"
	"github.com/certen/ev-prover/internal/registry"
)

// Config bounds the aggregation window.
type Config struct {
	WindowSize     int
	WindowTimeout  time.Duration
	GapTolerance   time.Duration
	ProveTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{WindowSize: 8, WindowTimeout: 30 * time.Second, GapTolerance: 15 * time.Second, ProveTimeout: 2 * time.Minute}
}

// Prover is the subset of backend.Pool the pipeline needs.
type Prover interface {
	Prove(ctx context.Context, id backend.ProgramID, input []byte, mode backend.Mode) (backend.Result, error)
}

// Notification carries an advanced checkpoint downstream, to the publisher
// and to the message-inclusion pipeline's pending-request index.
type Notification struct {
	Checkpoint proverdata.TrustedCheckpoint
	Output     proverdata.RangeExecOutput
	ProofBytes []byte
}

// Pipeline drives range aggregation over the block-exec pipeline's output.
type Pipeline struct {
	prover   Prover
	registry *registry.Registry
	cfg      Config
	logger   *log.Logger
	metrics  *metrics.Registry

	mu          sync.Mutex
	checkpoint  proverdata.TrustedCheckpoint
	pendingSize int32 // mirrors len(pending) in Run's loop, for status reporting
}

// Option configures optional Pipeline behavior.
type Option func(*Pipeline)

// WithMetrics wires per-program prove-latency observations into m.
func WithMetrics(m *metrics.Registry) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func New(prover Prover, reg *registry.Registry, initial proverdata.TrustedCheckpoint, cfg Config, logger *log.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[RangeAgg] ", log.LstdFlags)
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 1
	}
	p := &Pipeline{prover: prover, registry: reg, cfg: cfg, logger: logger, checkpoint: initial}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Checkpoint returns a snapshot of the current trusted checkpoint. Safe for
// concurrent readers (the gRPC Status handler); the range pipeline is its sole
// writer. We still take the lock here since Go gives no lock-free
// snapshot of a struct this size without one.
func (p *Pipeline) Checkpoint() proverdata.TrustedCheckpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkpoint
}

// PendingCount reports how many block-exec receipts are currently
// buffered awaiting window dispatch, for status reporting.
func (p *Pipeline) PendingCount() int {
	return int(atomic.LoadInt32(&p.pendingSize))
}

// Run consumes block-exec completions (out of order) from in, re-sorts by
// rollup height, and emits a Notification on out each time a window of
// receipts passes continuity and is proven. A window that fails continuity
// is kept and re-checked as more receipts arrive; once the failure has
// persisted for cfg.GapTolerance (at once when GapTolerance is zero) Run
// closes out and returns, leaving the publisher untouched — a fatal
// pipeline halt requiring human intervention.
func (p *Pipeline) Run(ctx context.Context, in <-chan blockexec.Output) <-chan Notification {
	out := make(chan Notification, 1)

	go func() {
		defer close(out)

		var pending []proverdata.BlockExecReceipt
		var oldestQueuedAt time.Time
		var gapSince time.Time // when the current continuity failure was first seen

		flush := func() bool {
			if len(pending) == 0 {
				return true
			}
			sort.Slice(pending, func(i, j int) bool {
				return pending[i].Output.NewRollupHeight < pending[j].Output.NewRollupHeight
			})

			input := proverdata.RangeExecInput{Receipts: pending, Trusted: p.Checkpoint()}
			if err := input.CheckContinuity(); err != nil {
				if p.cfg.GapTolerance > 0 {
					if gapSince.IsZero() {
						gapSince = time.Now()
					}
					if time.Since(gapSince) < p.cfg.GapTolerance {
						p.logger.Printf("range continuity gap, waiting for the missing proof: %v", err)
						return true
					}
				}
				p.logger.Printf("fatal: range continuity violation, halting: %v", err)
				return false
			}
			gapSince = time.Time{}

			notification, err := p.proveRange(ctx, input)
			if err != nil {
				p.logger.Printf("range-aggregation proof failed: %v", err)
				pending = nil
				atomic.StoreInt32(&p.pendingSize, 0)
				return true
			}

			p.mu.Lock()
			p.checkpoint = notification.Checkpoint
			p.mu.Unlock()

			select {
			case out <- notification:
			case <-ctx.Done():
			}
			pending = nil
			atomic.StoreInt32(&p.pendingSize, 0)
			return true
		}

		var timeoutC <-chan time.Time
		for {
			if timeoutC == nil && p.cfg.WindowTimeout > 0 {
				timeoutC = time.After(p.cfg.WindowTimeout)
			}

			select {
			case <-ctx.Done():
				return

			case completion, ok := <-in:
				if !ok {
					flush()
					return
				}
				if completion.Err != nil {
					p.logger.Printf("block-exec completion error, skipping from range window: %v", completion.Err)
					continue
				}
				if len(pending) == 0 {
					oldestQueuedAt = time.Now()
				}
				pending = append(pending, completion.Receipt)
				atomic.StoreInt32(&p.pendingSize, int32(len(pending)))
				if len(pending) >= p.cfg.WindowSize {
					if !flush() {
						return
					}
					timeoutC = nil
				}

			case <-timeoutC:
				timeoutC = nil
				if len(pending) == 0 {
					continue
				}
				if p.cfg.GapTolerance > 0 && time.Since(oldestQueuedAt) < p.cfg.GapTolerance {
					// give the window a little longer to fill before
					// forcing a partial dispatch
					continue
				}
				if !flush() {
					return
				}
			}
		}
	}()

	return out
}

func (p *Pipeline) proveRange(ctx context.Context, input proverdata.RangeExecInput) (Notification, error) {
	key, err := proverdata.NewJobKey(proverdata.ProgramRangeAggregation, input)
	if err != nil {
		return Notification{}, fmt.Errorf("fingerprint range input: %w", err)
	}

	handle, outcome := p.registry.Claim(key)
	if outcome == registry.AlreadyRunning {
		res, err := p.registry.Await(ctx, handle)
		if err != nil {
			return Notification{}, err
		}
		if res.Err != nil {
			return Notification{}, res.Err
		}
		return p.buildNotification(input, res.Proof.ProofBytes), nil
	}

	guard := p.registry.NewGuard(handle, fmt.Errorf("range-aggregation job abandoned"))
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
		return Notification{}, err
	}

	proveStart := time.Now()
	result, err := p.prover.Prove(proveCtx, backend.ProgramRangeAggregation, serialized, backend.ModeDefault)
	if p.metrics != nil {
		p.metrics.ProveLatency.WithLabelValues(string(backend.ProgramRangeAggregation)).Observe(time.Since(proveStart).Seconds())
	}
	guard.Resolve(registry.Result{Proof: result, Err: err})
	if err != nil {
		return Notification{}, fmt.Errorf("prove range: %w", err)
	}

	return p.buildNotification(input, result.ProofBytes), nil
}

func (p *Pipeline) buildNotification(input proverdata.RangeExecInput, proofBytes []byte) Notification {
	lastReceipt := input.Receipts[len(input.Receipts)-1]
	last := lastReceipt.Output
	checkpoint := proverdata.TrustedCheckpoint{
		RollupHeight:    last.NewRollupHeight,
		RollupStateRoot: last.NewRollupStateRoot,
		DAHeaderHash:    last.NewDAHeaderHash,
		DAHeight:        lastReceipt.DAHeight,
	}
	return Notification{
		Checkpoint: checkpoint,
		Output:     proverdata.RangeExecOutput{NewCheckpoint: checkpoint, FinalDAHeaderHash: last.NewDAHeaderHash},
		ProofBytes: proofBytes,
	}
}
