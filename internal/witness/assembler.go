// Copyright 2025 Certen Protocol
//
// Witness assembler — composes one block-exec input from DA and rollup RPC
// responses. Grounded on pkg/anchor/event_watcher.go's
// bounded local-retry polling loop shape and
// pkg/execution/external_chain_observer.go's assembly of one logical record
// from several independent RPC calls.

package witness

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/ev-prover/internal/da"
	"github.com/certen/ev-prover/internal/proverdata"
	"github.com/certen/ev-prover/internal/rollup"
)

// Config fixes the parameters an Assembler applies to every height.
type Config struct {
	Namespace          proverdata.Namespace
	SequencerPublicKey proverdata.Ed25519PublicKey
	WitnessVariant      proverdata.WitnessVariant
	MaxLocalRetries     int
	RetryBaseDelay      time.Duration
}

func DefaultConfig() Config {
	return Config{MaxLocalRetries: 3, RetryBaseDelay: 200 * time.Millisecond}
}

// Assembler builds BlockExecInput records for one DA height at a time.
type Assembler struct {
	da     *da.Client
	rollup *rollup.Client
	cfg    Config
	logger *log.Logger

	// headerCache remembers the DA header hash last seen at a height
	// within this process's lifetime, so fetchHeaderWithRetry can detect
	// a DA reorg (the same height suddenly hashing differently) instead
	// of silently assembling a witness against a header that changed out
	// from under it. Purely in-memory; a fresh process starts with no
	// history and simply learns as it goes.
	headerCache dbm.DB
}

func NewAssembler(daClient *da.Client, rollupClient *rollup.Client, cfg Config, logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.New(log.Writer(), "[Witness] ", log.LstdFlags)
	}
	return &Assembler{da: daClient, rollup: rollupClient, cfg: cfg, logger: logger, headerCache: dbm.NewMemDB()}
}

// Assemble runs the assembly algorithm for DA height h, carrying trusted
// forward unmodified into the resulting input's Trusted field. It does not
// check the fetched header against prevDAHeaderHash; the only header check
// is fetchHeaderWithRetry's per-height cache within this process.
func (a *Assembler) Assemble(ctx context.Context, h proverdata.Height, prevDAHeaderHash proverdata.Hash32, trusted proverdata.TrustedCheckpoint) (proverdata.BlockExecInput, error) {
	header, err := a.fetchHeaderWithRetry(ctx, h)
	if err != nil {
		return proverdata.BlockExecInput{}, err
	}

	// Step 1: prevDAHeaderHash is not compared with the fetched header here,
	// and the block-exec caller does not compare it either.
	if !prevDAHeaderHash.IsZero() {
		_ = prevDAHeaderHash
	}

	blobs, err := a.fetchBlobsWithRetry(ctx, h)
	if err != nil {
		return proverdata.BlockExecInput{}, err
	}

	input := proverdata.BlockExecInput{
		DAHeight:           h,
		DAHeaderBytes:      header.RawHeader,
		DataAvailHeader:    header.DataAvailability,
		Namespace:          a.cfg.Namespace,
		SequencerPublicKey: a.cfg.SequencerPublicKey,
		Trusted:            trusted,
	}

	if len(blobs) == 0 {
		// Edge case: an empty-namespace DA block still advances the DA
		// header hash via a "null" transition.
		return input, nil
	}

	// Step 2: namespace inclusion proof for the full run.
	proof, err := a.da.NamespaceInclusionProof(ctx, h, a.cfg.Namespace, len(blobs))
	if err != nil {
		return proverdata.BlockExecInput{}, fmt.Errorf("%w: %v", ErrRpcUnavailable, err)
	}

	input.InclusionProof = proverdata.NamespaceInclusionProof{Namespace: a.cfg.Namespace, Proof: proof.Proof}
	input.Blobs = make([]proverdata.Blob, 0, len(blobs))
	for _, b := range blobs {
		input.Blobs = append(input.Blobs, proverdata.Blob{
			Namespace: a.cfg.Namespace,
			ShareIdx:  int(b.ShareIndex),
			Data:      b.Data,
		})
	}

	// Step 3: decode blobs to rollup block numbers, in canonical share
	// order (the assembler never reorders), then fetch one execution
	// witness per rollup block.
	rollupHeights, err := decodeRollupHeights(blobs)
	if err != nil {
		return proverdata.BlockExecInput{}, err
	}

	witnesses := make([]proverdata.ExecutionWitness, 0, len(rollupHeights))
	for _, rh := range rollupHeights {
		w, err := a.fetchWitnessWithRetry(ctx, rh)
		if err != nil {
			return proverdata.BlockExecInput{}, err
		}
		witnesses = append(witnesses, w)
	}
	input.Witnesses = witnesses

	return input, nil
}

// FinalRollupState returns the last witnessed rollup height in input and its
// actual on-chain state root, fetched directly from the rollup RPC rather
// than derived from any proof — this is what lets the block-exec pipeline
// chain trusted checkpoints across heights independently of proving order:
// out-of-order proof completion is allowed, but chain continuity data must
// not depend on it. If input carries no witnesses
// (the empty-transition edge case), the prior checkpoint is returned
// unchanged.
func (a *Assembler) FinalRollupState(ctx context.Context, input proverdata.BlockExecInput, prior proverdata.TrustedCheckpoint) (proverdata.Height, proverdata.Hash32, error) {
	if len(input.Witnesses) == 0 {
		return prior.RollupHeight, prior.RollupStateRoot, nil
	}
	finalHeight := input.Witnesses[len(input.Witnesses)-1].RollupHeight
	root, err := a.rollup.StateRoot(ctx, finalHeight)
	if err != nil {
		return 0, proverdata.Hash32{}, fmt.Errorf("%w: state root at rollup height %d: %v", ErrRpcUnavailable, finalHeight, err)
	}
	return finalHeight, root, nil
}

// decodeRollupHeights extracts the ordered sequence of rollup block numbers
// a DA height's blobs encode: each blob is a sequence of big-endian uint64
// rollup heights, concatenated in share order.
func decodeRollupHeights(blobs []da.Blob) ([]proverdata.Height, error) {
	var heights []proverdata.Height
	for _, b := range blobs {
		if len(b.Data)%8 != 0 {
			return nil, fmt.Errorf("%w: blob at share %d has length %d, not a multiple of 8", ErrMalformedBlob, b.ShareIndex, len(b.Data))
		}
		for off := 0; off < len(b.Data); off += 8 {
			heights = append(heights, proverdata.Height(binary.BigEndian.Uint64(b.Data[off:off+8])))
		}
	}
	return heights, nil
}

func (a *Assembler) fetchHeaderWithRetry(ctx context.Context, h proverdata.Height) (da.Header, error) {
	var result da.Header
	err := a.withLocalRetry(ctx, func() error {
		header, err := a.da.Header(ctx, uint64(h))
		if err != nil {
			return err
		}
		result = header
		return nil
	})
	if err != nil {
		return da.Header{}, fmt.Errorf("%w: header at %d: %v", ErrRpcUnavailable, h, err)
	}

	// A height re-assembled after a failed proof attempt must see the same
	// DA header hash it saw the first time; a mismatch means the DA layer
	// reorged under us within this process's lifetime, which the pipeline
	// cannot recover from safely.
	cacheKey := headerCacheKey(h)
	if cached, err := a.headerCache.Get(cacheKey); err == nil && cached != nil {
		var seen proverdata.Hash32
		copy(seen[:], cached)
		if seen != result.HeaderHash {
			return da.Header{}, fmt.Errorf("%w: header at %d changed from %x to %x since last seen this process", ErrRpcUnavailable, h, seen, result.HeaderHash)
		}
	}
	_ = a.headerCache.Set(cacheKey, result.HeaderHash[:])
	return result, nil
}

func headerCacheKey(h proverdata.Height) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(h))
	return key[:]
}

func (a *Assembler) fetchBlobsWithRetry(ctx context.Context, h proverdata.Height) ([]da.Blob, error) {
	var result []da.Blob
	err := a.withLocalRetry(ctx, func() error {
		blobs, err := a.da.BlobsInNamespace(ctx, uint64(h), a.cfg.Namespace)
		if err != nil {
			return err
		}
		result = blobs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: blobs at %d: %v", ErrRpcUnavailable, h, err)
	}
	return result, nil
}

func (a *Assembler) fetchWitnessWithRetry(ctx context.Context, rollupHeight proverdata.Height) (proverdata.ExecutionWitness, error) {
	var payload []byte
	err := a.withLocalRetry(ctx, func() error {
		raw, err := a.rollup.ExecutionWitness(ctx, rollupHeight)
		if err != nil {
			return err
		}
		payload = raw
		return nil
	})
	if err != nil {
		return proverdata.ExecutionWitness{}, fmt.Errorf("%w: rollup height %d: %v", ErrWitnessFetchFailed, rollupHeight, err)
	}

	w := proverdata.ExecutionWitness{RollupHeight: rollupHeight, Variant: a.cfg.WitnessVariant}
	switch a.cfg.WitnessVariant {
	case proverdata.WitnessZeth:
		w.ZethPayload = payload
	default:
		w.RspPayload = payload
	}
	return w, nil
}

// withLocalRetry bounds retries to the assembler's own configured budget;
// the caller (a pipeline) sees only success or one categorized error.
// Retries are local to the assembler.
func (a *Assembler) withLocalRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithMaxRetries(
		&backoff.ExponentialBackOff{
			InitialInterval:     a.cfg.RetryBaseDelay,
			RandomizationFactor: backoff.DefaultRandomizationFactor,
			Multiplier:          backoff.DefaultMultiplier,
			MaxInterval:         5 * time.Second,
			MaxElapsedTime:      0,
			Clock:               backoff.SystemClock,
		},
		uint64(a.cfg.MaxLocalRetries),
	)
	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}
