// Copyright 2025 Certen Protocol
//
// On-chain publisher. Submits range-exec and message-inclusion proofs as
// signed transactions to the DA layer's verifier module, serialized per
// signer, with inclusion polling and resequencing retry. Grounded on
// pkg/execution/accumulate_submitter.go's submit→sign→broadcast→poll flow
// and pkg/execution/synthetic_transaction.go's tx-building shape,
// generalized from Accumulate's writeback model to the
// UpdateZKExecutionISM/SubmitMessages messages. No cosmos-sdk client
// library is used for the tx flow: none of the example repositories
// actually imports one in non-test code, so the signed-tx round trip
// (build, sign, broadcast, poll by hash) is built directly.

package publisher

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/certen/ev-prover/internal/metrics"
	"github.com/certen/ev-prover/internal/proverdata"
)

// MessageKind distinguishes the two submission shapes.
type MessageKind string

const (
	KindUpdateZKExecutionISM MessageKind = "UpdateZKExecutionISM"
	KindSubmitMessages       MessageKind = "SubmitMessages"
)

// Message is one length-prefixed on-chain submission.
type Message struct {
	Kind               MessageKind
	ID                 [32]byte
	Height             proverdata.Height
	ProofBytes         []byte
	PublicValuesBytes  []byte
}

// Encode writes the 32-byte ID, the 8-byte big-endian Height, then
// ProofBytes and PublicValuesBytes, each prefixed with its 4-byte
// big-endian length. Kind is not written.
func (m Message) Encode() []byte {
	buf := make([]byte, 0, 32+8+4+len(m.ProofBytes)+4+len(m.PublicValuesBytes))
	buf = append(buf, m.ID[:]...)
	var heightBytes [8]byte
	binary.BigEndian.PutUint64(heightBytes[:], uint64(m.Height))
	buf = append(buf, heightBytes[:]...)
	buf = appendLengthPrefixed(buf, m.ProofBytes)
	buf = appendLengthPrefixed(buf, m.PublicValuesBytes)
	return buf
}

func appendLengthPrefixed(buf, data []byte) []byte {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(data)))
	buf = append(buf, lenBytes[:]...)
	return append(buf, data...)
}

// TxHash identifies a submitted transaction for inclusion polling.
type TxHash [32]byte

// Chain is the verifier-module RPC contract the publisher submits to and
// polls. A real implementation talks to the DA layer's zk-ISM module; the
// contract here is implemented as specified, not redesigned.
type Chain interface {
	Broadcast(ctx context.Context, signedTxBytes []byte) (TxHash, error)
	TxIncluded(ctx context.Context, hash TxHash) (bool, error)
	NextSequence(ctx context.Context, signer ed25519.PublicKey) (uint64, error)
}

// Config bounds inclusion polling and resequencing.
type Config struct {
	InclusionPollInterval time.Duration
	InclusionTimeout      time.Duration
	MaxResubmitAttempts   int
}

func DefaultConfig() Config {
	return Config{InclusionPollInterval: time.Second, InclusionTimeout: 30 * time.Second, MaxResubmitAttempts: 5}
}

// Publisher submits proofs as signed transactions, one in flight per
// signer at a time: no two in-flight txs share a sequence number.
type Publisher struct {
	chain      Chain
	signingKey ed25519.PrivateKey
	cfg        Config
	logger     *log.Logger
	metrics    *metrics.Registry

	mu sync.Mutex // held for the duration of one tx round-trip; the publisher's signer lock
}

// Option configures optional Publisher behavior.
type Option func(*Publisher)

// WithMetrics wires the resubmit counter into m.
func WithMetrics(m *metrics.Registry) Option {
	return func(p *Publisher) { p.metrics = m }
}

func New(chain Chain, signingKey ed25519.PrivateKey, cfg Config, logger *log.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = log.New(log.Writer(), "[Publisher] ", log.LstdFlags)
	}
	p := &Publisher{chain: chain, signingKey: signingKey, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish submits msg and polls for inclusion, resubmitting with a fresh
// sequence number up to MaxResubmitAttempts on timeout.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	publicKey := p.signingKey.Public().(ed25519.PublicKey)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxResubmitAttempts; attempt++ {
		seq, err := p.chain.NextSequence(ctx, publicKey)
		if err != nil {
			return fmt.Errorf("publisher: fetch sequence number: %w", err)
		}

		signed := p.buildAndSign(msg, seq)
		hash, err := p.chain.Broadcast(ctx, signed)
		if err != nil {
			lastErr = fmt.Errorf("publisher: broadcast attempt %d: %w", attempt, err)
			p.logger.Printf("%v", lastErr)
			continue
		}

		included, err := p.pollInclusion(ctx, hash)
		if err != nil {
			lastErr = err
			p.logger.Printf("publisher: inclusion poll attempt %d failed: %v", attempt, err)
			continue
		}
		if included {
			return nil
		}

		lastErr = fmt.Errorf("publisher: tx %x not included within %s, resubmitting with fresh sequence", hash, p.cfg.InclusionTimeout)
		p.logger.Printf("%v", lastErr)
		if p.metrics != nil {
			p.metrics.PublishRetries.Inc()
		}
	}

	return fmt.Errorf("publisher: exhausted %d resubmit attempts: %w", p.cfg.MaxResubmitAttempts, lastErr)
}

func (p *Publisher) buildAndSign(msg Message, seq uint64) []byte {
	body := msg.Encode()
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	payload := append(seqBytes[:], body...)

	sig := ed25519.Sign(p.signingKey, payload)
	signed := make([]byte, 0, len(payload)+len(sig))
	signed = append(signed, payload...)
	signed = append(signed, sig...)
	return signed
}

func (p *Publisher) pollInclusion(ctx context.Context, hash TxHash) (bool, error) {
	deadline := time.Now().Add(p.cfg.InclusionTimeout)
	ticker := time.NewTicker(p.cfg.InclusionPollInterval)
	defer ticker.Stop()

	for {
		included, err := p.chain.TxIncluded(ctx, hash)
		if err != nil {
			return false, fmt.Errorf("poll inclusion: %w", err)
		}
		if included {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}
