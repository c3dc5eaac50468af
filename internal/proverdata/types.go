// Copyright 2025 Certen Protocol
//
// Core data model for the ev-prover orchestrator: heights, the trusted
// checkpoint, and the input/output records for the three proving programs.

package proverdata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Height is an unsigned block number on either chain. DA and rollup heights
// are distinct namespaces; callers must not compare across chains directly.
type Height uint64

// ChainKind distinguishes the DA layer from the rollup execution layer.
type ChainKind string

const (
	ChainDA     ChainKind = "da"
	ChainRollup ChainKind = "rollup"
)

// ChainHeight is the canonical (chain, height) identifier.
type ChainHeight struct {
	Chain  ChainKind `json:"chain"`
	Height Height    `json:"height"`
}

func (c ChainHeight) String() string {
	return fmt.Sprintf("%s:%d", c.Chain, c.Height)
}

// Hash32 is a fixed 32-byte digest, used for state roots and header hashes.
type Hash32 [32]byte

func (h Hash32) String() string { return hex.EncodeToString(h[:]) }

func (h Hash32) IsZero() bool {
	var zero Hash32
	return h == zero
}

// HashFromBytes folds an arbitrary-length byte slice into a Hash32. If b is
// already exactly 32 bytes it is copied verbatim; otherwise it is hashed
// down with SHA-256. Used to normalize hashes coming from RPC client
// libraries whose native hash type isn't a fixed [32]byte.
func HashFromBytes(b []byte) Hash32 {
	var h Hash32
	if len(b) == len(h) {
		copy(h[:], b)
		return h
	}
	return Hash32(sha256.Sum256(b))
}

func HashFromHex(s string) (Hash32, error) {
	var h Hash32
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hash hex: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Namespace is the 29-byte DA namespace identifier.
type Namespace [29]byte

func (n Namespace) String() string { return hex.EncodeToString(n[:]) }

// Ed25519PublicKey is the sequencer's 32-byte public key.
type Ed25519PublicKey [32]byte

func (k Ed25519PublicKey) String() string { return hex.EncodeToString(k[:]) }

// TrustedCheckpoint describes the last state proven on-chain.
// Created at genesis from configuration; advanced only by the range-aggregation
// pipeline; otherwise read-only.
type TrustedCheckpoint struct {
	RollupHeight    Height  `json:"rollup_height"`
	RollupStateRoot Hash32  `json:"rollup_state_root"`
	DAHeaderHash    Hash32  `json:"da_header_hash"`
	DAHeight        Height  `json:"da_height"`
}

// Advances reports whether next is a valid monotonic advance over c:
// new.rollup_height > old.rollup_height, or == with an identical root,
// never less.
func (c TrustedCheckpoint) Advances(next TrustedCheckpoint) bool {
	if next.RollupHeight > c.RollupHeight {
		return true
	}
	return next.RollupHeight == c.RollupHeight && next.RollupStateRoot == c.RollupStateRoot
}
