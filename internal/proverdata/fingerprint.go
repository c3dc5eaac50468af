// Copyright 2025 Certen Protocol
//
// Canonical serialization and job-key fingerprinting. Grounded on
// pkg/commitment's RFC8785-like JSON canonicalization.

package proverdata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/certen/ev-prover/pkg/commitment"
)

// Program identifies which guest program a job key or proof belongs to.
type Program string

const (
	ProgramBlockExec         Program = "block-exec"
	ProgramRangeAggregation  Program = "range-aggregation"
	ProgramMessageInclusion  Program = "message-inclusion"
)

// JobKey is the dedup identifier for a proving task: (program, fingerprint(input)).
type JobKey struct {
	Program     Program
	Fingerprint [32]byte
}

func (k JobKey) String() string {
	return fmt.Sprintf("%s/%s", k.Program, hex.EncodeToString(k.Fingerprint[:]))
}

// ParseJobKey inverts JobKey.String, for callers (the gRPC layer) that
// receive a job handle back over the wire as a plain string and need to
// look it back up in the job registry.
func ParseJobKey(s string) (JobKey, error) {
	idx := len(s) - 1
	for idx >= 0 && s[idx] != '/' {
		idx--
	}
	if idx <= 0 {
		return JobKey{}, fmt.Errorf("parse job key %q: missing '/' separator", s)
	}
	program := Program(s[:idx])
	fpHex := s[idx+1:]

	raw, err := hex.DecodeString(fpHex)
	if err != nil || len(raw) != 32 {
		return JobKey{}, fmt.Errorf("parse job key %q: bad fingerprint hex", s)
	}
	var fp [32]byte
	copy(fp[:], raw)
	return JobKey{Program: program, Fingerprint: fp}, nil
}

// CanonicalSerialize produces the deterministic serialization of any input
// record used for fingerprinting. Round-trips: serialize(deserialize(x)) == x
// for every record type in this package, since canonicalization only affects
// map key order and every type here is a struct with a fixed field order.
func CanonicalSerialize(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for canonicalization: %w", err)
	}
	return commitment.CanonicalizeJSON(raw)
}

// Fingerprint computes sha256(canonical_serialization(input)).
// fingerprint(x) == fingerprint(y) iff x and y are byte-identical after
// canonicalization, which CanonicalSerialize guarantees for semantically
// equivalent inputs (same field values, any map key order).
func Fingerprint(v interface{}) ([32]byte, error) {
	var out [32]byte
	canon, err := CanonicalSerialize(v)
	if err != nil {
		return out, err
	}
	return sha256.Sum256(canon), nil
}

// NewJobKey computes the job key for a program and its input record.
func NewJobKey(program Program, input interface{}) (JobKey, error) {
	fp, err := Fingerprint(input)
	if err != nil {
		return JobKey{}, fmt.Errorf("fingerprint %s input: %w", program, err)
	}
	return JobKey{Program: program, Fingerprint: fp}, nil
}
