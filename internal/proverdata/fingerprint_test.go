// Copyright 2025 Certen Protocol

package proverdata

import "testing"

func TestFingerprint_Deterministic(t *testing.T) {
	a := BlockExecOutput{NewRollupHeight: 10, NewRollupStateRoot: Hash32{1, 2, 3}}
	b := BlockExecOutput{NewRollupHeight: 10, NewRollupStateRoot: Hash32{1, 2, 3}}

	fa, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("fingerprint a: %v", err)
	}
	fb, err := Fingerprint(b)
	if err != nil {
		t.Fatalf("fingerprint b: %v", err)
	}
	if fa != fb {
		t.Errorf("identical inputs produced different fingerprints: %x != %x", fa, fb)
	}
}

func TestFingerprint_DiffersOnChange(t *testing.T) {
	a := BlockExecOutput{NewRollupHeight: 10}
	b := BlockExecOutput{NewRollupHeight: 11}

	fa, _ := Fingerprint(a)
	fb, _ := Fingerprint(b)
	if fa == fb {
		t.Errorf("different inputs produced identical fingerprints")
	}
}

func TestNewJobKey_StableAcrossCalls(t *testing.T) {
	input := BlockExecInput{DAHeight: 12}

	k1, err := NewJobKey(ProgramBlockExec, input)
	if err != nil {
		t.Fatalf("job key: %v", err)
	}
	k2, err := NewJobKey(ProgramBlockExec, input)
	if err != nil {
		t.Fatalf("job key: %v", err)
	}
	if k1 != k2 {
		t.Errorf("job key not stable: %s != %s", k1, k2)
	}
}

func TestTrustedCheckpoint_Advances(t *testing.T) {
	root := Hash32{9, 9}
	cp := TrustedCheckpoint{RollupHeight: 100, RollupStateRoot: root}

	cases := []struct {
		name string
		next TrustedCheckpoint
		want bool
	}{
		{"strictly greater height", TrustedCheckpoint{RollupHeight: 101, RollupStateRoot: root}, true},
		{"same height same root", TrustedCheckpoint{RollupHeight: 100, RollupStateRoot: root}, true},
		{"same height different root", TrustedCheckpoint{RollupHeight: 100, RollupStateRoot: Hash32{1}}, false},
		{"lower height", TrustedCheckpoint{RollupHeight: 99, RollupStateRoot: root}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := cp.Advances(c.next); got != c.want {
				t.Errorf("Advances() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestRangeExecInput_CheckContinuity(t *testing.T) {
	trusted := TrustedCheckpoint{RollupHeight: 20, RollupStateRoot: Hash32{1}, DAHeaderHash: Hash32{2}}

	good := RangeExecInput{
		Trusted: trusted,
		Receipts: []BlockExecReceipt{
			{Output: BlockExecOutput{
				TrustedRollupHeight: 20, TrustedRollupRoot: Hash32{1},
				NewRollupStateRoot: Hash32{3}, PrevDAHeaderHash: Hash32{2}, NewDAHeaderHash: Hash32{4},
			}},
			{Output: BlockExecOutput{
				TrustedRollupHeight: 21, TrustedRollupRoot: Hash32{3},
				NewRollupStateRoot: Hash32{5}, PrevDAHeaderHash: Hash32{4}, NewDAHeaderHash: Hash32{6},
			}},
		},
	}
	if err := good.CheckContinuity(); err != nil {
		t.Errorf("expected continuous input to pass, got %v", err)
	}

	broken := good
	broken.Receipts[1].Output.TrustedRollupRoot = Hash32{99}
	if err := broken.CheckContinuity(); err == nil {
		t.Error("expected continuity break to be detected")
	}
}

func TestParseJobKey_RoundTrip(t *testing.T) {
	key, err := NewJobKey(ProgramRangeAggregation, RangeExecInput{Trusted: TrustedCheckpoint{RollupHeight: 7}})
	if err != nil {
		t.Fatalf("NewJobKey: %v", err)
	}

	parsed, err := ParseJobKey(key.String())
	if err != nil {
		t.Fatalf("ParseJobKey: %v", err)
	}
	if parsed != key {
		t.Errorf("round trip mismatch: %s != %s", parsed, key)
	}
}

func TestParseJobKey_RejectsMalformed(t *testing.T) {
	cases := []string{"", "no-slash-here", "program/not-hex", "program/" + string(make([]byte, 10))}
	for _, c := range cases {
		if _, err := ParseJobKey(c); err == nil {
			t.Errorf("expected ParseJobKey(%q) to fail", c)
		}
	}
}

func TestMessageInclusionInput_CheckConsecutiveNonces(t *testing.T) {
	ok := MessageInclusionInput{DispatchedMessages: []DispatchedMessage{{Nonce: 5}, {Nonce: 6}, {Nonce: 7}}}
	if err := ok.CheckConsecutiveNonces(); err != nil {
		t.Errorf("expected consecutive nonces to pass, got %v", err)
	}

	gap := MessageInclusionInput{DispatchedMessages: []DispatchedMessage{{Nonce: 5}, {Nonce: 7}}}
	if err := gap.CheckConsecutiveNonces(); err == nil {
		t.Error("expected nonce gap to be rejected")
	}
}
