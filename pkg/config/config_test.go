package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, existed := os.LookupEnv(k)
		os.Unsetenv(k)
		if existed {
			t.Cleanup(func() { os.Setenv(k, old) })
		}
	}
}

func TestValidate_RequiresDARPCAndEVMRPCAndSignerKey(t *testing.T) {
	clearEnv(t, "DA_RPC", "EVM_RPC", "SIGNER_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure with no required fields set")
	}
}

func TestValidate_PassesWithRequiredFieldsSet(t *testing.T) {
	t.Setenv("DA_RPC", "http://localhost:26657")
	t.Setenv("EVM_RPC", "http://localhost:8545")
	t.Setenv("SIGNER_KEY", "deadbeef")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
}

func TestValidate_RejectsUnknownProofMode(t *testing.T) {
	t.Setenv("DA_RPC", "http://localhost:26657")
	t.Setenv("EVM_RPC", "http://localhost:8545")
	t.Setenv("SIGNER_KEY", "deadbeef")
	t.Setenv("PROOF_MODE", "turbo")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure for unrecognized proof mode")
	}
}

func TestLoadGenesis_ParsesAndSubstitutes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.yaml")
	content := `
trusted_checkpoint:
  rollup_height: 42
  rollup_state_root: "${ROOT_HEX:-0000000000000000000000000000000000000000000000000000000000000001}"
  da_header_hash: "0000000000000000000000000000000000000000000000000000000000000002"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write genesis file: %v", err)
	}

	checkpoint, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}
	if checkpoint.RollupHeight != 42 {
		t.Fatalf("expected rollup height 42, got %d", checkpoint.RollupHeight)
	}
	if checkpoint.RollupStateRoot[31] != 0x01 {
		t.Fatalf("expected default-substituted root ending in 0x01, got %x", checkpoint.RollupStateRoot)
	}
	if checkpoint.DAHeaderHash[31] != 0x02 {
		t.Fatalf("expected da header hash ending in 0x02, got %x", checkpoint.DAHeaderHash)
	}
}

func TestLoadGenesis_MissingFile(t *testing.T) {
	if _, err := LoadGenesis("/nonexistent/genesis.yaml"); err == nil {
		t.Fatal("expected error for missing genesis file")
	}
}
