// Copyright 2025 Certen Protocol
//
// Genesis trusted-checkpoint loading from a YAML file, with ${VAR_NAME}
// environment substitution. Grounded on pkg/config/anchor_config.go's
// LoadAnchorConfig/substituteEnvVars pattern — the only other place in the
// teacher that parses YAML configuration.

package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/certen/ev-prover/internal/proverdata"
)

var genesisEnvVarPattern = regexp.MustCompile(`\$\{([A-Z0-9_]+)(:-([^}]*))?\}`)

// GenesisCheckpoint is the YAML shape of the `trusted_checkpoint` config
// block.
type GenesisCheckpoint struct {
	RollupHeight    uint64 `yaml:"rollup_height"`
	RollupStateRoot string `yaml:"rollup_state_root"` // hex-encoded, 32 bytes
	DAHeaderHash    string `yaml:"da_header_hash"`    // hex-encoded, 32 bytes
	DAHeight        uint64 `yaml:"da_height"`
}

// LoadGenesis reads and parses the genesis trusted checkpoint from a YAML
// file, substituting ${VAR} environment references first.
func LoadGenesis(path string) (proverdata.TrustedCheckpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return proverdata.TrustedCheckpoint{}, fmt.Errorf("read genesis file %s: %w", path, err)
	}

	expanded := substituteGenesisEnvVars(string(data))

	var doc struct {
		TrustedCheckpoint GenesisCheckpoint `yaml:"trusted_checkpoint"`
	}
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return proverdata.TrustedCheckpoint{}, fmt.Errorf("parse genesis file %s: %w", path, err)
	}

	root, err := decodeHash32(doc.TrustedCheckpoint.RollupStateRoot)
	if err != nil {
		return proverdata.TrustedCheckpoint{}, fmt.Errorf("genesis rollup_state_root: %w", err)
	}
	daHash, err := decodeHash32(doc.TrustedCheckpoint.DAHeaderHash)
	if err != nil {
		return proverdata.TrustedCheckpoint{}, fmt.Errorf("genesis da_header_hash: %w", err)
	}

	return proverdata.TrustedCheckpoint{
		RollupHeight:    proverdata.Height(doc.TrustedCheckpoint.RollupHeight),
		RollupStateRoot: root,
		DAHeaderHash:    daHash,
		DAHeight:        proverdata.Height(doc.TrustedCheckpoint.DAHeight),
	}, nil
}

func decodeHash32(hexStr string) (proverdata.Hash32, error) {
	var h proverdata.Hash32
	if hexStr == "" {
		return h, nil
	}
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return h, fmt.Errorf("not valid hex: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("expected %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func substituteGenesisEnvVars(content string) string {
	return genesisEnvVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := genesisEnvVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
