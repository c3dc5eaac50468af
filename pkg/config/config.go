// Copyright 2025 Certen Protocol
//
// Configuration loading for the prover service. Recognized options per
// the external interface contract: endpoints, namespace/sequencer
// authentication, range-pipeline batching, concurrency/retry budget, the
// gRPC listen address, and the publisher signer key. Grounded on
// pkg/config/config.go's env-var Load()/Validate() pattern.

package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProofMode selects the backend's proving mode.
type ProofMode string

const (
	ProofModeDefault    ProofMode = "default"
	ProofModeCompressed ProofMode = "compressed"
	ProofModeGroth16    ProofMode = "groth16"
)

// Config holds all runtime configuration for the prover service.
type Config struct {
	// Endpoints
	DARPC   string
	EVMRPC  string
	EVMWS   string

	// DA blob filtering / authentication
	Namespace           [29]byte
	SequencerPublicKey  [32]byte

	// Genesis trusted checkpoint, loaded separately via LoadGenesis (see
	// genesis.go) since it is a structured YAML block, not scalar env vars.
	GenesisPath string

	// Backend selection is a build-time feature flag; this field is loaded
	// but not read, and is not checked against the binary's build tag.
	// ProofMode is validated against the three known modes but is not
	// passed to the pipelines, which always prove with backend.ModeDefault.
	Backend   string
	ProofMode ProofMode

	// Range-aggregation batching
	RangeWindowSize    int
	RangeWindowTimeout time.Duration

	// Concurrency / retry
	MaxConcurrentProofs int
	RetryBudget         int
	RetryBaseDelay      time.Duration

	// gRPC server
	GRPCListenAddr string

	// Publisher signing key, hex-encoded Ed25519 private key.
	SignerKeyHex string

	// Message-inclusion pipeline's watched contracts; the contracts
	// themselves are treated as opaque, but the addresses to watch are an
	// operational necessity, hex-encoded.
	MailboxAddressHex     string
	DispatchTopicHex      string
	MerkleTreeContractHex string

	// Ambient operational knobs, not part of the external interface
	// contract proper but carried as standard service configuration.
	MetricsListenAddr   string
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds
	LogLevel            string
}

// Load reads configuration from environment variables. Call Validate()
// afterward before starting the service.
func Load() (*Config, error) {
	namespace, err := parseFixedHex32("NAMESPACE", 29)
	if err != nil {
		return nil, err
	}
	var ns [29]byte
	copy(ns[:], namespace)

	seqKey, err := parseFixedHex32("SEQUENCER_PUBLIC_KEY", 32)
	if err != nil {
		return nil, err
	}
	var sk [32]byte
	copy(sk[:], seqKey)

	cfg := &Config{
		DARPC:  getEnv("DA_RPC", ""),
		EVMRPC: getEnv("EVM_RPC", ""),
		EVMWS:  getEnv("EVM_WS", ""),

		Namespace:          ns,
		SequencerPublicKey: sk,

		GenesisPath: getEnv("GENESIS_PATH", "./genesis.yaml"),

		Backend:   getEnv("BACKEND", "sp1"),
		ProofMode: ProofMode(getEnv("PROOF_MODE", string(ProofModeDefault))),

		RangeWindowSize:    getEnvInt("RANGE_WINDOW_SIZE", 8),
		RangeWindowTimeout: getEnvDuration("RANGE_WINDOW_TIMEOUT", 30*time.Second),

		MaxConcurrentProofs: getEnvInt("MAX_CONCURRENT_PROOFS", 4),
		RetryBudget:         getEnvInt("RETRY_BUDGET", 5),
		RetryBaseDelay:      getEnvDuration("RETRY_BASE_DELAY", 500*time.Millisecond),

		GRPCListenAddr: getEnv("GRPC_LISTEN_ADDR", "0.0.0.0:7171"),

		SignerKeyHex: getEnv("SIGNER_KEY", ""),

		MailboxAddressHex:     getEnv("MAILBOX_ADDRESS", ""),
		DispatchTopicHex:      getEnv("DISPATCH_TOPIC", ""),
		MerkleTreeContractHex: getEnv("MERKLE_TREE_CONTRACT", ""),

		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", "0.0.0.0:9090"),

		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 10),
		DatabaseMinConns:    getEnvInt("DATABASE_MIN_CONNS", 2),
		DatabaseMaxIdleTime: getEnvInt("DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("DATABASE_MAX_LIFETIME", 3600),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks that all required configuration is present, raising a
// configuration-class error that prevents launch.
func (c *Config) Validate() error {
	var errs []string

	if c.DARPC == "" {
		errs = append(errs, "DA_RPC is required but not set")
	}
	if c.EVMRPC == "" {
		errs = append(errs, "EVM_RPC is required but not set")
	}
	if c.SignerKeyHex == "" {
		errs = append(errs, "SIGNER_KEY is required but not set")
	} else if _, err := hex.DecodeString(strings.TrimPrefix(c.SignerKeyHex, "0x")); err != nil {
		errs = append(errs, fmt.Sprintf("SIGNER_KEY is not valid hex: %v", err))
	}

	switch c.ProofMode {
	case ProofModeDefault, ProofModeCompressed, ProofModeGroth16:
	default:
		errs = append(errs, fmt.Sprintf("PROOF_MODE %q is not one of default|compressed|groth16", c.ProofMode))
	}

	if c.RangeWindowSize <= 0 {
		errs = append(errs, "RANGE_WINDOW_SIZE must be positive")
	}
	if c.MaxConcurrentProofs <= 0 {
		errs = append(errs, "MAX_CONCURRENT_PROOFS must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func parseFixedHex32(envVar string, wantLen int) ([]byte, error) {
	v := getEnv(envVar, "")
	if v == "" {
		return make([]byte, wantLen), nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(v, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%s is not valid hex: %w", envVar, err)
	}
	if len(raw) != wantLen {
		return nil, fmt.Errorf("%s must be %d bytes, got %d", envVar, wantLen, len(raw))
	}
	return raw, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
