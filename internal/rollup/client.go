// Copyright 2025 Certen Protocol
//
// Rollup RPC client — fetches EVM block headers, execution witnesses,
// EIP-1186 account+storage proofs, and event logs from the rollup's
// JSON-RPC/websocket endpoints. Grounded on pkg/ethereum/client.go (the
// ethclient.Dial-based client, common.Address/common.Hash usage) and
// pkg/execution/ethereum_contracts.go's log-filtering shape.

package rollup

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/ev-prover/internal/proverdata"
)

// AccountProof is an EIP-1186 account+storage proof rooted at a state root.
type AccountProof struct {
	Address      common.Address
	AccountProof [][]byte
	StorageProof map[common.Hash][][]byte
	StorageRoot  proverdata.Hash32
}

// Client wraps an ethclient.Client with the rollup-specific queries the
// witness assembler and message-inclusion pipeline need.
type Client struct {
	client  *ethclient.Client
	logger  *log.Logger
	timeout time.Duration
}

// NewClient dials the rollup's JSON-RPC endpoint.
func NewClient(rpcURL string, timeout time.Duration, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[Rollup] ", log.LstdFlags)
	}
	c, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rollup RPC %s: %w", rpcURL, err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{client: c, logger: logger, timeout: timeout}, nil
}

// BlockHeader fetches the rollup header at a given rollup height.
func (c *Client) BlockHeader(ctx context.Context, height proverdata.Height) (*types.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(uint64(height)))
	if err != nil {
		return nil, fmt.Errorf("fetch rollup header at %d: %w", height, err)
	}
	return header, nil
}

// StateRoot returns the state root committed in the header at height.
func (c *Client) StateRoot(ctx context.Context, height proverdata.Height) (proverdata.Hash32, error) {
	header, err := c.BlockHeader(ctx, height)
	if err != nil {
		return proverdata.Hash32{}, err
	}
	return proverdata.HashFromBytes(header.Root.Bytes()), nil
}

// ExecutionWitness fetches the stateless-execution witness for one rollup
// block. The concrete witness RPC method is backend-specific — the two
// formats are not interconvertible and each backend has its own RPC call;
// callers select which raw bytes to interpret by the active backend's
// witness variant.
func (c *Client) ExecutionWitness(ctx context.Context, height proverdata.Height) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var raw []byte
	err := c.client.Client().CallContext(ctx, &raw, "debug_executionWitness", fmt.Sprintf("0x%x", uint64(height)))
	if err != nil {
		return nil, fmt.Errorf("fetch execution witness at %d: %w", height, err)
	}
	return raw, nil
}

// AccountAndStorageProof fetches an EIP-1186 proof for address at the given
// storage keys, as of rollup height.
func (c *Client) AccountAndStorageProof(ctx context.Context, height proverdata.Height, address common.Address, storageKeys []common.Hash) (AccountProof, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.client.GetProof(ctx, address, hashesToStrings(storageKeys), new(big.Int).SetUint64(uint64(height)))
	if err != nil {
		return AccountProof{}, fmt.Errorf("fetch account proof for %s at %d: %w", address, height, err)
	}

	accountProof := make([][]byte, 0, len(result.AccountProof))
	for _, p := range result.AccountProof {
		accountProof = append(accountProof, []byte(p))
	}

	storageProofs := make(map[common.Hash][][]byte, len(result.StorageProof))
	for _, sp := range result.StorageProof {
		nodes := make([][]byte, 0, len(sp.Proof))
		for _, n := range sp.Proof {
			nodes = append(nodes, []byte(n))
		}
		storageProofs[common.HexToHash(sp.Key)] = nodes
	}

	return AccountProof{
		Address:      address,
		AccountProof: accountProof,
		StorageProof: storageProofs,
		StorageRoot:  proverdata.HashFromBytes(result.StorageHash.Bytes()),
	}, nil
}

// DispatchLogs fetches Hyperlane-style dispatch event logs emitted by
// contractAddr between fromBlock and toBlock inclusive.
func (c *Client) DispatchLogs(ctx context.Context, contractAddr common.Address, dispatchTopic common.Hash, fromBlock, toBlock proverdata.Height) ([]types.Log, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(uint64(fromBlock)),
		ToBlock:   new(big.Int).SetUint64(uint64(toBlock)),
		Addresses: []common.Address{contractAddr},
		Topics:    [][]common.Hash{{dispatchTopic}},
	}
	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter dispatch logs %d-%d: %w", fromBlock, toBlock, err)
	}
	return logs, nil
}

// Health reports whether the rollup RPC endpoint is reachable.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if _, err := c.client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("rollup health check failed: %w", err)
	}
	return nil
}

func hashesToStrings(hashes []common.Hash) []string {
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, h.Hex())
	}
	return out
}
