// Copyright 2025 Certen Protocol
//
// PublisherChain adapts the DA layer's CometBFT RPC client to the
// publisher.Chain contract: broadcast a signed zk-ISM update transaction,
// poll for its inclusion, and read a signer's next sequence number.
// Grounded on the same comethttp.HTTP client used for
// header/blob queries in client.go, using its BroadcastTxSync/Tx/ABCIQuery
// methods rather than a second RPC connection.

package da

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/certen/ev-prover/internal/publisher"
)

// PublisherChain wraps a Client for use as a publisher.Chain.
type PublisherChain struct {
	client *Client
}

// NewPublisherChain adapts client for the on-chain publisher.
func NewPublisherChain(client *Client) *PublisherChain {
	return &PublisherChain{client: client}
}

// Broadcast submits signedTxBytes to the DA layer's mempool and returns its
// hash. A CheckTx failure is reported as an error; the publisher treats
// this the same as any other submission failure (retried with a fresh
// sequence on the caller's next attempt).
func (c *PublisherChain) Broadcast(ctx context.Context, signedTxBytes []byte) (publisher.TxHash, error) {
	ctx, cancel := context.WithTimeout(ctx, c.client.timeout)
	defer cancel()

	result, err := c.client.rpc.BroadcastTxSync(ctx, cmttypes.Tx(signedTxBytes))
	if err != nil {
		return publisher.TxHash{}, fmt.Errorf("broadcast zk-ISM tx: %w", err)
	}
	if result.Code != 0 {
		return publisher.TxHash{}, fmt.Errorf("broadcast zk-ISM tx rejected: code %d: %s", result.Code, result.Log)
	}
	var hash publisher.TxHash
	copy(hash[:], result.Hash)
	return hash, nil
}

// TxIncluded reports whether hash has been committed to a DA block.
func (c *PublisherChain) TxIncluded(ctx context.Context, hash publisher.TxHash) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.client.timeout)
	defer cancel()

	_, err := c.client.rpc.Tx(ctx, hash[:], false)
	if err != nil {
		return false, nil // not found yet (or transiently unreachable); the poller retries until timeout
	}
	return true, nil
}

// NextSequence reads signer's current sequence number from the zk-ISM
// module's account-sequence query path.
func (c *PublisherChain) NextSequence(ctx context.Context, signer ed25519.PublicKey) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.client.timeout)
	defer cancel()

	path := fmt.Sprintf("/custom/zkism/sequence/%s", hex.EncodeToString(signer))
	result, err := c.client.rpc.ABCIQuery(ctx, path, nil)
	if err != nil {
		return 0, fmt.Errorf("query zk-ISM sequence: %w", err)
	}
	if result.Response.IsErr() {
		return 0, fmt.Errorf("query zk-ISM sequence: %s", result.Response.Log)
	}
	if len(result.Response.Value) != 8 {
		return 0, nil // module not yet initialized for this signer; sequence starts at zero
	}
	var seq uint64
	for _, b := range result.Response.Value {
		seq = seq<<8 | uint64(b)
	}
	return seq, nil
}
