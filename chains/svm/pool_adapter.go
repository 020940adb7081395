package svm

import (
	"context"
	"errors"
	"math/big"
	"sort"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	chainerrors "github.com/pushchain/chainconn/errors"
	"github.com/pushchain/chainconn/rpcpool"
)

// DefaultPriorityFee is returned when no recent block paid a priority fee,
// in micro-lamports per compute unit
const DefaultPriorityFee = 1000

// Client wraps rpc.Client to implement rpcpool.Client
type Client struct {
	client *rpc.Client
	url    string
}

var _ rpcpool.Client = (*Client)(nil)

// GetBlockHeight returns the confirmed block height
func (c *Client) GetBlockHeight(ctx context.Context) (uint64, error) {
	return c.client.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
}

// GetBalance returns the confirmed balance of address in lamports
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, chainerrors.NewChainError(chainerrors.ErrCodeValidation, "", "invalid Solana address "+address, err)
	}
	out, err := c.client.GetBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(out.Value), nil
}

// GetNonce is not supported: Solana accounts have no sequence number.
func (c *Client) GetNonce(ctx context.Context, address string) (uint64, error) {
	return 0, chainerrors.NewValidationError("", "nonce is not supported on SVM chains")
}

// GetGasPrice returns the median non-zero priority fee of recent blocks
// in micro-lamports per compute unit
func (c *Client) GetGasPrice(ctx context.Context) (*big.Int, error) {
	fees, err := c.client.GetRecentPrioritizationFees(ctx, nil)
	if err != nil {
		return nil, err
	}

	var paid []uint64
	for _, fee := range fees {
		if fee.PrioritizationFee > 0 {
			paid = append(paid, fee.PrioritizationFee)
		}
	}
	if len(paid) == 0 {
		return big.NewInt(DefaultPriorityFee), nil
	}
	return new(big.Int).SetUint64(calculateMedian(paid)), nil
}

// Preflight and signature failures. Node health (-32005), throttling and
// internal errors are not listed.
var rejectionCodes = map[int]bool{
	-32002: true, // transaction simulation failed
	-32003: true, // signature verification failed
	-32013: true, // signature length mismatch
	-32015: true, // unsupported transaction version
}

// SubmitRawTransaction decodes a signed wire transaction and broadcasts it
// with preflight checks. Only preflight rejections come back as validation
// errors; anything else counts against the endpoint.
func (c *Client) SubmitRawTransaction(ctx context.Context, raw []byte) (string, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", chainerrors.NewChainError(chainerrors.ErrCodeValidation, "", "undecodable raw transaction", err)
	}

	sig, err := c.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) && rejectionCodes[rpcErr.Code] && !chainerrors.IsRetryable(err) {
			return "", chainerrors.NewChainError(chainerrors.ErrCodeValidation, "", "transaction rejected", err).
				WithContext("rpc_code", rpcErr.Code)
		}
		return "", err
	}
	return sig.String(), nil
}

// Health returns the node's self-reported health ("ok" when caught up)
func (c *Client) Health(ctx context.Context) (string, error) {
	return c.client.GetHealth(ctx)
}

// GenesisHash returns the genesis hash of the cluster the endpoint serves
func (c *Client) GenesisHash(ctx context.Context) (string, error) {
	hash, err := c.client.GetGenesisHash(ctx)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// URL returns the endpoint this client is bound to
func (c *Client) URL() string {
	return c.url
}

// Close is a no-op: the Solana RPC client holds no connection of its own
// beyond the shared HTTP transport.
func (c *Client) Close() error {
	return nil
}

// NewClientFactory returns a ClientFactory for SVM endpoints
func NewClientFactory() rpcpool.ClientFactory {
	return func(url string) (rpcpool.Client, error) {
		return &Client{client: rpc.New(url), url: url}, nil
	}
}

// calculateMedian calculates the median of a slice of uint64 values
func calculateMedian(values []uint64) uint64 {
	if len(values) == 0 {
		return 0
	}

	sort.Slice(values, func(i, j int) bool {
		return values[i] < values[j]
	})

	n := len(values)
	if n%2 == 0 {
		lo, hi := values[n/2-1], values[n/2]
		return lo + (hi-lo)/2
	}
	return values[n/2]
}
