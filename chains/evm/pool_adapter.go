package evm

import (
	"context"
	"errors"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	chainerrors "github.com/pushchain/chainconn/errors"
	"github.com/pushchain/chainconn/rpcpool"
)

// Client wraps ethclient.Client to implement rpcpool.Client
type Client struct {
	client *ethclient.Client
	url    string
}

var _ rpcpool.Client = (*Client)(nil)

// GetBlockHeight returns the latest block number
func (c *Client) GetBlockHeight(ctx context.Context) (uint64, error) {
	return c.client.BlockNumber(ctx)
}

// GetBalance returns the latest balance of address in wei
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	if !ethcommon.IsHexAddress(address) {
		return nil, chainerrors.NewValidationError("", "invalid EVM address "+address)
	}
	return c.client.BalanceAt(ctx, ethcommon.HexToAddress(address), nil)
}

// GetNonce returns the pending nonce of address
func (c *Client) GetNonce(ctx context.Context, address string) (uint64, error) {
	if !ethcommon.IsHexAddress(address) {
		return 0, chainerrors.NewValidationError("", "invalid EVM address "+address)
	}
	return c.client.PendingNonceAt(ctx, ethcommon.HexToAddress(address))
}

// GetGasPrice returns the suggested gas price in wei
func (c *Client) GetGasPrice(ctx context.Context) (*big.Int, error) {
	return c.client.SuggestGasPrice(ctx)
}

// txpool rejections carry these generic server error codes
var rejectionCodes = map[int]bool{
	-32000: true,
	-32003: true,
	-32010: true,
}

// rejectionMessages are txpool and state checks that every honest node
// applies identically
var rejectionMessages = []string{
	"nonce too low",
	"nonce too high",
	"already known",
	"transaction underpriced",
	"replacement transaction underpriced",
	"insufficient funds",
	"intrinsic gas too low",
	"exceeds block gas limit",
	"max fee per gas less than block base fee",
	"invalid sender",
	"tx fee exceeds",
	"oversized data",
}

// SubmitRawTransaction decodes a signed RLP or typed transaction and broadcasts it.
// Only a node rejecting the transaction itself comes back as a validation
// error. Throttling, internal errors and unknown codes stay endpoint
// failures so the pool moves on.
func (c *Client) SubmitRawTransaction(ctx context.Context, raw []byte) (string, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", chainerrors.NewChainError(chainerrors.ErrCodeValidation, "", "undecodable raw transaction", err)
	}
	if err := c.client.SendTransaction(ctx, tx); err != nil {
		return "", classifySubmitError(err)
	}
	return tx.Hash().Hex(), nil
}

func classifySubmitError(err error) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) || chainerrors.IsRetryable(err) {
		return err
	}
	if !rejectionCodes[rpcErr.ErrorCode()] {
		return err
	}

	msg := strings.ToLower(rpcErr.Error())
	for _, phrase := range rejectionMessages {
		if strings.Contains(msg, phrase) {
			return chainerrors.NewChainError(chainerrors.ErrCodeValidation, "", "transaction rejected", err).
				WithContext("rpc_code", rpcErr.ErrorCode())
		}
	}
	return err
}

// ChainID returns the chain id reported by the endpoint
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.client.ChainID(ctx)
}

// URL returns the endpoint this client is bound to
func (c *Client) URL() string {
	return c.url
}

// Close closes the EVM client connection
func (c *Client) Close() error {
	c.client.Close()
	return nil
}

// NewClientFactory returns a ClientFactory for EVM endpoints
func NewClientFactory() rpcpool.ClientFactory {
	return func(url string) (rpcpool.Client, error) {
		ethClient, err := ethclient.Dial(url)
		if err != nil {
			return nil, err
		}
		return &Client{client: ethClient, url: url}, nil
	}
}
