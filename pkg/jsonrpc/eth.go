package jsonrpc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Ethereum JSON-RPC method names, wired up as constants alongside the
// generic Call path. Contract/ABI encoding stays out of scope; these are
// plain string method names plus thin helpers whose params/results are
// JSON primitives, not ABI types.
const (
	MethodBlockNumber           = "eth_blockNumber"
	MethodChainID               = "eth_chainId"
	MethodGasPrice              = "eth_gasPrice"
	MethodGetBalance            = "eth_getBalance"
	MethodGetTransactionReceipt = "eth_getTransactionReceipt"
	MethodSendRawTransaction    = "eth_sendRawTransaction"
	MethodEstimateGas           = "eth_estimateGas"
)

// BlockNumber calls eth_blockNumber and decodes the 0x-prefixed hex result.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	hex, err := Call[string](ctx, c, MethodBlockNumber, nil)
	if err != nil {
		return 0, err
	}
	return parseQuantity(hex)
}

// ChainID calls eth_chainId and decodes the 0x-prefixed hex result.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	hex, err := Call[string](ctx, c, MethodChainID, nil)
	if err != nil {
		return 0, err
	}
	return parseQuantity(hex)
}

// GasPrice calls eth_gasPrice and decodes the 0x-prefixed hex result.
func (c *Client) GasPrice(ctx context.Context) (uint64, error) {
	hex, err := Call[string](ctx, c, MethodGasPrice, nil)
	if err != nil {
		return 0, err
	}
	return parseQuantity(hex)
}

// SendRawTransaction submits a pre-signed, already RLP-encoded transaction
// (signing and encoding are out of scope for this core) and returns the
// transaction hash.
func (c *Client) SendRawTransaction(ctx context.Context, signedTxHex string) (string, error) {
	return Call[string](ctx, c, MethodSendRawTransaction, []string{signedTxHex})
}

func parseQuantity(hex string) (uint64, error) {
	hex = strings.TrimPrefix(hex, "0x")
	if hex == "" {
		return 0, fmt.Errorf("jsonrpc: empty quantity")
	}
	return strconv.ParseUint(hex, 16, 64)
}
