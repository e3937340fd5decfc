// Package chain wraps the Polygon JSON-RPC endpoint behind the small surface
// the watcher needs: head height, filtered event logs, and USDC balances.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// usdcDecimals is the USDC token precision on Polygon.
const usdcDecimals = 1e6

// balanceOfSelector is the 4-byte selector of ERC-20 balanceOf(address).
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// Client is a thin wrapper over go-ethereum's RPC client.
type Client struct {
	eth *ethclient.Client
}

// Dial connects to the JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	eth, err := ethclient.DialContext(dialCtx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	return &Client{eth: eth}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// HeadBlock returns the latest block height.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: head block: %w", err)
	}
	return head, nil
}

// FilterEventLogs returns the logs emitted by the given contracts for a
// single event topic over [from, to] inclusive.
func (c *Client) FilterEventLogs(ctx context.Context, from, to uint64, contracts []common.Address, topic common.Hash) ([]EventLog, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: contracts,
		Topics:    [][]common.Hash{{topic}},
	}

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chain: filter logs [%d, %d]: %w", from, to, err)
	}

	out := make([]EventLog, 0, len(logs))
	for _, l := range logs {
		out = append(out, EventLog{
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash,
			LogIndex:    int64(l.Index),
			Address:     l.Address,
			Topics:      l.Topics,
			Data:        l.Data,
		})
	}
	return out, nil
}

// USDCBalance reads the wallet's USDC balance via an eth_call to balanceOf,
// returned in whole USDC.
func (c *Client) USDCBalance(ctx context.Context, token, wallet common.Address) (float64, error) {
	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(wallet.Bytes(), 32)...)

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("chain: balanceOf %s: %w", wallet.Hex(), err)
	}

	units := new(big.Int).SetBytes(raw)
	balance, _ := new(big.Float).Quo(
		new(big.Float).SetInt(units),
		big.NewFloat(usdcDecimals),
	).Float64()
	return balance, nil
}

// IsRangeTooLarge reports whether the RPC error indicates the requested
// block range exceeded the provider's limit. Providers phrase this
// differently, so match loosely on the message.
func IsRangeTooLarge(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"block range",
		"range too large",
		"exceed maximum block range",
		"query returned more than",
		"response size exceeded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
