// Package chain reads wallet balances from a BSC JSON-RPC node.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"memearena/internal/logger"
	"memearena/internal/pkg/evmaddr"
	"memearena/internal/pkg/retry"
)

const erc20ABIJSON = `[
{"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

const (
	defaultDecimals = 18
	nativeDecimals  = 18
)

// Caller is the subset of ethclient.Client the oracle needs.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client is the balance oracle. It is safe for concurrent use.
type Client struct {
	caller Caller
	erc20  abi.ABI
	native string
	policy retry.Policy
	close  func()
}

type Option func(*Client)

// WithRetryPolicy overrides the per-call retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithNativeAddress overrides the native pseudo-address.
func WithNativeAddress(addr string) Option {
	return func(c *Client) {
		if strings.TrimSpace(addr) != "" {
			c.native = evmaddr.Normalize(addr)
		}
	}
}

// Dial connects to the RPC endpoint.
func Dial(ctx context.Context, rpcURL string, opts ...Option) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connect to RPC %s: %w", rpcURL, err)
	}
	c, err := New(ec, opts...)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.close = ec.Close
	return c, nil
}

// New wraps an existing caller.
func New(caller Caller, opts ...Option) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse ERC-20 ABI: %w", err)
	}
	c := &Client{
		caller: caller,
		erc20:  parsed,
		native: evmaddr.Native,
		policy: retry.RPCPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Close() {
	if c.close != nil {
		c.close()
	}
}

// TokenBalance returns the wallet's holding of token in whole units. The
// native pseudo-address reads the account balance instead of a contract.
func (c *Client) TokenBalance(ctx context.Context, wallet, token string) (float64, error) {
	amount, err := c.balance(ctx, wallet, token)
	if err != nil {
		return 0, err
	}
	return amount.InexactFloat64(), nil
}

func (c *Client) balance(ctx context.Context, wallet, token string) (decimal.Decimal, error) {
	owner, err := evmaddr.Parse(wallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("wallet: %w", err)
	}
	if evmaddr.Normalize(token) == c.native {
		raw, err := retry.Value(ctx, c.policy, "balance "+owner.Hex(), func(ctx context.Context) (*big.Int, error) {
			return c.caller.BalanceAt(ctx, owner, nil)
		})
		if err != nil {
			return decimal.Zero, fmt.Errorf("native balance of %s: %w", owner.Hex(), err)
		}
		return toUnits(raw, nativeDecimals), nil
	}
	contract, err := evmaddr.Parse(token)
	if err != nil {
		return decimal.Zero, fmt.Errorf("token: %w", err)
	}
	var raw *big.Int
	if err := c.call(ctx, contract, "balanceOf", &raw, owner); err != nil {
		return decimal.Zero, err
	}
	return toUnits(raw, c.decimals(ctx, contract)), nil
}

// decimals falls back to 18 when the contract does not answer.
func (c *Client) decimals(ctx context.Context, contract common.Address) uint8 {
	var dec uint8
	if err := c.call(ctx, contract, "decimals", &dec); err != nil {
		logger.Debugf("decimals %s unavailable, assuming %d: %v", contract.Hex(), defaultDecimals, err)
		return defaultDecimals
	}
	return dec
}

// TokenName reads the ERC-20 name. Empty when the contract has none.
func (c *Client) TokenName(ctx context.Context, token string) string {
	contract, err := evmaddr.Parse(token)
	if err != nil {
		return ""
	}
	var name string
	if err := c.call(ctx, contract, "name", &name); err != nil {
		return ""
	}
	return name
}

func (c *Client) call(ctx context.Context, contract common.Address, method string, out any, args ...any) error {
	input, err := c.erc20.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	label := method + " " + contract.Hex()
	result, err := retry.Value(ctx, c.policy, label, func(ctx context.Context) ([]byte, error) {
		return c.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	})
	if err != nil {
		return fmt.Errorf("call %s: %w", label, err)
	}
	if len(result) == 0 {
		return fmt.Errorf("call %s: empty result", label)
	}
	if err := c.erc20.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("unpack %s: %w", label, err)
	}
	return nil
}

func toUnits(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}
