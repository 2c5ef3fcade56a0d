// Package executor submits buy and sell orders to the swap relay and books
// them only once the wallet balance shows they happened.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"memearena/internal/gateway/swap"
	"memearena/internal/ledger"
	"memearena/internal/logger"
	"memearena/internal/pkg/evmaddr"
	"memearena/internal/types"
)

var (
	ErrInvalidAddress = errors.New("invalid token address")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNoWallet       = errors.New("no wallet mapped for agent")
)

const (
	reasonSwapFailed  = "swap failed"
	reasonNoChange    = "no balance change"
	reasonAfterFailed = "balance re-read failed"
)

// BalanceReader reads a wallet's balance of a token in whole units.
type BalanceReader interface {
	TokenBalance(ctx context.Context, wallet, token string) (float64, error)
}

// Relay submits orders to the swap endpoint.
type Relay interface {
	Submit(ctx context.Context, req swap.Request) (swap.Response, error)
}

// Ledger is the write side used for credited trades.
type Ledger interface {
	RecordBuy(ctx context.Context, wallet, token string, amountBNB float64) error
	RecordSell(ctx context.Context, wallet, token string, percent float64) (string, error)
	AddOpenToken(ctx context.Context, wallet, token string) error
}

// Settler books realized PnL for a recorded full exit.
type Settler interface {
	SettleSell(ctx context.Context, wallet, token string, preSellAmount float64, exitTS string) (*ledger.RealizedPnl, error)
}

// Wallets maps agents to their wallets.
type Wallets interface {
	Lookup(agentID string) (string, bool)
}

// Config holds the fixed order parameters.
type Config struct {
	ChainID      string
	AuthToken    string
	Fee          float64
	Slippage     float64
	AntiMEV      bool
	BundleTip    float64
	SellPercent  float64
	SettleDelay  time.Duration
	DeltaEpsilon float64
}

type Executor struct {
	cfg      Config
	wallets  Wallets
	balances BalanceReader
	relay    Relay
	ledger   Ledger
	settler  Settler

	sleep func(time.Duration)
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*pairLock
}

// pairLock is dropped from the map once nobody holds or waits on it.
type pairLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*Executor)

// WithSleep replaces the settlement wait, for tests.
func WithSleep(fn func(time.Duration)) Option {
	return func(e *Executor) { e.sleep = fn }
}

// WithClock replaces the clock used in request ids.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func New(cfg Config, wallets Wallets, balances BalanceReader, relay Relay, l Ledger, settler Settler, opts ...Option) *Executor {
	if cfg.SellPercent <= 0 {
		cfg.SellPercent = 100
	}
	e := &Executor{
		cfg:      cfg,
		wallets:  wallets,
		balances: balances,
		relay:    relay,
		ledger:   l,
		settler:  settler,
		sleep:    time.Sleep,
		now:      time.Now,
		locks:    make(map[string]*pairLock),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteBuy implements decision.Executor.
func (e *Executor) ExecuteBuy(ctx context.Context, token string, amountBNB float64, agentID string) (types.TradeResult, error) {
	return e.Buy(ctx, token, amountBNB, agentID)
}

// ExecuteSell implements decision.Executor.
func (e *Executor) ExecuteSell(ctx context.Context, token, agentID string) (types.TradeResult, error) {
	return e.Sell(ctx, token, agentID)
}

// Buy spends amountBNB on token from the agent's wallet. The buy is booked
// only when the relay reports success and the token balance moved.
func (e *Executor) Buy(ctx context.Context, token string, amountBNB float64, agentID string) (types.TradeResult, error) {
	if math.IsNaN(amountBNB) || math.IsInf(amountBNB, 0) || amountBNB <= 0 {
		return types.TradeResult{}, fmt.Errorf("%w: %v", ErrInvalidAmount, amountBNB)
	}
	res, err := e.swap(ctx, types.SideBuy, token, amountBNB, agentID)
	if err != nil || res.Ignored {
		return res, err
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.ledger.RecordBuy(ctx, res.Wallet, res.Token, amountBNB); err != nil {
		return res, fmt.Errorf("record buy %s: %w", res.RequestID, err)
	}
	if err := e.ledger.AddOpenToken(ctx, res.Wallet, res.Token); err != nil {
		return res, fmt.Errorf("register open token %s: %w", res.Token, err)
	}
	return res, nil
}

// Sell exits the agent's whole position in token. A credited sell is
// booked, then settled for realized PnL when a valuation is available.
func (e *Executor) Sell(ctx context.Context, token, agentID string) (types.TradeResult, error) {
	res, err := e.swap(ctx, types.SideSell, token, e.cfg.SellPercent, agentID)
	if err != nil || res.Ignored {
		return res, err
	}
	ctx = context.WithoutCancel(ctx)
	exitTS, err := e.ledger.RecordSell(ctx, res.Wallet, res.Token, e.cfg.SellPercent)
	if err != nil {
		return res, fmt.Errorf("record sell %s: %w", res.RequestID, err)
	}
	if e.cfg.SellPercent < ledger.FullExitPercent || e.settler == nil {
		return res, nil
	}
	pnl, err := e.settler.SettleSell(ctx, res.Wallet, res.Token, res.Before, exitTS)
	switch {
	case err != nil && pnl != nil:
		logger.Warnf("SELL %s [wallet: %s] PnL booked, open registry removal failed: %v", res.Token, res.Wallet, err)
		res.Settled = true
	case err != nil:
		logger.Warnf("SELL %s [wallet: %s] recorded without PnL: %v", res.Token, res.Wallet, err)
	case pnl == nil:
		logger.Warnf("SELL %s [wallet: %s] recorded without PnL, left open for reconciliation", res.Token, res.Wallet)
	default:
		res.Settled = true
	}
	return res, nil
}

// swap runs the shared part of both sides: balance before, submission,
// settlement wait, balance after. The result is marked ignored unless the
// relay reported success and the balance moved.
func (e *Executor) swap(ctx context.Context, side types.Side, token string, amount float64, agentID string) (types.TradeResult, error) {
	token = strings.TrimSpace(token)
	if !evmaddr.Valid(token) {
		return types.TradeResult{}, fmt.Errorf("%w: %q", ErrInvalidAddress, token)
	}
	wallet, ok := e.wallets.Lookup(agentID)
	if !ok || !evmaddr.Valid(wallet) {
		return types.TradeResult{}, fmt.Errorf("%w: %s", ErrNoWallet, agentID)
	}

	unlock := e.lock(wallet, token)
	defer unlock()

	res := types.TradeResult{
		Side:      side,
		AgentID:   agentID,
		Wallet:    wallet,
		Token:     token,
		RequestID: e.requestID(side),
	}
	if side == types.SideBuy {
		res.AmountBNB = amount
	}

	before, err := e.balances.TokenBalance(ctx, wallet, token)
	if err != nil {
		return res, fmt.Errorf("read balance before %s: %w", res.RequestID, err)
	}
	res.Before = before

	req := swap.Request{
		ID:              res.RequestID,
		ChainID:         e.cfg.ChainID,
		AuthToken:       e.cfg.AuthToken,
		Address:         token,
		Side:            swap.Side(side),
		Amount:          amount,
		Fee:             e.cfg.Fee,
		Slippage:        e.cfg.Slippage,
		AntiMEV:         e.cfg.AntiMEV,
		WalletAddresses: []string{wallet},
		BundleTip:       e.cfg.BundleTip,
	}
	if side == types.SideBuy {
		logger.Infof("BUY %v BNB of %s [agent: %s] [wallet: %s] [id: %s]", amount, token, agentID, wallet, res.RequestID)
	} else {
		logger.Infof("SELL %v%% of %s [agent: %s] [wallet: %s] [id: %s]", amount, token, agentID, wallet, res.RequestID)
	}
	resp, err := e.relay.Submit(ctx, req)
	if err != nil {
		return res, fmt.Errorf("submit %s: %w", res.RequestID, err)
	}

	// The order is out; verification runs to completion.
	ctx = context.WithoutCancel(ctx)
	if e.cfg.SettleDelay > 0 {
		e.sleep(e.cfg.SettleDelay)
	}
	after, err := e.balances.TokenBalance(ctx, wallet, token)
	if err != nil {
		logger.Warnf("%s balance %s [wallet: %s] re-read failed: %v", side, token, wallet, err)
		return e.ignore(res, reasonAfterFailed), nil
	}
	res.After = after
	res.Delta = after - before
	logger.Infof("%s balance %s [wallet: %s] before=%v after=%v delta=%v", side, token, wallet, before, after, res.Delta)

	if !resp.Success {
		return e.ignore(res, reasonSwapFailed), nil
	}
	if res.Delta == 0 || math.Abs(res.Delta) < e.cfg.DeltaEpsilon {
		return e.ignore(res, reasonNoChange), nil
	}
	return res, nil
}

func (e *Executor) ignore(res types.TradeResult, reason string) types.TradeResult {
	res.Ignored = true
	res.Reason = reason
	logger.Warnf("%s ignored: %s for %s [wallet: %s] [id: %s]", res.Side, reason, res.Token, res.Wallet, res.RequestID)
	return res
}

func (e *Executor) requestID(side types.Side) string {
	return fmt.Sprintf("QT-%d-%s-%s", e.now().UnixMilli(), strings.ToLower(string(side)), uuid.NewString())
}

// lock serializes trades on one (wallet, token) pair so balance deltas of
// concurrent orders do not overlap.
func (e *Executor) lock(wallet, token string) func() {
	key := evmaddr.Normalize(wallet) + "/" + evmaddr.Normalize(token)
	e.mu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &pairLock{}
		e.locks[key] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, key)
		}
		e.mu.Unlock()
	}
}
