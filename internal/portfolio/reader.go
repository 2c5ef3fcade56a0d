// Package portfolio values an agent wallet's open positions in BNB.
package portfolio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"memearena/internal/gateway/fourmeme"
	"memearena/internal/gateway/moralis"
	"memearena/internal/logger"
	"memearena/internal/pkg/convert"
	"memearena/internal/pkg/evmaddr"
	"memearena/internal/types"
)

// nativeCapThreshold separates market caps already quoted in BNB from USD
// figures.
const nativeCapThreshold = 100

const maxParallelReads = 4

type NativeSource interface {
	NativeHolding(ctx context.Context, wallet string) (moralis.NativeHolding, error)
}

type TokenReader interface {
	TokenBalance(ctx context.Context, wallet, token string) (float64, error)
	TokenName(ctx context.Context, token string) string
}

type TokenLookup interface {
	Lookup(ctx context.Context, address string) (fourmeme.Record, bool, error)
}

type Ledger interface {
	ListOpenTokens(ctx context.Context, wallet string) ([]string, error)
	OpenCostBasisForWallet(ctx context.Context, wallet string) (map[string]float64, error)
	SavePositionSnapshot(ctx context.Context, agentID string, positions any) error
}

// PriceSink receives the BNB/USD price observed during a read.
type PriceSink interface {
	Set(price float64, at time.Time)
}

type Config struct {
	NativeAddress string
	AssumedSupply float64
}

type Reader struct {
	cfg    Config
	native NativeSource
	tokens TokenReader
	lookup TokenLookup
	ledger Ledger
	prices PriceSink
	now    func() time.Time
}

func NewReader(cfg Config, native NativeSource, tokens TokenReader, lookup TokenLookup, l Ledger, prices PriceSink) *Reader {
	if cfg.AssumedSupply <= 0 {
		cfg.AssumedSupply = 1e9
	}
	if cfg.NativeAddress == "" {
		cfg.NativeAddress = evmaddr.Native
	}
	return &Reader{
		cfg:    cfg,
		native: native,
		tokens: tokens,
		lookup: lookup,
		ledger: l,
		prices: prices,
		now:    time.Now,
	}
}

// Read values the wallet's native balance and every token in its open
// registry, stores the result as agentID's latest snapshot and returns it.
// Tokens without market data are left out.
func (r *Reader) Read(ctx context.Context, agentID, wallet string) (types.Portfolio, error) {
	if !evmaddr.Valid(wallet) {
		return types.Portfolio{}, fmt.Errorf("invalid wallet address %q", wallet)
	}
	registry, err := r.ledger.ListOpenTokens(ctx, wallet)
	if err != nil {
		return types.Portfolio{}, err
	}
	native, err := r.native.NativeHolding(ctx, wallet)
	if err != nil {
		return types.Portfolio{}, fmt.Errorf("native balance: %w", err)
	}
	r.prices.Set(native.USDPrice, r.now())

	basis, err := r.ledger.OpenCostBasisForWallet(ctx, wallet)
	if err != nil {
		return types.Portfolio{}, err
	}

	out := types.Portfolio{Native: &types.NativeBalance{
		Address: r.cfg.NativeAddress,
		Amount:  convert.Round(native.Balance, 8),
	}}

	valued := make([]*types.Holding, len(registry))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, token := range registry {
		i, token := i, token
		g.Go(func() error {
			valued[i] = r.value(gctx, wallet, token, native.USDPrice, basis[evmaddr.Normalize(token)])
			return nil
		})
	}
	_ = g.Wait()
	for _, h := range valued {
		if h != nil {
			out.Add(*h)
		}
	}

	r.logHoldings(wallet, out)
	if err := r.ledger.SavePositionSnapshot(ctx, agentID, out); err != nil {
		logger.Warnf("save positions for %s: %v", agentID, err)
	}
	return out, nil
}

func (r *Reader) value(ctx context.Context, wallet, token string, bnbUSD, invested float64) *types.Holding {
	amount, err := r.tokens.TokenBalance(ctx, wallet, token)
	if err != nil {
		logger.Warnf("positions: balance of %s on %s: %v", token, wallet, err)
		amount = 0
	}
	rec, found, err := r.lookup.Lookup(ctx, token)
	if err != nil {
		logger.Warnf("positions: market data for %s: %v", token, err)
		return nil
	}
	if !found || !rec.HasMarketCap || rec.MarketCap <= 0 {
		return nil
	}
	mcapBNB := rec.MarketCap
	if mcapBNB >= nativeCapThreshold {
		mcapBNB /= bnbUSD
	}
	balanceBNB := mcapBNB * amount / r.cfg.AssumedSupply

	pnlPct := 0.0
	if invested > 0 {
		pnlPct = (balanceBNB - invested) / invested * 100
	}

	name := strings.TrimSpace(rec.Name)
	if name == "" {
		name = strings.TrimSpace(r.tokens.TokenName(ctx, token))
	}
	if name == "" {
		name = token
	}
	return &types.Holding{
		Name:       name,
		Address:    token,
		BalanceBNB: convert.Round(balanceBNB, 8),
		PnLPct:     convert.Round(pnlPct, 2),
	}
}

func (r *Reader) logHoldings(wallet string, p types.Portfolio) {
	var b strings.Builder
	fmt.Fprintf(&b, "wallet %s holds:", wallet)
	if p.Native != nil {
		fmt.Fprintf(&b, "\n- BNB: %v (%s)", p.Native.Amount, p.Native.Address)
	}
	for _, h := range p.Holdings {
		fmt.Fprintf(&b, "\n- %s: ~%v BNB (addr: %s, PnL: %v%%)", h.Name, h.BalanceBNB, h.Address, h.PnLPct)
	}
	logger.InfoBlock(b.String())
}
