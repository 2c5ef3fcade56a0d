// Package accountant settles realized PnL when a position is fully exited.
package accountant

import (
	"context"
	"fmt"

	"memearena/internal/ledger"
	"memearena/internal/logger"
)

// nativeCapThreshold separates market caps already quoted in BNB from USD
// figures.
const nativeCapThreshold = 100

// MarketCapSource looks up a token's market cap by address.
type MarketCapSource interface {
	MarketCap(ctx context.Context, address string) (float64, bool, error)
}

// PriceSource returns the last observed BNB/USD price.
type PriceSource interface {
	NativeUSD() (float64, bool)
}

// Ledger is the write side the accountant needs.
type Ledger interface {
	InvestedForExit(ctx context.Context, wallet, token, exitTS string) (float64, error)
	RecordRealizedPnl(ctx context.Context, ev ledger.RealizedPnl) error
	RemoveOpenToken(ctx context.Context, wallet, token string) error
}

type Accountant struct {
	caps          MarketCapSource
	prices        PriceSource
	ledger        Ledger
	assumedSupply float64
}

func New(caps MarketCapSource, prices PriceSource, l Ledger, assumedSupply float64) *Accountant {
	if assumedSupply <= 0 {
		assumedSupply = 1e9
	}
	return &Accountant{caps: caps, prices: prices, ledger: l, assumedSupply: assumedSupply}
}

// SettleSell values the exited holding and books the realized PnL against
// the cost basis closed by the sell recorded at exitTS. It returns nil with
// no error when no valuation is available; the sell stays recorded and the
// position stays in the open registry for reconciliation.
func (a *Accountant) SettleSell(ctx context.Context, wallet, token string, preSellAmount float64, exitTS string) (*ledger.RealizedPnl, error) {
	mcapBNB, ok := a.marketCapBNB(ctx, token)
	if !ok {
		return nil, nil
	}
	soldBNB := mcapBNB * preSellAmount / a.assumedSupply
	invested, err := a.ledger.InvestedForExit(ctx, wallet, token, exitTS)
	if err != nil {
		return nil, fmt.Errorf("cost basis for %s: %w", token, err)
	}
	ev := Realize(wallet, token, soldBNB, invested)
	if err := a.ledger.RecordRealizedPnl(ctx, ev); err != nil {
		return nil, err
	}
	if err := a.ledger.RemoveOpenToken(ctx, wallet, token); err != nil {
		return &ev, fmt.Errorf("close position %s: %w", token, err)
	}
	logger.Infof("realized %s [wallet: %s]: sold=%.8f invested=%.8f pnl=%.8f BNB (%.2f%%)",
		token, wallet, ev.SoldBNB, ev.InvestedBNB, ev.PnlBNB, ev.PnlPct)
	return &ev, nil
}

// Realize derives the settlement figures. PnlBNB is exactly sold-invested.
func Realize(wallet, token string, soldBNB, investedBNB float64) ledger.RealizedPnl {
	pnl := soldBNB - investedBNB
	pct := 0.0
	if investedBNB > 0 {
		pct = pnl / investedBNB * 100
	}
	return ledger.RealizedPnl{
		Wallet:      wallet,
		Token:       token,
		PnlBNB:      pnl,
		PnlPct:      pct,
		SoldBNB:     soldBNB,
		InvestedBNB: investedBNB,
	}
}

func (a *Accountant) marketCapBNB(ctx context.Context, token string) (float64, bool) {
	if a.caps == nil {
		return 0, false
	}
	mc, found, err := a.caps.MarketCap(ctx, token)
	if err != nil {
		logger.Warnf("settle %s: market cap lookup failed, PnL left unreconciled: %v", token, err)
		return 0, false
	}
	if !found || !(mc > 0) {
		logger.Warnf("settle %s: no market cap, PnL left unreconciled", token)
		return 0, false
	}
	if mc < nativeCapThreshold {
		return mc, true
	}
	price, ok := a.prices.NativeUSD()
	if !ok {
		logger.Warnf("settle %s: no cached BNB/USD price, PnL left unreconciled", token)
		return 0, false
	}
	return mc / price, true
}
