package ledger

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"gorm.io/datatypes"

	"memearena/internal/pkg/convert"
	"memearena/internal/pkg/evmaddr"
)

// RealizedTotals aggregates settlements. PnlPct is rounded to 2 dp and is 0
// when nothing was invested.
type RealizedTotals struct {
	Wallet      string  `json:"wallet,omitempty"`
	PnlBNB      float64 `json:"pnl_bnb"`
	PnlPct      float64 `json:"pnl_pct"`
	InvestedBNB float64 `json:"invested_bnb"`
	SoldBNB     float64 `json:"sold_bnb"`
}

// Trade is the read form of a trades row.
type Trade struct {
	ID        int64    `json:"id"`
	Wallet    string   `json:"wallet"`
	Token     string   `json:"token_address"`
	Side      string   `json:"side"`
	AmountBNB *float64 `json:"amount_bnb"`
	Percent   *float64 `json:"percent"`
	TS        string   `json:"ts"`
}

// PositionSnapshot is the latest stored portfolio of an agent.
type PositionSnapshot struct {
	AgentID      string         `json:"ai_name"`
	TS           string         `json:"time"`
	Data         datatypes.JSON `json:"snapshot"`
	TotalBalance float64        `json:"totalBalance"`
}

type totalsRow struct {
	Wallet      string  `gorm:"column:wallet"`
	PnlBNB      float64 `gorm:"column:pnl_bnb"`
	InvestedBNB float64 `gorm:"column:invested_bnb"`
	SoldBNB     float64 `gorm:"column:sold_bnb"`
}

func (r totalsRow) totals() RealizedTotals {
	pct := 0.0
	if r.InvestedBNB > 0 {
		pct = convert.Round(r.PnlBNB/r.InvestedBNB*100, 2)
	}
	return RealizedTotals{
		Wallet:      r.Wallet,
		PnlBNB:      r.PnlBNB,
		PnlPct:      pct,
		InvestedBNB: r.InvestedBNB,
		SoldBNB:     r.SoldBNB,
	}
}

const totalsSelect = "wallet, COALESCE(SUM(pnl_bnb), 0) AS pnl_bnb, " +
	"COALESCE(SUM(invested_bnb), 0) AS invested_bnb, COALESCE(SUM(sold_bnb), 0) AS sold_bnb"

// RealizedTotalsByWallet sums one wallet's settlements. A wallet with none
// gets zero totals.
func (s *Store) RealizedTotalsByWallet(ctx context.Context, wallet string) (RealizedTotals, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return RealizedTotals{}, err
	}
	w := evmaddr.Normalize(wallet)
	var rows []totalsRow
	err = db.Model(&RealizedPnlModel{}).
		Select(totalsSelect).
		Where("wallet = ?", w).
		Group("wallet").
		Scan(&rows).Error
	if err != nil {
		return RealizedTotals{}, fmt.Errorf("realized totals for %s: %w", w, err)
	}
	if len(rows) == 0 {
		return RealizedTotals{Wallet: w}, nil
	}
	return rows[0].totals(), nil
}

// RealizedTotalsAll returns per-wallet totals ordered by wallet.
func (s *Store) RealizedTotalsAll(ctx context.Context) ([]RealizedTotals, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	var rows []totalsRow
	err = db.Model(&RealizedPnlModel{}).
		Select(totalsSelect).
		Group("wallet").
		Order("wallet").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("realized totals: %w", err)
	}
	out := make([]RealizedTotals, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.totals())
	}
	return out, nil
}

// RealizedByWallet lists a wallet's settlements oldest first.
func (s *Store) RealizedByWallet(ctx context.Context, wallet string) ([]RealizedPnl, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	var rows []RealizedPnlModel
	err = db.Where("wallet = ?", evmaddr.Normalize(wallet)).Order("ts ASC, id ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("realized pnl by wallet: %w", err)
	}
	out := make([]RealizedPnl, 0, len(rows))
	for _, r := range rows {
		out = append(out, RealizedPnl{
			Wallet:      r.Wallet,
			Token:       r.Token,
			PnlBNB:      r.PnlBNB,
			PnlPct:      r.PnlPct,
			SoldBNB:     r.SoldBNB,
			InvestedBNB: r.InvestedBNB,
			TS:          r.TS,
		})
	}
	return out, nil
}

// OpenCostBasisForWallet maps every open token of wallet to its open cost
// basis.
func (s *Store) OpenCostBasisForWallet(ctx context.Context, wallet string) (map[string]float64, error) {
	tokens, err := s.ListOpenTokens(ctx, wallet)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		invested, err := s.InvestedSinceLastFullExit(ctx, wallet, t)
		if err != nil {
			return nil, err
		}
		out[t] = invested
	}
	return out, nil
}

// OpenTokensAllWallets groups the open-position registry by wallet.
func (s *Store) OpenTokensAllWallets(ctx context.Context) (map[string][]string, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	var rows []WalletTokenModel
	if err := db.Order("wallet, token_address").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list open tokens: %w", err)
	}
	out := make(map[string][]string)
	for _, r := range rows {
		out[r.Wallet] = append(out[r.Wallet], r.Token)
	}
	return out, nil
}

// TradesByWallet lists a wallet's trades oldest first.
func (s *Store) TradesByWallet(ctx context.Context, wallet string) ([]Trade, error) {
	return s.trades(ctx, evmaddr.Normalize(wallet))
}

// AllTrades lists every trade oldest first.
func (s *Store) AllTrades(ctx context.Context) ([]Trade, error) {
	return s.trades(ctx, "")
}

func (s *Store) trades(ctx context.Context, wallet string) ([]Trade, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	q := db.Order("ts ASC, id ASC")
	if wallet != "" {
		q = q.Where("wallet = ?", wallet)
	}
	var rows []TradeModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	out := make([]Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, Trade(r))
	}
	return out, nil
}

// LatestPositions returns the newest snapshot of every agent, ordered by
// agent id.
func (s *Store) LatestPositions(ctx context.Context) ([]PositionSnapshot, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	latest := db.Model(&PositionSnapshotModel{}).Select("ai_name, MAX(ts) AS ts").Group("ai_name")
	var rows []PositionSnapshotModel
	err = db.Table("positions AS p").
		Select("p.id, p.ai_name, p.ts, p.data_json").
		Joins("JOIN (?) AS mx ON mx.ai_name = p.ai_name AND mx.ts = p.ts", latest).
		Order("p.ai_name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("latest positions: %w", err)
	}
	out := make([]PositionSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, PositionSnapshot{
			AgentID:      r.AgentID,
			TS:           r.TS,
			Data:         r.Data,
			TotalBalance: snapshotTotal(r.Data),
		})
	}
	return out, nil
}

// snapshotTotal adds the native amount and every position's BNB value.
func snapshotTotal(data []byte) float64 {
	total := 0.0
	gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
		if key.String() == "BNB" {
			total += value.Get("amount").Float()
		} else {
			total += value.Get("balance").Float()
		}
		return true
	})
	return convert.Round(total, 8)
}
