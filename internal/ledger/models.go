package ledger

import "gorm.io/datatypes"

const (
	SideBuy  = "Buy"
	SideSell = "Sell"

	// FullExitPercent is the smallest sell percent that counts as a full
	// exit when windowing cost basis.
	FullExitPercent = 99.999
)

// TradeModel is one confirmed swap. Rows are never updated.
type TradeModel struct {
	ID        int64    `gorm:"column:id;primaryKey;autoIncrement"`
	Wallet    string   `gorm:"column:wallet;not null;index:idx_trades_wallet_token,priority:1"`
	Token     string   `gorm:"column:token_address;not null;index:idx_trades_wallet_token,priority:2"`
	Side      string   `gorm:"column:side;not null;check:side IN ('Buy','Sell')"`
	AmountBNB *float64 `gorm:"column:amount_bnb"`
	Percent   *float64 `gorm:"column:percent"`
	TS        string   `gorm:"column:ts;not null;index:idx_trades_wallet_token,priority:3"`
}

func (TradeModel) TableName() string { return "trades" }

// RealizedPnlModel is one full-exit settlement.
type RealizedPnlModel struct {
	ID          int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Wallet      string  `gorm:"column:wallet;not null;index:idx_realized_pnl_wallet_token,priority:1"`
	Token       string  `gorm:"column:token_address;not null;index:idx_realized_pnl_wallet_token,priority:2"`
	PnlBNB      float64 `gorm:"column:pnl_bnb;not null"`
	PnlPct      float64 `gorm:"column:pnl_pct;not null"`
	SoldBNB     float64 `gorm:"column:sold_bnb;not null"`
	InvestedBNB float64 `gorm:"column:invested_bnb;not null"`
	TS          string  `gorm:"column:ts;not null;index:idx_realized_pnl_wallet_token,priority:3"`
}

func (RealizedPnlModel) TableName() string { return "realized_pnl" }

// WalletTokenModel marks an open position.
type WalletTokenModel struct {
	Wallet string `gorm:"column:wallet;primaryKey;index:idx_wallet_tokens_wallet"`
	Token  string `gorm:"column:token_address;primaryKey"`
}

func (WalletTokenModel) TableName() string { return "wallet_tokens" }

// PositionSnapshotModel is a portfolio read stored as a JSON document.
type PositionSnapshotModel struct {
	ID      int64          `gorm:"column:id;primaryKey;autoIncrement"`
	AgentID string         `gorm:"column:ai_name;not null;index:idx_positions_ai_ts,priority:1"`
	TS      string         `gorm:"column:ts;not null;index:idx_positions_ai_ts,priority:2"`
	Data    datatypes.JSON `gorm:"column:data_json;not null"`
}

func (PositionSnapshotModel) TableName() string { return "positions" }
