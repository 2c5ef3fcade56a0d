// Package ledger persists trades, realized PnL, the open-position registry
// and portfolio snapshots in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"memearena/internal/pkg/evmaddr"
)

// ErrNotInitialized is returned by every operation on a nil or closed store.
var ErrNotInitialized = errors.New("ledger not initialized")

// TimeLayout is the fixed-width UTC format of every ts column. Rows sort
// chronologically by string comparison.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// RealizedPnl is the settlement written on a full exit.
type RealizedPnl struct {
	Wallet      string  `json:"wallet"`
	Token       string  `json:"token_address"`
	PnlBNB      float64 `json:"pnl_bnb"`
	PnlPct      float64 `json:"pnl_pct"`
	SoldBNB     float64 `json:"sold_bnb"`
	InvestedBNB float64 `json:"invested_bnb"`
	TS          string  `json:"ts,omitempty"`
}

type Store struct {
	db  *gorm.DB
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

type Option func(*Store)

// WithClock replaces the time source for testing.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates or opens the ledger database at path.
func Open(path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return NewFromDB(db, opts...)
}

// NewFromDB migrates the schema on an existing connection.
func NewFromDB(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNotInitialized
	}
	if err := db.AutoMigrate(
		&TradeModel{},
		&RealizedPnlModel{},
		&WalletTokenModel{},
		&PositionSnapshotModel{},
	); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db.WithContext(ctx), nil
}

// stamp returns a timestamp strictly later than every one handed out
// before, so rows written in the same millisecond still order.
func (s *Store) stamp() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now().UTC().Truncate(time.Millisecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Millisecond)
	}
	s.last = t
	return t.Format(TimeLayout)
}

func keys(wallet, token string) (string, string, error) {
	w, t := evmaddr.Normalize(wallet), evmaddr.Normalize(token)
	if w == "" || t == "" {
		return "", "", fmt.Errorf("wallet and token are required")
	}
	return w, t, nil
}

// RecordBuy appends a Buy row.
func (s *Store) RecordBuy(ctx context.Context, wallet, token string, amountBNB float64) error {
	db, err := s.ready(ctx)
	if err != nil {
		return err
	}
	w, t, err := keys(wallet, token)
	if err != nil {
		return err
	}
	if !(amountBNB > 0) || math.IsInf(amountBNB, 0) {
		return fmt.Errorf("buy amount must be a positive number, got %v", amountBNB)
	}
	row := TradeModel{Wallet: w, Token: t, Side: SideBuy, AmountBNB: &amountBNB, TS: s.stamp()}
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("record buy: %w", err)
	}
	return nil
}

// RecordSell appends a Sell row and returns its timestamp.
func (s *Store) RecordSell(ctx context.Context, wallet, token string, percent float64) (string, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return "", err
	}
	w, t, err := keys(wallet, token)
	if err != nil {
		return "", err
	}
	if !(percent > 0) || percent > 100 {
		return "", fmt.Errorf("sell percent must be within (0, 100], got %v", percent)
	}
	row := TradeModel{Wallet: w, Token: t, Side: SideSell, Percent: &percent, TS: s.stamp()}
	if err := db.Create(&row).Error; err != nil {
		return "", fmt.Errorf("record sell: %w", err)
	}
	return row.TS, nil
}

// RecordRealizedPnl appends a settlement. Figures are stored as given.
func (s *Store) RecordRealizedPnl(ctx context.Context, ev RealizedPnl) error {
	db, err := s.ready(ctx)
	if err != nil {
		return err
	}
	w, t, err := keys(ev.Wallet, ev.Token)
	if err != nil {
		return err
	}
	row := RealizedPnlModel{
		Wallet:      w,
		Token:       t,
		PnlBNB:      ev.PnlBNB,
		PnlPct:      ev.PnlPct,
		SoldBNB:     ev.SoldBNB,
		InvestedBNB: ev.InvestedBNB,
		TS:          s.stamp(),
	}
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("record realized pnl: %w", err)
	}
	return nil
}

// InvestedSinceLastFullExit is the open cost basis: the Buy total after the
// latest full exit, or over all time when there is none.
func (s *Store) InvestedSinceLastFullExit(ctx context.Context, wallet, token string) (float64, error) {
	return s.investedWindow(ctx, wallet, token, "")
}

// InvestedForExit is the cost basis closed by the full exit recorded at
// exitTS: Buys after the previous full exit and not later than exitTS.
func (s *Store) InvestedForExit(ctx context.Context, wallet, token, exitTS string) (float64, error) {
	if strings.TrimSpace(exitTS) == "" {
		return 0, fmt.Errorf("exit timestamp is required")
	}
	return s.investedWindow(ctx, wallet, token, exitTS)
}

// investedWindow sums Buys in (last full exit before upTo, upTo]. An empty
// upTo means no upper bound.
func (s *Store) investedWindow(ctx context.Context, wallet, token, upTo string) (float64, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}
	w, t, err := keys(wallet, token)
	if err != nil {
		return 0, err
	}
	exits := db.Model(&TradeModel{}).
		Select("MAX(ts)").
		Where("wallet = ? AND token_address = ? AND side = ? AND percent >= ?", w, t, SideSell, FullExitPercent)
	if upTo != "" {
		exits = exits.Where("ts < ?", upTo)
	}
	var lastExit sql.NullString
	if err := exits.Row().Scan(&lastExit); err != nil {
		return 0, fmt.Errorf("query last full exit: %w", err)
	}
	buys := db.Model(&TradeModel{}).
		Select("COALESCE(SUM(amount_bnb), 0)").
		Where("wallet = ? AND token_address = ? AND side = ?", w, t, SideBuy)
	if lastExit.Valid {
		buys = buys.Where("ts > ?", lastExit.String)
	}
	if upTo != "" {
		buys = buys.Where("ts <= ?", upTo)
	}
	var invested float64
	if err := buys.Row().Scan(&invested); err != nil {
		return 0, fmt.Errorf("sum buys: %w", err)
	}
	return invested, nil
}

// AddOpenToken marks (wallet, token) open. Adding twice is a no-op.
func (s *Store) AddOpenToken(ctx context.Context, wallet, token string) error {
	db, err := s.ready(ctx)
	if err != nil {
		return err
	}
	w, t, err := keys(wallet, token)
	if err != nil {
		return err
	}
	row := WalletTokenModel{Wallet: w, Token: t}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("add open token: %w", err)
	}
	return nil
}

func (s *Store) RemoveOpenToken(ctx context.Context, wallet, token string) error {
	db, err := s.ready(ctx)
	if err != nil {
		return err
	}
	w, t, err := keys(wallet, token)
	if err != nil {
		return err
	}
	if err := db.Where("wallet = ? AND token_address = ?", w, t).Delete(&WalletTokenModel{}).Error; err != nil {
		return fmt.Errorf("remove open token: %w", err)
	}
	return nil
}

// ListOpenTokens returns the wallet's open tokens sorted by address.
func (s *Store) ListOpenTokens(ctx context.Context, wallet string) ([]string, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	var tokens []string
	err = db.Model(&WalletTokenModel{}).
		Where("wallet = ?", evmaddr.Normalize(wallet)).
		Order("token_address").
		Pluck("token_address", &tokens).Error
	if err != nil {
		return nil, fmt.Errorf("list open tokens: %w", err)
	}
	return tokens, nil
}

// SavePositionSnapshot stores positions as JSON under agentID.
func (s *Store) SavePositionSnapshot(ctx context.Context, agentID string, positions any) error {
	db, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(agentID) == "" {
		return fmt.Errorf("agent id is required")
	}
	if positions == nil {
		positions = map[string]any{}
	}
	data, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("encode positions: %w", err)
	}
	row := PositionSnapshotModel{AgentID: agentID, TS: s.stamp(), Data: data}
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("save position snapshot: %w", err)
	}
	return nil
}
