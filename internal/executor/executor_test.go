package executor

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"memearena/internal/config"
	"memearena/internal/gateway/swap"
	"memearena/internal/ledger"
	"memearena/internal/logger"
	"memearena/internal/types"
)

const (
	agentID = "openai/gpt-5"
	wallet  = "0x645AB91bE1e004A70C0af80e0238176C1aEA4217"
	token   = "0x59263161D3801d22564733C48EdFF68e38316994"
)

type fakeBalances struct {
	mu     sync.Mutex
	values []float64
	err    []error
	calls  int
}

func (f *fakeBalances) TokenBalance(ctx context.Context, w, t string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.err) && f.err[i] != nil {
		return 0, f.err[i]
	}
	if i >= len(f.values) {
		i = len(f.values) - 1
	}
	return f.values[i], nil
}

type MockRelay struct {
	mock.Mock
}

func (m *MockRelay) Submit(ctx context.Context, req swap.Request) (swap.Response, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(swap.Response), args.Error(1)
}

type MockSettler struct {
	mock.Mock
}

func (m *MockSettler) SettleSell(ctx context.Context, w, t string, preSellAmount float64, exitTS string) (*ledger.RealizedPnl, error) {
	args := m.Called(ctx, w, t, preSellAmount, exitTS)
	pnl, _ := args.Get(0).(*ledger.RealizedPnl)
	return pnl, args.Error(1)
}

type harness struct {
	exec    *Executor
	ledger  *ledger.Store
	relay   *MockRelay
	settler *MockSettler
	slept   []time.Duration
}

func newHarness(t *testing.T, balances *fakeBalances) *harness {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	book, err := config.NewWalletBook(config.WalletEntry{AgentID: agentID, Wallet: wallet})
	require.NoError(t, err)

	h := &harness{ledger: store, relay: new(MockRelay), settler: new(MockSettler)}
	cfg := Config{
		ChainID:      "BSC",
		AuthToken:    "secret",
		Fee:          3,
		Slippage:     50,
		AntiMEV:      true,
		BundleTip:    0.000005,
		SellPercent:  100,
		SettleDelay:  3 * time.Second,
		DeltaEpsilon: 1e-12,
	}
	h.exec = New(cfg, book, balances, h.relay, store, h.settler,
		WithSleep(func(d time.Duration) { h.slept = append(h.slept, d) }),
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
	)
	return h
}

func okResp() swap.Response   { return swap.Response{Success: true} }
func failResp() swap.Response { return swap.Response{Success: false, Message: "route not found"} }

func TestBuyCreditedIsRecorded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeBalances{values: []float64{0, 1000}})
	h.relay.On("Submit", mock.Anything, mock.MatchedBy(func(r swap.Request) bool {
		return r.Side == swap.SideBuy && r.Amount == 0.1 && r.Address == token &&
			r.ChainID == "BSC" && r.AuthToken == "secret" && r.Fee == 3 && r.Slippage == 50 &&
			r.AntiMEV && r.BundleTip == 0.000005 && r.DevSell == nil &&
			len(r.WalletAddresses) == 1 && r.WalletAddresses[0] == wallet
	})).Return(okResp(), nil).Once()

	res, err := h.exec.ExecuteBuy(ctx, token, 0.1, agentID)
	require.NoError(t, err)

	h.relay.AssertExpectations(t)
	assert.False(t, res.Ignored)
	assert.Equal(t, types.SideBuy, res.Side)
	assert.Equal(t, 1000.0, res.Delta)
	assert.Regexp(t, `^QT-1700000000000-buy-[0-9a-f-]{36}$`, res.RequestID)
	assert.Equal(t, []time.Duration{3 * time.Second}, h.slept)

	trades, err := h.ledger.TradesByWallet(ctx, wallet)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, ledger.SideBuy, trades[0].Side)
	require.NotNil(t, trades[0].AmountBNB)
	assert.Equal(t, 0.1, *trades[0].AmountBNB)

	open, err := h.ledger.ListOpenTokens(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x59263161d3801d22564733c48edff68e38316994"}, open)
}

func TestBuyIsRecordedOnlyWhenCredited(t *testing.T) {
	cases := []struct {
		name     string
		balances []float64
		resp     swap.Response
		credited bool
		reason   string
	}{
		{"success and delta", []float64{10, 20}, okResp(), true, ""},
		{"success without delta", []float64{10, 10}, okResp(), false, "no balance change"},
		{"success with noise", []float64{10, 10 + 1e-13}, okResp(), false, "no balance change"},
		{"failure with delta", []float64{10, 20}, failResp(), false, "swap failed"},
		{"failure without delta", []float64{10, 10}, failResp(), false, "swap failed"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, &fakeBalances{values: c.balances})
			h.relay.On("Submit", mock.Anything, mock.Anything).Return(c.resp, nil).Once()

			res, err := h.exec.Buy(ctx, token, 0.05, agentID)
			require.NoError(t, err)
			assert.Equal(t, !c.credited, res.Ignored)
			assert.Equal(t, c.reason, res.Reason)

			trades, err := h.ledger.TradesByWallet(ctx, wallet)
			require.NoError(t, err)
			open, err := h.ledger.ListOpenTokens(ctx, wallet)
			require.NoError(t, err)
			if c.credited {
				assert.Len(t, trades, 1)
				assert.Len(t, open, 1)
			} else {
				assert.Empty(t, trades)
				assert.Empty(t, open)
			}
		})
	}
}

func TestBuyRelayErrorIsHard(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeBalances{values: []float64{0, 1000}})
	h.relay.On("Submit", mock.Anything, mock.Anything).Return(swap.Response{}, errors.New("HTTP 502")).Once()

	_, err := h.exec.Buy(ctx, token, 0.1, agentID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
	assert.Empty(t, h.slept)

	trades, err := h.ledger.AllTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestBalanceReadErrors(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, &fakeBalances{values: []float64{0}, err: []error{errors.New("rpc down")}})
	_, err := h.exec.Buy(ctx, token, 0.1, agentID)
	require.Error(t, err)
	h.relay.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)

	h = newHarness(t, &fakeBalances{values: []float64{0, 0}, err: []error{nil, errors.New("rpc down")}})
	h.relay.On("Submit", mock.Anything, mock.Anything).Return(okResp(), nil).Once()
	res, err := h.exec.Buy(ctx, token, 0.1, agentID)
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Equal(t, "balance re-read failed", res.Reason)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeBalances{values: []float64{0}})

	_, err := h.exec.Buy(ctx, "0x123", 0.1, agentID)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = h.exec.Sell(ctx, "unknown", agentID)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = h.exec.Buy(ctx, token, 0, agentID)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = h.exec.Buy(ctx, token, -1, agentID)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = h.exec.Buy(ctx, token, 0.1, "nobody")
	assert.ErrorIs(t, err, ErrNoWallet)
	_, err = h.exec.Sell(ctx, token, "nobody")
	assert.ErrorIs(t, err, ErrNoWallet)
	h.relay.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestSellSettlesRealizedPnl(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeBalances{values: []float64{0, 5e6, 5e6, 0}})
	h.relay.On("Submit", mock.Anything, mock.MatchedBy(func(r swap.Request) bool { return r.Side == swap.SideBuy })).Return(okResp(), nil).Once()
	h.relay.On("Submit", mock.Anything, mock.MatchedBy(func(r swap.Request) bool {
		return r.Side == swap.SideSell && r.Amount == 100
	})).Return(okResp(), nil).Once()
	h.settler.On("SettleSell", mock.Anything, wallet, token, 5e6, mock.AnythingOfType("string")).
		Return(&ledger.RealizedPnl{PnlBNB: 0.01}, nil).Once()

	_, err := h.exec.Buy(ctx, token, 0.1, agentID)
	require.NoError(t, err)
	res, err := h.exec.Sell(ctx, token, agentID)
	require.NoError(t, err)

	h.relay.AssertExpectations(t)
	h.settler.AssertExpectations(t)
	assert.True(t, res.Settled)
	assert.Equal(t, -5e6, res.Delta)
	assert.Regexp(t, `^QT-\d+-sell-`, res.RequestID)

	trades, err := h.ledger.TradesByWallet(ctx, wallet)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, ledger.SideSell, trades[1].Side)
	exitTS := h.settler.Calls[0].Arguments.String(4)
	assert.Equal(t, trades[1].TS, exitTS)
}

func TestSellWithoutValuationStaysRecorded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeBalances{values: []float64{1000, 0}})
	h.relay.On("Submit", mock.Anything, mock.Anything).Return(okResp(), nil).Once()
	h.settler.On("SettleSell", mock.Anything, wallet, token, 1000.0, mock.Anything).Return(nil, nil).Once()

	res, err := h.exec.Sell(ctx, token, agentID)
	require.NoError(t, err)
	assert.False(t, res.Ignored)
	assert.False(t, res.Settled)

	trades, err := h.ledger.TradesByWallet(ctx, wallet)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestSellIgnoredWithoutBalanceChange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeBalances{values: []float64{1000, 1000}})
	h.relay.On("Submit", mock.Anything, mock.Anything).Return(okResp(), nil).Once()

	res, err := h.exec.Sell(ctx, token, agentID)
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	h.settler.AssertNotCalled(t, "SettleSell", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	trades, err := h.ledger.AllTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestCancelledContextDoesNotAbortVerification(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, &fakeBalances{values: []float64{0, 1000}})
	h.relay.On("Submit", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(okResp(), nil).Once()

	res, err := h.exec.Buy(ctx, token, 0.1, agentID)
	require.NoError(t, err)
	assert.False(t, res.Ignored)

	trades, err := h.ledger.AllTrades(context.Background())
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestSellRegistryRemovalFailureStillSettled(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(nil) })

	ctx := context.Background()
	h := newHarness(t, &fakeBalances{values: []float64{1000, 0}})
	h.relay.On("Submit", mock.Anything, mock.Anything).Return(okResp(), nil).Once()
	h.settler.On("SettleSell", mock.Anything, wallet, token, 1000.0, mock.Anything).
		Return(&ledger.RealizedPnl{PnlBNB: 0.02}, errors.New("disk full")).Once()

	res, err := h.exec.Sell(ctx, token, agentID)
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Contains(t, buf.String(), "PnL booked, open registry removal failed")
	assert.NotContains(t, buf.String(), "recorded without PnL")
}

func TestPairLocksAreReleased(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeBalances{values: []float64{0, 1000}})
	h.relay.On("Submit", mock.Anything, mock.Anything).Return(okResp(), nil).Once()

	_, err := h.exec.Buy(ctx, token, 0.1, agentID)
	require.NoError(t, err)

	h.exec.mu.Lock()
	defer h.exec.mu.Unlock()
	assert.Empty(t, h.exec.locks)
}

func TestPairLockSerializesHolders(t *testing.T) {
	h := newHarness(t, &fakeBalances{values: []float64{0}})
	unlock := h.exec.lock(wallet, token)

	acquired := make(chan struct{})
	go func() {
		release := h.exec.lock(wallet, token)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder entered while the pair was locked")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second holder never entered")
	}
	require.Eventually(t, func() bool {
		h.exec.mu.Lock()
		defer h.exec.mu.Unlock()
		return len(h.exec.locks) == 0
	}, time.Second, 5*time.Millisecond)
}
