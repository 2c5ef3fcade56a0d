package accountant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"memearena/internal/ledger"
	"memearena/internal/pricecache"
)

const (
	wallet = "0x645ab91be1e004a70c0af80e0238176c1aea4217"
	token  = "0x59263161d3801d22564733c48edff68e38316994"
	exitTS = "2025-10-01T12:00:05.000Z"
)

var testTime = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

type MockCaps struct {
	mock.Mock
}

func (m *MockCaps) MarketCap(ctx context.Context, address string) (float64, bool, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) InvestedForExit(ctx context.Context, w, t, ts string) (float64, error) {
	args := m.Called(ctx, w, t, ts)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockLedger) RecordRealizedPnl(ctx context.Context, ev ledger.RealizedPnl) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockLedger) RemoveOpenToken(ctx context.Context, w, t string) error {
	return m.Called(ctx, w, t).Error(0)
}

func pricedCache(price float64) *pricecache.Cache {
	c := pricecache.New()
	c.Set(price, testTime)
	return c
}

func TestSettleSellConvertsUSDMarketCap(t *testing.T) {
	ctx := context.Background()
	caps := new(MockCaps)
	led := new(MockLedger)
	caps.On("MarketCap", ctx, token).Return(600_000.0, true, nil)
	led.On("InvestedForExit", ctx, wallet, token, exitTS).Return(0.3, nil)
	led.On("RecordRealizedPnl", ctx, mock.AnythingOfType("ledger.RealizedPnl")).Return(nil)
	led.On("RemoveOpenToken", ctx, wallet, token).Return(nil)

	acc := New(caps, pricedCache(600), led, 1e9)
	ev, err := acc.SettleSell(ctx, wallet, token, 200_000_000, exitTS)
	require.NoError(t, err)
	require.NotNil(t, ev)

	// 600k USD / 600 = 1000 BNB cap; 20% of supply = 200 BNB.
	assert.InDelta(t, 200.0, ev.SoldBNB, 1e-9)
	assert.Equal(t, 0.3, ev.InvestedBNB)
	assert.Equal(t, ev.SoldBNB-ev.InvestedBNB, ev.PnlBNB)
	assert.InDelta(t, (200.0-0.3)/0.3*100, ev.PnlPct, 1e-6)
	led.AssertExpectations(t)
}

func TestSettleSellSmallCapIsAlreadyBNB(t *testing.T) {
	ctx := context.Background()
	caps := new(MockCaps)
	led := new(MockLedger)
	caps.On("MarketCap", ctx, token).Return(40.0, true, nil)
	led.On("InvestedForExit", ctx, wallet, token, exitTS).Return(0.0, nil)
	led.On("RecordRealizedPnl", ctx, mock.Anything).Return(nil)
	led.On("RemoveOpenToken", ctx, wallet, token).Return(nil)

	// No cached price is needed below the threshold.
	acc := New(caps, pricecache.New(), led, 1e9)
	ev, err := acc.SettleSell(ctx, wallet, token, 10_000_000, exitTS)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.InDelta(t, 0.4, ev.SoldBNB, 1e-12)
	assert.Zero(t, ev.PnlPct)
	assert.Equal(t, ev.SoldBNB, ev.PnlBNB)
}

func TestSettleSellSkipsWithoutCachedPrice(t *testing.T) {
	ctx := context.Background()
	caps := new(MockCaps)
	led := new(MockLedger)
	caps.On("MarketCap", ctx, token).Return(25_000.0, true, nil)

	acc := New(caps, pricecache.New(), led, 1e9)
	ev, err := acc.SettleSell(ctx, wallet, token, 1000, exitTS)
	require.NoError(t, err)
	assert.Nil(t, ev)
	led.AssertNotCalled(t, "RecordRealizedPnl", mock.Anything, mock.Anything)
	led.AssertNotCalled(t, "RemoveOpenToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestSettleSellSkipsWithoutMarketCap(t *testing.T) {
	ctx := context.Background()
	for name, ret := range map[string][]any{
		"not found":  {0.0, false, nil},
		"zero":       {0.0, true, nil},
		"lookup err": {0.0, false, errors.New("four.meme down")},
	} {
		t.Run(name, func(t *testing.T) {
			caps := new(MockCaps)
			led := new(MockLedger)
			caps.On("MarketCap", ctx, token).Return(ret...)
			ev, err := New(caps, pricedCache(600), led, 1e9).SettleSell(ctx, wallet, token, 1000, exitTS)
			require.NoError(t, err)
			assert.Nil(t, ev)
			led.AssertNotCalled(t, "RecordRealizedPnl", mock.Anything, mock.Anything)
		})
	}
}

func TestSettleSellPropagatesLedgerErrors(t *testing.T) {
	ctx := context.Background()
	caps := new(MockCaps)
	led := new(MockLedger)
	caps.On("MarketCap", ctx, token).Return(50.0, true, nil)
	led.On("InvestedForExit", ctx, wallet, token, exitTS).Return(0.0, errors.New("disk full"))

	_, err := New(caps, pricedCache(600), led, 1e9).SettleSell(ctx, wallet, token, 1000, exitTS)
	assert.ErrorContains(t, err, "disk full")
}

func TestRealizeIdentity(t *testing.T) {
	cases := [][2]float64{{0.3, 0.1}, {0.1, 0.3}, {1e-9, 0.7}, {123.456789, 0.0001}, {0, 0}}
	for _, c := range cases {
		ev := Realize(wallet, token, c[0], c[1])
		assert.Equal(t, c[0]-c[1], ev.PnlBNB)
		assert.Equal(t, c[0], ev.SoldBNB)
		assert.Equal(t, c[1], ev.InvestedBNB)
		if c[1] == 0 {
			assert.Zero(t, ev.PnlPct)
		}
	}
}
