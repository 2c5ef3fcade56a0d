package portfolio

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memearena/internal/gateway/fourmeme"
	"memearena/internal/gateway/moralis"
	"memearena/internal/ledger"
	"memearena/internal/pkg/evmaddr"
	"memearena/internal/pricecache"
	"memearena/internal/types"
)

const (
	wallet = "0x645ab91be1e004a70c0af80e0238176c1aea4217"
	tokenX = "0x1111111111111111111111111111111111111111"
	tokenY = "0x2222222222222222222222222222222222222222"
	tokenZ = "0x3333333333333333333333333333333333333333"
)

type fakeNative struct {
	holding moralis.NativeHolding
	err     error
}

func (f fakeNative) NativeHolding(context.Context, string) (moralis.NativeHolding, error) {
	return f.holding, f.err
}

type fakeTokens struct {
	balances map[string]float64
	names    map[string]string
}

func (f fakeTokens) TokenBalance(_ context.Context, _, token string) (float64, error) {
	b, ok := f.balances[token]
	if !ok {
		return 0, errors.New("no balance")
	}
	return b, nil
}

func (f fakeTokens) TokenName(_ context.Context, token string) string {
	return f.names[token]
}

type fakeLookup map[string]fourmeme.Record

func (f fakeLookup) Lookup(_ context.Context, address string) (fourmeme.Record, bool, error) {
	rec, ok := f[address]
	return rec, ok, nil
}

func setup(t *testing.T) (*ledger.Store, *pricecache.Cache) {
	t.Helper()
	ctx := context.Background()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.RecordBuy(ctx, wallet, tokenX, 0.1))
	require.NoError(t, store.AddOpenToken(ctx, wallet, tokenX))
	require.NoError(t, store.RecordBuy(ctx, wallet, tokenY, 0.2))
	require.NoError(t, store.AddOpenToken(ctx, wallet, tokenY))
	require.NoError(t, store.AddOpenToken(ctx, wallet, tokenZ))
	return store, pricecache.New()
}

func TestReadValuesOpenPositions(t *testing.T) {
	ctx := context.Background()
	store, prices := setup(t)
	r := NewReader(Config{AssumedSupply: 1e9},
		fakeNative{holding: moralis.NativeHolding{Balance: 1.234567891, USDPrice: 600}},
		fakeTokens{
			balances: map[string]float64{tokenX: 5e6, tokenY: 1e6, tokenZ: 1},
			names:    map[string]string{tokenY: "Chain Y"},
		},
		fakeLookup{
			tokenX: {Address: tokenX, Name: "PEPE", MarketCap: 30, HasMarketCap: true},
			tokenY: {Address: tokenY, MarketCap: 60000, HasMarketCap: true},
		},
		store, prices)

	p, err := r.Read(ctx, "gpt", wallet)
	require.NoError(t, err)

	require.NotNil(t, p.Native)
	assert.Equal(t, evmaddr.Native, p.Native.Address)
	assert.Equal(t, 1.23456789, p.Native.Amount)
	assert.Equal(t, []types.Holding{
		{Name: "PEPE", Address: tokenX, BalanceBNB: 0.15, PnLPct: 50},
		{Name: "Chain Y", Address: tokenY, BalanceBNB: 0.1, PnLPct: -50},
	}, p.Holdings)

	price, ok := prices.NativeUSD()
	assert.True(t, ok)
	assert.Equal(t, 600.0, price)

	snaps, err := store.LatestPositions(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "gpt", snaps[0].AgentID)
	assert.InDelta(t, 1.48456789, snaps[0].TotalBalance, 1e-9)
}

func TestReadWithoutCostBasisHasZeroPnl(t *testing.T) {
	ctx := context.Background()
	store, prices := setup(t)
	r := NewReader(Config{},
		fakeNative{holding: moralis.NativeHolding{Balance: 1, USDPrice: 500}},
		fakeTokens{balances: map[string]float64{tokenZ: 2e6}},
		fakeLookup{tokenZ: {Address: tokenZ, Name: "ZED", MarketCap: 50, HasMarketCap: true}},
		store, prices)

	p, err := r.Read(ctx, "gpt", wallet)
	require.NoError(t, err)
	require.Len(t, p.Holdings, 1)
	assert.Equal(t, types.Holding{Name: "ZED", Address: tokenZ, BalanceBNB: 0.1, PnLPct: 0}, p.Holdings[0])
}

func TestReadFailsWithoutNativePrice(t *testing.T) {
	store, prices := setup(t)
	r := NewReader(Config{}, fakeNative{err: errors.New("usd_price missing")},
		fakeTokens{}, fakeLookup{}, store, prices)

	_, err := r.Read(context.Background(), "gpt", wallet)
	require.Error(t, err)
	_, ok := prices.NativeUSD()
	assert.False(t, ok)
}

func TestReadRejectsInvalidWallet(t *testing.T) {
	store, prices := setup(t)
	r := NewReader(Config{}, fakeNative{}, fakeTokens{}, fakeLookup{}, store, prices)
	_, err := r.Read(context.Background(), "gpt", "0x123")
	assert.Error(t, err)
}
