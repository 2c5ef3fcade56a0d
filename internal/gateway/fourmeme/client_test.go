package fourmeme

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memearena/internal/pkg/retry"
)

func tokenJSON(i int, mcap string) string {
	return fmt.Sprintf(`{"address":"0x%040d","name":"Token%d","tokenPrice":{"marketCap":%s,"tradingUsd":"12.5","trading":"3"}}`, i, i, mcap)
}

func listJSON(n int, mcap string) string {
	items := make([]string, n)
	for i := range items {
		items[i] = tokenJSON(i+1, mcap)
	}
	return `{"code":0,"data":[` + strings.Join(items, ",") + `]}`
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Config{
		BondingURL:     srv.URL + "/query?orderBy=BnTimeDesc",
		GraduatedURL:   srv.URL + "/query?orderBy=Hot",
		QueryURL:       srv.URL + "/query?orderBy=Query",
		Take:           10,
		GraduatedScale: 1100,
		Timeout:        time.Second,
		Policy:         retry.Policy{Attempts: 2, BaseDelay: time.Millisecond, Factor: 1},
	})
}

func TestFetchFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("orderBy") {
		case "BnTimeDesc":
			_, _ = w.Write([]byte(listJSON(12, `"5000.5"`)))
		case "Hot":
			_, _ = w.Write([]byte(listJSON(3, `"20"`)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	feed, err := newTestClient(srv).FetchFeed(context.Background())
	require.NoError(t, err)

	require.Len(t, feed.Bonding, 10)
	assert.Equal(t, "Token1", feed.Bonding[0].Name)
	require.NotNil(t, feed.Bonding[0].MarketCapUSD)
	assert.InDelta(t, 5000.5, *feed.Bonding[0].MarketCapUSD, 1e-9)
	assert.Nil(t, feed.Bonding[0].Stats)

	require.Len(t, feed.Graduated, 3)
	require.NotNil(t, feed.Graduated[0].MarketCapUSD)
	assert.InDelta(t, 22000, *feed.Graduated[0].MarketCapUSD, 1e-9)
	require.NotNil(t, feed.Graduated[0].Stats)
	require.NotNil(t, feed.Graduated[0].Stats.TradingUSD)
	assert.Equal(t, 12.5, *feed.Graduated[0].Stats.TradingUSD)
	assert.Nil(t, feed.Graduated[0].Stats.DayTrading)
}

func TestFetchFeedRejectsBadCode(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"code":500,"msg":"oops"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchFeed(context.Background())
	require.Error(t, err)
	assert.GreaterOrEqual(t, hits.Load(), int32(2))
}

func TestFetchFeedRejectsNonArrayData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{"list":[]}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchFeed(context.Background())
	assert.ErrorContains(t, err, "non-array")
}

func TestMarketCapPrefersExactAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Binance", r.URL.Query().Get("queryMode"))
		assert.Equal(t, "0xABC", r.URL.Query().Get("tokenName"))
		_, _ = w.Write([]byte(`{"code":0,"data":[
			{"address":"0xdef","tokenPrice":{"marketCap":"1"}},
			{"address":"0xabc","tokenPrice":{"marketCap":"42.5"}}]}`))
	}))
	defer srv.Close()

	mc, ok, err := newTestClient(srv).MarketCap(context.Background(), "0xABC")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42.5, mc)
}

func TestMarketCapFallsBackToFirstRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":[{"address":"0xdef","tokenPrice":{"marketCap":7}}]}`))
	}))
	defer srv.Close()

	mc, ok, err := newTestClient(srv).MarketCap(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7.0, mc)
}

func TestMarketCapMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tokenName") == "0xempty" {
			_, _ = w.Write([]byte(`{"code":0,"data":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":[{"address":"0xabc","tokenPrice":{}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, ok, err := c.MarketCap(context.Background(), "0xempty")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.MarketCap(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupReturnsName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":[{"address":"0xabc","name":"PEPE","tokenPrice":{"marketCap":"12000"}}]}`))
	}))
	defer srv.Close()

	rec, found, err := newTestClient(srv).Lookup(context.Background(), "0xABC")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, Record{Address: "0xabc", Name: "PEPE", MarketCap: 12000, HasMarketCap: true}, rec)
}
