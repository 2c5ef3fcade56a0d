// Package fourmeme reads the four.meme token discovery API.
package fourmeme

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"memearena/internal/pkg/circuit"
	"memearena/internal/pkg/retry"
)

// Token is one discovery feed entry. MarketCapUSD is nil when the API does
// not report one.
type Token struct {
	Address      string   `json:"address"`
	Name         string   `json:"name"`
	MarketCapUSD *float64 `json:"marketCapUSD"`
	Stats        *Stats   `json:"stats,omitempty"`
}

// Stats carries the trading volume fields reported for graduated tokens.
type Stats struct {
	TradingUSD *float64 `json:"tradingUsd"`
	Trading    *float64 `json:"trading"`
	DayTrading *float64 `json:"dayTrading"`
}

// Feed is the discovery snapshot handed to every agent in a cycle.
type Feed struct {
	Bonding   []Token `json:"Bonding"`
	Graduated []Token `json:"Graduated"`
}

type Config struct {
	BondingURL     string
	GraduatedURL   string
	QueryURL       string
	Take           int
	GraduatedScale float64
	Timeout        time.Duration
	Policy         retry.Policy
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *circuit.Breaker
}

func NewClient(cfg Config) *Client {
	if cfg.Take <= 0 {
		cfg.Take = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    circuit.New("four.meme", 3, 2*time.Minute),
	}
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// FetchFeed pulls both lists concurrently. Either list failing fails the
// feed.
func (c *Client) FetchFeed(ctx context.Context) (Feed, error) {
	var feed Feed
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := c.fetchList(gctx, c.cfg.BondingURL, 1, false)
		if err != nil {
			return fmt.Errorf("bonding list: %w", err)
		}
		feed.Bonding = list
		return nil
	})
	g.Go(func() error {
		list, err := c.fetchList(gctx, c.cfg.GraduatedURL, c.cfg.GraduatedScale, true)
		if err != nil {
			return fmt.Errorf("graduated list: %w", err)
		}
		feed.Graduated = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return Feed{}, err
	}
	return feed, nil
}

func (c *Client) fetchList(ctx context.Context, endpoint string, scale float64, withStats bool) ([]Token, error) {
	data, err := c.query(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	items := data.Array()
	if len(items) > c.cfg.Take {
		items = items[:c.cfg.Take]
	}
	out := make([]Token, 0, len(items))
	for _, item := range items {
		tok := Token{
			Address: item.Get("address").String(),
			Name:    item.Get("name").String(),
		}
		if mc, ok := number(item.Get("tokenPrice.marketCap")); ok {
			if scale > 0 {
				mc *= scale
			}
			tok.MarketCapUSD = &mc
		}
		if withStats {
			tok.Stats = &Stats{
				TradingUSD: optional(item.Get("tokenPrice.tradingUsd")),
				Trading:    optional(item.Get("tokenPrice.trading")),
				DayTrading: optional(item.Get("tokenPrice.dayTrading")),
			}
		}
		out = append(out, tok)
	}
	return out, nil
}

// Record is the query API's view of a single token.
type Record struct {
	Address   string
	Name      string
	MarketCap float64
	// HasMarketCap is false when tokenPrice.marketCap is missing or not a
	// number.
	HasMarketCap bool
}

// Lookup finds a token by address. The record whose address matches
// case-insensitively wins; otherwise the first record is used. found is
// false when the API returns no records.
func (c *Client) Lookup(ctx context.Context, address string) (Record, bool, error) {
	if strings.TrimSpace(c.cfg.QueryURL) == "" {
		return Record{}, false, fmt.Errorf("four.meme query url not configured")
	}
	endpoint := c.cfg.QueryURL + "&queryMode=Binance&tokenName=" + url.QueryEscape(address)
	data, err := c.query(ctx, endpoint)
	if err != nil {
		return Record{}, false, err
	}
	records := data.Array()
	if len(records) == 0 {
		return Record{}, false, nil
	}
	rec := records[0]
	for _, r := range records {
		if strings.EqualFold(r.Get("address").String(), address) {
			rec = r
			break
		}
	}
	out := Record{
		Address: rec.Get("address").String(),
		Name:    rec.Get("name").String(),
	}
	out.MarketCap, out.HasMarketCap = number(rec.Get("tokenPrice.marketCap"))
	return out, true, nil
}

// MarketCap returns the raw market cap of a token. found is false when
// the API has no record or no market cap for it.
func (c *Client) MarketCap(ctx context.Context, address string) (float64, bool, error) {
	rec, found, err := c.Lookup(ctx, address)
	if err != nil || !found {
		return 0, false, err
	}
	return rec.MarketCap, rec.HasMarketCap, nil
}

// query fetches endpoint and returns its "data" array.
func (c *Client) query(ctx context.Context, endpoint string) (gjson.Result, error) {
	var data gjson.Result
	err := c.breaker.Execute(func() error {
		var err error
		data, err = retry.Value(ctx, c.cfg.Policy, "four.meme", func(ctx context.Context) (gjson.Result, error) {
			return c.get(ctx, endpoint)
		})
		return err
	})
	return data, err
}

func (c *Client) get(ctx context.Context, endpoint string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("call four.meme: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read four.meme response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, fmt.Errorf("four.meme HTTP %s", resp.Status)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("four.meme returned invalid JSON")
	}
	parsed := gjson.ParseBytes(body)
	if code := parsed.Get("code"); !code.Exists() || code.Int() != 0 {
		return gjson.Result{}, fmt.Errorf("four.meme returned code %s", code.Raw)
	}
	data := parsed.Get("data")
	if !data.IsArray() {
		return gjson.Result{}, fmt.Errorf("four.meme returned non-array data")
	}
	return data, nil
}

func number(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Float(), true
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	default:
		return 0, false
	}
}

func optional(r gjson.Result) *float64 {
	if v, ok := number(r); ok {
		return &v
	}
	return nil
}
