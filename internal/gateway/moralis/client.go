// Package moralis reads wallet holdings from the Moralis Web3 Data API.
package moralis

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"memearena/internal/pkg/circuit"
	"memearena/internal/pkg/evmaddr"
	"memearena/internal/pkg/retry"
)

// NativeHolding is the wallet's native currency position and its USD price.
type NativeHolding struct {
	Balance  float64
	USDPrice float64
}

type Config struct {
	BaseURL string
	APIKey  string
	Chain   string
	Native  string
	Timeout time.Duration
	Policy  retry.Policy
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *circuit.Breaker
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("moralis api key is required")
	}
	if cfg.Chain == "" {
		cfg.Chain = "bsc"
	}
	if cfg.Native == "" {
		cfg.Native = evmaddr.Native
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    circuit.New("moralis", 3, time.Minute),
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// NativeHolding reads the wallet token list and picks the native entry.
// A missing or zero USD price is an error since every valuation needs it.
func (c *Client) NativeHolding(ctx context.Context, wallet string) (NativeHolding, error) {
	if !evmaddr.Valid(wallet) {
		return NativeHolding{}, fmt.Errorf("invalid wallet address %q", wallet)
	}
	q := url.Values{}
	q.Set("chain", c.cfg.Chain)
	q.Set("exclude_spam", "false")
	q.Set("exclude_unverified_contracts", "false")
	q.Set("limit", "25")
	endpoint := fmt.Sprintf("%s/wallets/%s/tokens?%s", c.cfg.BaseURL, strings.TrimSpace(wallet), q.Encode())

	var body gjson.Result
	err := c.breaker.Execute(func() error {
		var err error
		body, err = retry.Value(ctx, c.cfg.Policy, "moralis tokens", func(ctx context.Context) (gjson.Result, error) {
			return c.get(ctx, endpoint)
		})
		return err
	})
	if err != nil {
		return NativeHolding{}, err
	}

	var native gjson.Result
	for _, item := range body.Get("result").Array() {
		if evmaddr.Normalize(item.Get("token_address").String()) == evmaddr.Normalize(c.cfg.Native) {
			native = item
			break
		}
	}
	if !native.Exists() {
		return NativeHolding{}, fmt.Errorf("moralis: no native entry for %s", wallet)
	}
	price := native.Get("usd_price").Float()
	if price <= 0 {
		return NativeHolding{}, fmt.Errorf("moralis: native usd_price missing for %s", wallet)
	}
	return NativeHolding{
		Balance:  fromWei(native.Get("balance").String(), 18),
		USDPrice: price,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.cfg.APIKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("call moralis: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read moralis response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, fmt.Errorf("moralis HTTP %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("moralis returned invalid JSON")
	}
	return gjson.ParseBytes(data), nil
}

// fromWei converts an amount in the smallest unit to whole units. Decimal
// strings are shifted the same way as integers.
func fromWei(raw string, decimals int32) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if n, ok := new(big.Int).SetString(raw, 10); ok {
		return decimal.NewFromBigInt(n, -decimals).InexactFloat64()
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0
	}
	return d.Shift(-decimals).InexactFloat64()
}
