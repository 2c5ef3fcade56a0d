// Package swap submits buy/sell orders to the custodial swap relay.
package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"memearena/internal/pkg/retry"
)

type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Request mirrors the relay's /swap body.
type Request struct {
	ID              string   `json:"id"`
	ChainID         string   `json:"chain_id"`
	AuthToken       string   `json:"auth_token"`
	Address         string   `json:"address"`
	Side            Side     `json:"side"`
	Amount          float64  `json:"amount"`
	Fee             float64  `json:"fee"`
	Slippage        float64  `json:"slippage"`
	AntiMEV         bool     `json:"anti_mev"`
	WalletAddresses []string `json:"wallet_addresses"`
	DevSell         *float64 `json:"dev_sell"`
	BundleTip       float64  `json:"bundle_tip"`
}

// Response is the relay's answer. Success=false is a valid answer, not an
// error: the relay accepted the call but did not confirm the trade.
type Response struct {
	Success bool
	Message string
	Body    json.RawMessage
}

type Client struct {
	url        string
	httpClient *http.Client
	policy     retry.Policy
}

// NewClient builds a relay client. timeout bounds a single attempt.
func NewClient(url string, timeout time.Duration, policy retry.Policy) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("swap url cannot be empty")
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Submit posts the order, retrying transport failures and non-2xx answers.
func (c *Client) Submit(ctx context.Context, req Request) (Response, error) {
	buf, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode swap request: %w", err)
	}
	return retry.Value(ctx, c.policy, "swap "+req.ID, func(ctx context.Context) (Response, error) {
		return c.post(ctx, buf)
	})
}

func (c *Client) post(ctx context.Context, payload []byte) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, retry.Permanent(fmt.Errorf("build swap request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("call swap relay: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("read swap response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) == 0 {
			return Response{}, fmt.Errorf("swap relay error: %s", resp.Status)
		}
		return Response{}, fmt.Errorf("swap relay error (%s): %s", resp.Status, strings.TrimSpace(string(data)))
	}
	out := Response{Body: json.RawMessage(data)}
	if gjson.ValidBytes(data) {
		parsed := gjson.ParseBytes(data)
		out.Success = parsed.Get("success").Bool()
		out.Message = parsed.Get("message").String()
		if out.Message == "" {
			out.Message = parsed.Get("error").String()
		}
	}
	return out, nil
}
