package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"memearena/internal/pkg/evmaddr"
)

// validate rejects configurations the process cannot run with and builds
// the wallet book.
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Chain.validate(); err != nil {
		return err
	}
	if err := c.Swap.validate(); err != nil {
		return err
	}
	if err := c.Discovery.validate(); err != nil {
		return err
	}
	if err := c.Moralis.validate(); err != nil {
		return err
	}
	if err := c.Loop.validate(); err != nil {
		return err
	}
	book, err := c.Agents.validate()
	if err != nil {
		return err
	}
	c.wallets = book
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogFormat)) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %q", a.LogFormat)
	}
	return nil
}

func (c *ChainConfig) validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return fmt.Errorf("chain.rpc_url is required (or set BSC_RPC_URL)")
	}
	if !evmaddr.Valid(c.NativeAddress) {
		return fmt.Errorf("chain.native_address is not an EVM address: %q", c.NativeAddress)
	}
	if c.AssumedSupply <= 0 {
		return fmt.Errorf("chain.assumed_supply must be > 0")
	}
	return nil
}

func (s *SwapConfig) validate() error {
	if strings.TrimSpace(s.AuthToken) == "" {
		return fmt.Errorf("swap.auth_token is required (set AUTH_TOKEN in the env file)")
	}
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("swap.url cannot be empty")
	}
	if s.SellPercent <= 0 || s.SellPercent > 100 {
		return fmt.Errorf("swap.sell_percent must be in (0, 100]")
	}
	if s.DeltaEpsilon < 0 {
		return fmt.Errorf("swap.delta_epsilon must be >= 0")
	}
	return s.Retry.validate("swap.retry")
}

func (d *DiscoveryConfig) validate() error {
	if strings.TrimSpace(d.BondingURL) == "" || strings.TrimSpace(d.GraduatedURL) == "" {
		return fmt.Errorf("discovery.bonding_url and discovery.graduated_url are required")
	}
	if d.Take <= 0 {
		return fmt.Errorf("discovery.take must be > 0")
	}
	return d.Retry.validate("discovery.retry")
}

func (m *MoralisConfig) validate() error {
	if strings.TrimSpace(m.APIKey) == "" {
		return fmt.Errorf("moralis.api_key is required (set MORALIS_API_KEY in the env file)")
	}
	return m.Retry.validate("moralis.retry")
}

func (r RetryConfig) validate(prefix string) error {
	if r.Attempts <= 0 {
		return fmt.Errorf("%s.attempts must be > 0", prefix)
	}
	if r.Factor < 1 {
		return fmt.Errorf("%s.factor must be >= 1", prefix)
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		return fmt.Errorf("%s.jitter must be within [0, 1]", prefix)
	}
	return nil
}

func (l *LoopConfig) validate() error {
	if _, err := cron.ParseStandard(l.Schedule); err != nil {
		return fmt.Errorf("loop.schedule %q: %w", l.Schedule, err)
	}
	return nil
}

func (a *AgentsConfig) validate() (*WalletBook, error) {
	if strings.TrimSpace(a.APIKey) == "" {
		return nil, fmt.Errorf("agents.api_key is required (set OPENROUTER_API_KEY in the env file)")
	}
	models := a.ActiveModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("agents.models requires at least one enabled model")
	}
	entries := make([]WalletEntry, 0, len(models))
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		if m.Model == "" {
			return nil, fmt.Errorf("agents.models contains entry without model (id=%s)", m.ID)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("agents.models contains duplicate id %s", m.ID)
		}
		seen[m.ID] = true
		if m.Wallet == "" {
			continue
		}
		entries = append(entries, WalletEntry{AgentID: m.ID, Wallet: m.Wallet})
	}
	return NewWalletBook(entries...)
}
