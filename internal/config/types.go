package config

import (
	"time"

	"memearena/internal/pkg/retry"
)

// Config is the root configuration of memearena.
type Config struct {
	App         AppConfig        `toml:"app"`
	Chain       ChainConfig      `toml:"chain"`
	Swap        SwapConfig       `toml:"swap"`
	Discovery   DiscoveryConfig  `toml:"discovery"`
	Moralis     MoralisConfig    `toml:"moralis"`
	Ledger      LedgerConfig     `toml:"ledger"`
	Transcripts TranscriptConfig `toml:"transcripts"`
	Agents      AgentsConfig     `toml:"agents"`
	Loop        LoopConfig       `toml:"loop"`

	wallets *WalletBook
}

// Wallets returns the validated agent→wallet table.
func (c *Config) Wallets() *WalletBook {
	return c.wallets
}

type AppConfig struct {
	Env           string `toml:"env"`
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	LogPath       string `toml:"log_path"`
	TranscriptLog string `toml:"transcript_log_path"`
	EnvFile       string `toml:"env_file"`
}

// ChainConfig points at the BSC JSON-RPC node used for balance reads.
type ChainConfig struct {
	RPCURL         string  `toml:"rpc_url"`
	ChainID        string  `toml:"chain_id"`
	NativeAddress  string  `toml:"native_address"`
	AssumedSupply  float64 `toml:"assumed_supply"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

func (c ChainConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SwapConfig describes the custodial swap relay.
type SwapConfig struct {
	URL            string      `toml:"url"`
	AuthToken      string      `toml:"auth_token"`
	Fee            float64     `toml:"fee"`
	Slippage       float64     `toml:"slippage"`
	AntiMEV        bool        `toml:"anti_mev"`
	BundleTip      float64     `toml:"bundle_tip"`
	SellPercent    float64     `toml:"sell_percent"`
	SettleDelayMS  int         `toml:"settle_delay_ms"`
	DeltaEpsilon   float64     `toml:"delta_epsilon"`
	TimeoutSeconds int         `toml:"timeout_seconds"`
	Retry          RetryConfig `toml:"retry"`
}

func (s SwapConfig) SettleDelay() time.Duration {
	return time.Duration(s.SettleDelayMS) * time.Millisecond
}

func (s SwapConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RetryConfig is the file form of retry.Policy.
type RetryConfig struct {
	Attempts    int     `toml:"attempts"`
	BaseDelayMS int     `toml:"base_delay_ms"`
	Factor      float64 `toml:"factor"`
	Jitter      float64 `toml:"jitter"`
	MaxDelayMS  int     `toml:"max_delay_ms"`
}

func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		Attempts:  r.Attempts,
		BaseDelay: time.Duration(r.BaseDelayMS) * time.Millisecond,
		Factor:    r.Factor,
		Jitter:    r.Jitter,
		MaxDelay:  time.Duration(r.MaxDelayMS) * time.Millisecond,
	}
}

func retryConfigOf(p retry.Policy) RetryConfig {
	return RetryConfig{
		Attempts:    p.Attempts,
		BaseDelayMS: int(p.BaseDelay / time.Millisecond),
		Factor:      p.Factor,
		Jitter:      p.Jitter,
		MaxDelayMS:  int(p.MaxDelay / time.Millisecond),
	}
}

// DiscoveryConfig controls the four.meme token feed.
type DiscoveryConfig struct {
	BondingURL     string      `toml:"bonding_url"`
	GraduatedURL   string      `toml:"graduated_url"`
	QueryURL       string      `toml:"query_url"`
	Take           int         `toml:"take"`
	GraduatedScale float64     `toml:"graduated_scale"`
	TimeoutSeconds int         `toml:"timeout_seconds"`
	Retry          RetryConfig `toml:"retry"`
}

func (d DiscoveryConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

type MoralisConfig struct {
	BaseURL        string      `toml:"base_url"`
	APIKey         string      `toml:"api_key"`
	Chain          string      `toml:"chain"`
	TimeoutSeconds int         `toml:"timeout_seconds"`
	Retry          RetryConfig `toml:"retry"`
}

func (m MoralisConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

type LedgerConfig struct {
	Path string `toml:"path"`
}

type TranscriptConfig struct {
	Path string `toml:"path"`
}

// AgentsConfig lists the competing models and how to reach them.
type AgentsConfig struct {
	BaseURL        string       `toml:"base_url"`
	APIKey         string       `toml:"api_key"`
	TimeoutSeconds int          `toml:"timeout_seconds"`
	SystemPrompt   string       `toml:"system_prompt"`
	Models         []AgentModel `toml:"models"`
}

func (a AgentsConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// AgentModel is one competing agent. ID defaults to Model.
type AgentModel struct {
	ID      string `toml:"id"`
	Model   string `toml:"model"`
	Wallet  string `toml:"wallet"`
	Enabled *bool  `toml:"enabled"`
}

// Active reports whether the agent takes part in cycles. Unset means yes.
func (m AgentModel) Active() bool {
	return m.Enabled == nil || *m.Enabled
}

// ActiveModels returns enabled agents in configuration order.
func (a AgentsConfig) ActiveModels() []AgentModel {
	out := make([]AgentModel, 0, len(a.Models))
	for _, m := range a.Models {
		if m.Active() {
			out = append(out, m)
		}
	}
	return out
}

type LoopConfig struct {
	Schedule       string `toml:"schedule"`
	RunImmediately *bool  `toml:"run_immediately"`
}

func (l LoopConfig) Immediate() bool {
	return l.RunImmediately == nil || *l.RunImmediately
}
