package config

import (
	"strings"

	"memearena/internal/pkg/evmaddr"
	"memearena/internal/pkg/retry"
)

const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppLogFormat     = "text"
	defaultAppTranscriptLog = "data/logs/agents.log"
	defaultChainRPC         = "https://bsc-dataseed.binance.org/"
	defaultChainID          = "BSC"
	defaultAssumedSupply    = 1e9
	defaultChainTimeout     = 10
	defaultSwapURL          = "https://evm.bloom-ext.app/swap"
	defaultSwapFee          = 3
	defaultSwapSlippage     = 50
	defaultSwapAntiMEV      = true
	defaultSwapBundleTip    = 0.000005
	defaultSwapSellPercent  = 100
	defaultSwapSettleDelay  = 3000
	defaultSwapDeltaEps     = 1e-12
	defaultSwapTimeout      = 20
	defaultFeedBondingURL   = "https://four.meme/meme-api/v1/private/token/query?orderBy=BnTimeDesc&queryMode=Binance&tokenName=&listedPancake=true&pageIndex=1&pageSize=30&symbol=BNB&labels="
	defaultFeedGraduatedURL = "https://four.meme/meme-api/v1/private/token/query?orderBy=Hot&tokenName=&listedPancake=false&pageIndex=1&pageSize=30&symbol=&labels="
	defaultFeedQueryURL     = "https://four.meme/meme-api/v1/private/token/query?orderBy=Query&listedPancake=false&pageIndex=1&pageSize=30&symbol=&labels="
	defaultFeedTake         = 10
	defaultFeedGradScale    = 1100
	defaultFeedTimeout      = 15
	defaultMoralisBaseURL   = "https://deep-index.moralis.io/api/v2.2"
	defaultMoralisChain     = "bsc"
	defaultMoralisTimeout   = 15
	defaultLedgerPath       = "data/trades.db"
	defaultTranscriptPath   = "data/logs.db"
	defaultAgentsBaseURL    = "https://openrouter.ai/api/v1"
	defaultAgentsTimeout    = 120
	defaultLoopSchedule     = "@every 30s"
)

const defaultSystemPrompt = `You are trading fresh meme tokens on BSC with a small BNB wallet.
Pick tokens from the index using their numbers. Answer in this format:

commands:
buy(<index>, <amount in BNB>)
sell(<index>)
reason: <one short paragraph>

Only use indexes listed in "Token index" or in your portfolio. Selling always exits the whole position.`

// applyDefaults fills unset fields of every section.
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Chain.applyDefaults(keys)
	c.Swap.applyDefaults(keys)
	c.Discovery.applyDefaults(keys)
	c.Moralis.applyDefaults(keys)
	c.Ledger.applyDefaults(keys)
	c.Transcripts.applyDefaults(keys)
	c.Agents.applyDefaults(keys)
	c.Loop.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.transcript_log_path", &a.TranscriptLog, defaultAppTranscriptLog),
	)
}

func (c *ChainConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("chain.rpc_url", &c.RPCURL, defaultChainRPC),
		stringFieldDefault("chain.chain_id", &c.ChainID, defaultChainID),
		stringFieldDefault("chain.native_address", &c.NativeAddress, evmaddr.Native),
		floatFieldDefault("chain.assumed_supply", &c.AssumedSupply, defaultAssumedSupply),
		intFieldDefault("chain.timeout_seconds", &c.TimeoutSeconds, defaultChainTimeout),
	)
}

func (s *SwapConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("swap.url", &s.URL, defaultSwapURL),
		floatFieldDefault("swap.fee", &s.Fee, defaultSwapFee),
		floatFieldDefault("swap.slippage", &s.Slippage, defaultSwapSlippage),
		boolFieldDefault("swap.anti_mev", &s.AntiMEV, defaultSwapAntiMEV),
		floatFieldDefault("swap.bundle_tip", &s.BundleTip, defaultSwapBundleTip),
		floatFieldDefault("swap.sell_percent", &s.SellPercent, defaultSwapSellPercent),
		intFieldDefault("swap.settle_delay_ms", &s.SettleDelayMS, defaultSwapSettleDelay),
		floatFieldDefault("swap.delta_epsilon", &s.DeltaEpsilon, defaultSwapDeltaEps),
		intFieldDefault("swap.timeout_seconds", &s.TimeoutSeconds, defaultSwapTimeout),
	)
	s.Retry.applyDefaults(keys, "swap.retry", retry.SwapPolicy)
}

func (d *DiscoveryConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("discovery.bonding_url", &d.BondingURL, defaultFeedBondingURL),
		stringFieldDefault("discovery.graduated_url", &d.GraduatedURL, defaultFeedGraduatedURL),
		stringFieldDefault("discovery.query_url", &d.QueryURL, defaultFeedQueryURL),
		intFieldDefault("discovery.take", &d.Take, defaultFeedTake),
		floatFieldDefault("discovery.graduated_scale", &d.GraduatedScale, defaultFeedGradScale),
		intFieldDefault("discovery.timeout_seconds", &d.TimeoutSeconds, defaultFeedTimeout),
	)
	d.Retry.applyDefaults(keys, "discovery.retry", retry.FeedPolicy)
}

func (m *MoralisConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("moralis.base_url", &m.BaseURL, defaultMoralisBaseURL),
		stringFieldDefault("moralis.chain", &m.Chain, defaultMoralisChain),
		intFieldDefault("moralis.timeout_seconds", &m.TimeoutSeconds, defaultMoralisTimeout),
	)
	m.Retry.applyDefaults(keys, "moralis.retry", retry.FetchPolicy)
}

func (l *LedgerConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys, stringFieldDefault("ledger.path", &l.Path, defaultLedgerPath))
}

func (t *TranscriptConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys, stringFieldDefault("transcripts.path", &t.Path, defaultTranscriptPath))
}

func (a *AgentsConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("agents.base_url", &a.BaseURL, defaultAgentsBaseURL),
		intFieldDefault("agents.timeout_seconds", &a.TimeoutSeconds, defaultAgentsTimeout),
		stringFieldDefault("agents.system_prompt", &a.SystemPrompt, defaultSystemPrompt),
	)
	for i := range a.Models {
		m := &a.Models[i]
		m.Model = strings.TrimSpace(m.Model)
		m.Wallet = strings.TrimSpace(m.Wallet)
		if strings.TrimSpace(m.ID) == "" {
			m.ID = m.Model
		}
	}
}

func (l *LoopConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys, stringFieldDefault("loop.schedule", &l.Schedule, defaultLoopSchedule))
}

func (r *RetryConfig) applyDefaults(keys keySet, prefix string, def retry.Policy) {
	d := retryConfigOf(def)
	applyFieldDefaults(keys,
		intFieldDefault(prefix+".attempts", &r.Attempts, d.Attempts),
		intFieldDefault(prefix+".base_delay_ms", &r.BaseDelayMS, d.BaseDelayMS),
		floatFieldDefault(prefix+".factor", &r.Factor, d.Factor),
		floatFieldDefault(prefix+".jitter", &r.Jitter, d.Jitter),
	)
}

// keySet tracks the field paths explicitly present in the config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}

// fieldDefault is the default rule for a single field. A default is only
// applied when the key was not set explicitly and need() reports true.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

// boolFieldDefault always applies when the key is absent, since false is
// indistinguishable from unset after decoding.
func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:   key,
		apply: func() { *target = def },
	}
}
