package app

import (
	"context"
	"fmt"

	"memearena/internal/accountant"
	"memearena/internal/agent"
	"memearena/internal/config"
	"memearena/internal/decision"
	"memearena/internal/engine"
	"memearena/internal/executor"
	"memearena/internal/gateway/chain"
	"memearena/internal/gateway/fourmeme"
	"memearena/internal/gateway/moralis"
	"memearena/internal/gateway/swap"
	"memearena/internal/ledger"
	"memearena/internal/logger"
	"memearena/internal/portfolio"
	"memearena/internal/pricecache"
	"memearena/internal/store/transcript"
)

// Builder assembles an App. The constructor hooks let tests replace the
// network-facing pieces.
type Builder struct {
	cfg *config.Config

	chainFn  func(context.Context, config.ChainConfig) (*chain.Client, error)
	agentsFn func(config.AgentsConfig) ([]agent.Agent, error)
}

type BuilderOption func(*Builder)

// WithAgents replaces agent construction.
func WithAgents(fn func(config.AgentsConfig) ([]agent.Agent, error)) BuilderOption {
	return func(b *Builder) { b.agentsFn = fn }
}

func NewBuilder(cfg *config.Config, opts ...BuilderOption) *Builder {
	b := &Builder{
		cfg:      cfg,
		chainFn:  dialChain,
		agentsFn: buildAgents,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build constructs every component. On failure whatever was opened is
// closed again.
func (b *Builder) Build(ctx context.Context) (app *App, err error) {
	cfg := b.cfg
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	built := &App{cfg: cfg}
	defer func() {
		if err != nil {
			_ = built.Close()
		}
	}()

	trades, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	built.closers = append(built.closers, trades)

	transcripts, err := transcript.Open(cfg.Transcripts.Path)
	if err != nil {
		return nil, fmt.Errorf("open transcripts: %w", err)
	}
	built.closers = append(built.closers, transcripts)

	rpc, err := b.chainFn(ctx, cfg.Chain)
	if err != nil {
		return nil, err
	}
	built.closers = append(built.closers, closeFunc(rpc.Close))

	relay, err := swap.NewClient(cfg.Swap.URL, cfg.Swap.Timeout(), cfg.Swap.Retry.Policy())
	if err != nil {
		return nil, fmt.Errorf("swap relay: %w", err)
	}
	feed := fourmeme.NewClient(fourmeme.Config{
		BondingURL:     cfg.Discovery.BondingURL,
		GraduatedURL:   cfg.Discovery.GraduatedURL,
		QueryURL:       cfg.Discovery.QueryURL,
		Take:           cfg.Discovery.Take,
		GraduatedScale: cfg.Discovery.GraduatedScale,
		Timeout:        cfg.Discovery.Timeout(),
		Policy:         cfg.Discovery.Retry.Policy(),
	})
	holdings, err := moralis.NewClient(moralis.Config{
		BaseURL: cfg.Moralis.BaseURL,
		APIKey:  cfg.Moralis.APIKey,
		Chain:   cfg.Moralis.Chain,
		Native:  cfg.Chain.NativeAddress,
		Timeout: cfg.Moralis.Timeout(),
		Policy:  cfg.Moralis.Retry.Policy(),
	})
	if err != nil {
		return nil, fmt.Errorf("moralis: %w", err)
	}

	prices := pricecache.New()
	settler := accountant.New(feed, prices, trades, cfg.Chain.AssumedSupply)
	wallets := cfg.Wallets()
	exec := executor.New(executor.Config{
		ChainID:      cfg.Chain.ChainID,
		AuthToken:    cfg.Swap.AuthToken,
		Fee:          cfg.Swap.Fee,
		Slippage:     cfg.Swap.Slippage,
		AntiMEV:      cfg.Swap.AntiMEV,
		BundleTip:    cfg.Swap.BundleTip,
		SellPercent:  cfg.Swap.SellPercent,
		SettleDelay:  cfg.Swap.SettleDelay(),
		DeltaEpsilon: cfg.Swap.DeltaEpsilon,
	}, wallets, rpc, relay, trades, settler)

	reader := portfolio.NewReader(portfolio.Config{
		NativeAddress: cfg.Chain.NativeAddress,
		AssumedSupply: cfg.Chain.AssumedSupply,
	}, holdings, rpc, feed, trades, prices)

	agents, err := b.agentsFn(cfg.Agents)
	if err != nil {
		return nil, err
	}

	built.engine = engine.New(engine.Params{
		Feed:         feed,
		Agents:       agents,
		Wallets:      wallets,
		Portfolio:    reader,
		Dispatcher:   decision.NewDispatcher(exec),
		Transcripts:  transcripts,
		SystemPrompt: cfg.Agents.SystemPrompt,
	})
	built.loop, err = engine.NewLoop(built.engine, cfg.Loop.Schedule, cfg.Loop.Immediate())
	if err != nil {
		return nil, fmt.Errorf("loop schedule: %w", err)
	}
	built.Summary = newStartupSummary(cfg, agents)
	logger.Infof("arena ready: %d agents, %d wallets", len(agents), wallets.Len())
	return built, nil
}

func dialChain(ctx context.Context, cfg config.ChainConfig) (*chain.Client, error) {
	if t := cfg.Timeout(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	return chain.Dial(ctx, cfg.RPCURL, chain.WithNativeAddress(cfg.NativeAddress))
}

func buildAgents(cfg config.AgentsConfig) ([]agent.Agent, error) {
	models := cfg.ActiveModels()
	out := make([]agent.Agent, 0, len(models))
	for _, m := range models {
		a, err := agent.NewOpenAIAgent(agent.OpenAIConfig{
			ID:      m.ID,
			Model:   m.Model,
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

type closeFunc func()

func (f closeFunc) Close() error {
	f()
	return nil
}
