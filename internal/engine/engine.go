// Package engine runs decision cycles: one discovery snapshot is shown to
// every agent, and each agent's answer is turned into trades.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"memearena/internal/agent"
	"memearena/internal/decision"
	"memearena/internal/gateway/fourmeme"
	"memearena/internal/logger"
	"memearena/internal/pkg/text"
	"memearena/internal/types"
)

type FeedSource interface {
	FetchFeed(ctx context.Context) (fourmeme.Feed, error)
}

type PortfolioReader interface {
	Read(ctx context.Context, agentID, wallet string) (types.Portfolio, error)
}

type Wallets interface {
	Lookup(agentID string) (string, bool)
}

// TranscriptSink stores raw agent answers.
type TranscriptSink interface {
	Save(ctx context.Context, agentID, message string) error
}

type Params struct {
	Feed         FeedSource
	Agents       []agent.Agent
	Wallets      Wallets
	Portfolio    PortfolioReader
	Dispatcher   *decision.Dispatcher
	Transcripts  TranscriptSink
	SystemPrompt string
}

// Outcome is what one agent did in a cycle. Err is set when the agent
// could not be asked; command failures live in Tally.
type Outcome struct {
	AgentID  string
	Response string
	Tally    decision.Tally
	Err      error
}

type Engine struct {
	feed         FeedSource
	agents       []agent.Agent
	wallets      Wallets
	portfolio    PortfolioReader
	dispatcher   *decision.Dispatcher
	transcripts  TranscriptSink
	systemPrompt string
}

func New(p Params) *Engine {
	return &Engine{
		feed:         p.Feed,
		agents:       p.Agents,
		wallets:      p.Wallets,
		portfolio:    p.Portfolio,
		dispatcher:   p.Dispatcher,
		transcripts:  p.Transcripts,
		systemPrompt: p.SystemPrompt,
	}
}

// RunCycle fetches the feed and runs every agent concurrently. It fails
// only when the feed cannot be fetched; agent failures are reported in
// their Outcome.
func (e *Engine) RunCycle(ctx context.Context) ([]Outcome, error) {
	start := time.Now()
	feed, err := e.feed.FetchFeed(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	groups := FeedGroups(feed)
	logger.Infof("cycle: feed bonding=%d graduated=%d agents=%d", len(feed.Bonding), len(feed.Graduated), len(e.agents))

	outcomes := make([]Outcome, len(e.agents))
	var g errgroup.Group
	for i, a := range e.agents {
		i, a := i, a
		g.Go(func() error {
			outcomes[i] = e.runAgent(ctx, a, feed, groups)
			return nil
		})
	}
	_ = g.Wait()
	logger.Infof("cycle: finished in %s", time.Since(start).Truncate(time.Millisecond))
	return outcomes, nil
}

func (e *Engine) runAgent(ctx context.Context, a agent.Agent, feed fourmeme.Feed, groups []decision.FeedGroup) (out Outcome) {
	id := a.ID()
	out.AgentID = id
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("panic: %v", r)
			logger.Errorf("%s: %v", id, out.Err)
		}
	}()

	cycle := decision.NewCycle(id)
	tokenBlock := cycle.AddTokens(groups)
	portfolioBlock := e.portfolioBlock(ctx, cycle)

	user, err := BuildUserPrompt(feed, tokenBlock, portfolioBlock)
	if err != nil {
		out.Err = err
		return out
	}
	resp, err := a.Decide(ctx, e.systemPrompt, user)
	if err != nil {
		logger.Errorf("error querying %s: %v", id, err)
		out.Err = err
		return out
	}
	out.Response = resp
	logger.Infof("response from %s: %s", id, text.Truncate(strings.TrimSpace(resp), 400))
	if e.transcripts != nil {
		if err := e.transcripts.Save(ctx, id, strings.TrimSpace(resp)); err != nil {
			logger.Warnf("save transcript for %s: %v", id, err)
		}
	}

	out.Tally = e.dispatcher.Dispatch(ctx, cycle, resp)
	logger.Infof("%s: commands executed total=%d fulfilled=%d skipped=%d",
		id, out.Tally.Attempted, out.Tally.Fulfilled(), len(out.Tally.Skipped))
	return out
}

// portfolioBlock renders the agent's holdings. Read failures end up in the
// block text; they never stop the agent from being asked.
func (e *Engine) portfolioBlock(ctx context.Context, cycle *decision.Cycle) string {
	wallet, ok := e.wallets.Lookup(cycle.AgentID)
	if !ok {
		return decision.NoWalletBlock(cycle.AgentID)
	}
	p, err := e.portfolio.Read(ctx, cycle.AgentID, wallet)
	if err != nil {
		logger.Warnf("portfolio for %s: %v", cycle.AgentID, err)
		return decision.PortfolioErrorBlock(cycle.AgentID, err)
	}
	return cycle.AddPortfolio(p)
}

// FeedGroups orders the feed for indexing: bonding first, then graduated.
func FeedGroups(feed fourmeme.Feed) []decision.FeedGroup {
	return []decision.FeedGroup{
		{Label: "Bonding", Tokens: feedTokens(feed.Bonding)},
		{Label: "Graduated", Tokens: feedTokens(feed.Graduated)},
	}
}

func feedTokens(list []fourmeme.Token) []decision.FeedToken {
	out := make([]decision.FeedToken, 0, len(list))
	for _, t := range list {
		out = append(out, decision.FeedToken{Address: t.Address, Name: t.Name})
	}
	return out
}

// BuildUserPrompt lays out the feed data followed by the two index blocks.
func BuildUserPrompt(feed fourmeme.Feed, tokenBlock, portfolioBlock string) (string, error) {
	data, err := json.MarshalIndent(feed, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode feed: %w", err)
	}
	return fmt.Sprintf("Here is the token data (with indexes):\n%s\n\n%s\n\n%s\n", data, tokenBlock, portfolioBlock), nil
}
