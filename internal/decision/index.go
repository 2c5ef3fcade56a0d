// Package decision turns an agent's free-text answer into trade commands.
// Tokens are shown to agents under small per-cycle numbers; commands may
// only refer to those numbers, never to raw addresses.
package decision

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"memearena/internal/pkg/convert"
	"memearena/internal/types"
)

const (
	tokenIndexHeader = "Token index (**numbers only**):"
	portfolioHeader  = "Your portfolio:"
	unknownAddress   = "unknown"
)

var indexRef = regexp.MustCompile(`^#?(\d{1,5})$`)

// IndexMap maps a cycle index to a token address.
type IndexMap map[int]string

// FeedToken is one discovery item as shown to an agent.
type FeedToken struct {
	Address string
	Name    string
}

// FeedGroup is a labeled list of discovery items, e.g. "Bonding".
type FeedGroup struct {
	Label  string
	Tokens []FeedToken
}

// BuildTokenIndex numbers every token of groups, in order, starting at
// start. Empty groups are left out; with no tokens at all the block is
// empty. The result depends only on its inputs.
func BuildTokenIndex(groups []FeedGroup, start int) (IndexMap, string, int) {
	m := IndexMap{}
	n := start
	var lines []string
	for _, g := range groups {
		if len(g.Tokens) == 0 {
			continue
		}
		lines = append(lines, g.Label+":")
		for _, t := range g.Tokens {
			addr := strings.TrimSpace(t.Address)
			if addr == "" {
				addr = unknownAddress
			}
			name := strings.TrimSpace(t.Name)
			if name == "" {
				name = addr
			}
			m[n] = addr
			lines = append(lines, fmt.Sprintf("[%d] %s — %s", n, name, addr))
			n++
		}
		lines = append(lines, "")
	}
	if len(lines) == 0 {
		return m, "", n
	}
	return m, tokenIndexHeader + "\n" + strings.Join(lines, "\n"), n
}

// BuildPortfolioIndex continues numbering over the holdings of p. The
// native entry is listed first and gets no number.
func BuildPortfolioIndex(p types.Portfolio, start int) (IndexMap, string, int) {
	m := IndexMap{}
	if p.Empty() {
		return m, portfolioHeader + "\n(empty)", start
	}
	lines := []string{portfolioHeader}
	if p.Native != nil {
		lines = append(lines, fmt.Sprintf("BNB — address=%s, balance=%s BNB",
			p.Native.Address, convert.FormatNumber(p.Native.Amount)))
	}
	n := start
	for _, h := range p.Holdings {
		addr := h.Address
		if addr == "" {
			addr = unknownAddress
		}
		lines = append(lines, fmt.Sprintf("[%d] %s — address=%s, balance=%s BNB, PnL=%s%%",
			n, h.Name, addr, convert.FormatNumber(h.BalanceBNB), convert.FormatNumber(h.PnLPct)))
		m[n] = addr
		n++
	}
	return m, strings.Join(lines, "\n"), n
}

// NoWalletBlock is the portfolio block for an agent without a wallet.
func NoWalletBlock(agentID string) string {
	return fmt.Sprintf("%s\n(no wallet configured for %s)", portfolioHeader, agentID)
}

// PortfolioErrorBlock is the portfolio block when the wallet could not be
// read.
func PortfolioErrorBlock(agentID string, err error) string {
	return fmt.Sprintf("%s\n(error fetching portfolio for %s: %v)", portfolioHeader, agentID, err)
}

// ResolveIndex maps a reference like "3" or "#3" to its address. Anything
// else, a raw address included, does not resolve.
func ResolveIndex(ref string, m IndexMap) (string, bool) {
	match := indexRef.FindStringSubmatch(strings.TrimSpace(ref))
	if match == nil {
		return "", false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return "", false
	}
	addr, ok := m[n]
	if !ok || addr == "" {
		return "", false
	}
	return addr, true
}

// Cycle holds the index space of one agent for one decision round. It is
// created per agent per cycle and must not be shared between cycles.
type Cycle struct {
	AgentID string

	index IndexMap
	next  int
}

func NewCycle(agentID string) *Cycle {
	return &Cycle{AgentID: agentID, index: IndexMap{}, next: 1}
}

// AddTokens numbers the discovery groups and returns the rendered block.
func (c *Cycle) AddTokens(groups []FeedGroup) string {
	m, block, next := BuildTokenIndex(groups, c.next)
	c.merge(m, next)
	return block
}

// AddPortfolio numbers the holdings of p after the tokens already added.
func (c *Cycle) AddPortfolio(p types.Portfolio) string {
	m, block, next := BuildPortfolioIndex(p, c.next)
	c.merge(m, next)
	return block
}

func (c *Cycle) merge(m IndexMap, next int) {
	for k, v := range m {
		c.index[k] = v
	}
	c.next = next
}

// Resolve looks ref up in this cycle's index.
func (c *Cycle) Resolve(ref string) (string, bool) {
	return ResolveIndex(ref, c.index)
}

// NextIndex is the number the next listed item would get.
func (c *Cycle) NextIndex() int {
	return c.next
}

// Index returns a copy of the cycle's index.
func (c *Cycle) Index() IndexMap {
	out := make(IndexMap, len(c.index))
	for k, v := range c.index {
		out[k] = v
	}
	return out
}
