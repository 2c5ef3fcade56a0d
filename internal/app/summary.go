package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"memearena/internal/agent"
	"memearena/internal/config"
)

// StartupSummary is printed once before the first cycle.
type StartupSummary struct {
	Env      string
	Schedule string
	ChainID  string
	Ledger   string
	Agents   []AgentDetail
	Prompt   string
}

type AgentDetail struct {
	ID     string
	Wallet string
}

func newStartupSummary(cfg *config.Config, agents []agent.Agent) *StartupSummary {
	s := &StartupSummary{
		Env:      cfg.App.Env,
		Schedule: cfg.Loop.Schedule,
		ChainID:  cfg.Chain.ChainID,
		Ledger:   cfg.Ledger.Path,
		Prompt:   cfg.Agents.SystemPrompt,
	}
	wallets := cfg.Wallets()
	for _, a := range agents {
		w, _ := wallets.Lookup(a.ID())
		s.Agents = append(s.Agents, AgentDetail{ID: a.ID(), Wallet: w})
	}
	return s
}

func (s *StartupSummary) Print() {
	s.Fprint(os.Stdout)
}

func (s *StartupSummary) Fprint(w io.Writer) {
	rule := strings.Repeat("=", 80)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "STARTUP SUMMARY")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  env:      %s\n", s.Env)
	fmt.Fprintf(w, "  chain:    %s\n", s.ChainID)
	fmt.Fprintf(w, "  schedule: %s\n", s.Schedule)
	fmt.Fprintf(w, "  ledger:   %s\n", s.Ledger)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[AGENTS]")
	if len(s.Agents) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, a := range s.Agents {
		wallet := a.Wallet
		if wallet == "" {
			wallet = "(no wallet)"
		}
		fmt.Fprintf(w, "  > %s: %s\n", a.ID, wallet)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[SYSTEM PROMPT]")
	preview := s.Prompt
	if lines := strings.Split(preview, "\n"); len(lines) > 5 {
		preview = strings.Join(lines[:5], "\n") + "\n... (truncated)"
	}
	fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(preview, "\n", "\n    "))
	fmt.Fprintln(w, rule)
}
