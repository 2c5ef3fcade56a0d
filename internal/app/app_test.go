package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memearena/internal/agent"
	"memearena/internal/config"
)

const wallet = "0x645AB91bE1e004A70C0af80e0238176C1aEA4217"

type quietAgent struct{ id string }

func (q quietAgent) ID() string { return q.id }

func (q quietAgent) Decide(context.Context, string, string) (string, error) {
	return "commands:\nreason: wait", nil
}

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	body := `
app:
  env: test
chain:
  rpc_url: http://127.0.0.1:1
swap:
  auth_token: token
moralis:
  api_key: key
ledger:
  path: ` + filepath.Join(dir, "trades.db") + `
transcripts:
  path: ` + filepath.Join(dir, "logs.db") + `
agents:
  api_key: key
  models:
    - id: gpt
      model: openai/gpt-5
      wallet: "` + wallet + `"
    - id: grok
      model: x-ai/grok-4
`
	path := filepath.Join(dir, "memearena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func fakeAgents(cfg config.AgentsConfig) ([]agent.Agent, error) {
	var out []agent.Agent
	for _, m := range cfg.ActiveModels() {
		out = append(out, quietAgent{id: m.ID})
	}
	return out, nil
}

func TestBuildWiresArena(t *testing.T) {
	cfg := loadConfig(t)
	a, err := NewBuilder(cfg, WithAgents(fakeAgents)).Build(context.Background())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.engine)
	require.NotNil(t, a.loop)
	require.NotNil(t, a.Summary)
	require.Len(t, a.Summary.Agents, 2)
	assert.Equal(t, AgentDetail{ID: "gpt", Wallet: wallet}, a.Summary.Agents[0])
	assert.Equal(t, "", a.Summary.Agents[1].Wallet)

	var buf bytes.Buffer
	a.Summary.Fprint(&buf)
	assert.Contains(t, buf.String(), "> gpt: "+wallet)
	assert.Contains(t, buf.String(), "> grok: (no wallet)")

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestBuildClosesStoresOnFailure(t *testing.T) {
	cfg := loadConfig(t)
	boom := errors.New("no agents today")
	_, err := NewBuilder(cfg, WithAgents(func(config.AgentsConfig) ([]agent.Agent, error) {
		return nil, boom
	})).Build(context.Background())
	require.ErrorIs(t, err, boom)

	// The ledger file was released and can be opened again.
	again, err := NewBuilder(cfg, WithAgents(fakeAgents)).Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestNilApp(t *testing.T) {
	var a *App
	assert.Error(t, a.Run(context.Background()))
	_, err := a.RunOnce(context.Background())
	assert.Error(t, err)
	assert.NoError(t, a.Close())
}
