// Package agent asks language models for trading decisions.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"memearena/internal/logger"
)

const emptyResponse = "(empty response)"

// Agent is one trading identity backed by a model.
type Agent interface {
	ID() string
	Decide(ctx context.Context, system, user string) (string, error)
}

type OpenAIConfig struct {
	ID         string
	Model      string
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAIAgent talks to any OpenAI-compatible chat completions endpoint,
// OpenRouter by default.
type OpenAIAgent struct {
	id      string
	model   string
	timeout time.Duration
	client  *openai.Client
}

func NewOpenAIAgent(cfg OpenAIConfig) (*OpenAIAgent, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("agent model is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("agent %s: api key is required", model)
	}
	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		id = model
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		oc.BaseURL = strings.TrimSuffix(base, "/chat/completions")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	return &OpenAIAgent{
		id:      id,
		model:   model,
		timeout: cfg.Timeout,
		client:  openai.NewClientWithConfig(oc),
	}, nil
}

func (a *OpenAIAgent) ID() string { return a.id }

// Decide sends one system and one user message and returns the reply text.
func (a *OpenAIAgent) Decide(ctx context.Context, system, user string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	logger.LogAgentRequest(a.id, system, user)

	var msgs []openai.ChatCompletionMessage
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: msgs,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%s HTTP %d: %s", a.model, apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("%s: %w", a.model, err)
	}
	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	if strings.TrimSpace(content) == "" {
		content = emptyResponse
	}
	logger.LogAgentResponse(a.id, content)
	return content, nil
}
