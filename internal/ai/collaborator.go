package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/garnizeh/qna/internal/config"
	"github.com/garnizeh/qna/pkg/ollama"
)

// OllamaCollaborator drafts with a local Ollama model.
type OllamaCollaborator struct {
	client      *ollama.Client
	model       string
	temperature float64
	topP        float64
}

func NewOllamaCollaborator(client *ollama.Client, cfg config.DraftingConfig) *OllamaCollaborator {
	return &OllamaCollaborator{client: client, model: cfg.Model, temperature: cfg.Temperature, topP: cfg.TopP}
}

func (c *OllamaCollaborator) Name() string { return "ollama:" + c.model }

func (c *OllamaCollaborator) Generate(ctx context.Context, p Prompt) (string, error) {
	res, err := c.client.Generate(ctx, ollama.GenerateRequest{
		Model:       c.model,
		Prompt:      p.Text,
		System:      p.System,
		Temperature: c.temperature,
		TopP:        c.topP,
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return res.Text, nil
}

// Health reports whether the instance answers with at least one model
// installed.
func (c *OllamaCollaborator) Health(ctx context.Context) error {
	return c.client.Health(ctx)
}

// OpenAICollaborator drafts with an OpenAI-compatible chat completions API.
type OpenAICollaborator struct {
	client      openai.Client
	model       string
	temperature float64
	topP        float64
}

func NewOpenAICollaborator(oc config.OpenAIConfig, cfg config.DraftingConfig) *OpenAICollaborator {
	opts := []option.RequestOption{
		option.WithAPIKey(oc.APIKey),
		option.WithMaxRetries(1),
	}
	if oc.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(oc.BaseURL))
	}

	return &OpenAICollaborator{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}
}

func (c *OpenAICollaborator) Name() string { return "openai:" + c.model }

func (c *OpenAICollaborator) Generate(ctx context.Context, p Prompt) (string, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if strings.TrimSpace(p.System) != "" {
		msgs = append(msgs, openai.SystemMessage(p.System))
	}
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: append(msgs, openai.UserMessage(p.Text)),
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}
	if c.topP > 0 {
		params.TopP = openai.Float(c.topP)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrDraftUnavailable
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// NewCollaborator returns the collaborator for cfg.Drafting.Provider, or nil
// when no provider is configured.
func NewCollaborator(cfg *config.Config) (Collaborator, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Drafting.Provider {
	case "":
		return nil, noop, nil
	case "ollama":
		client, err := ollama.NewDefaultClient(cfg.Ollama)
		if err != nil {
			return nil, noop, fmt.Errorf("ollama client: %w", err)
		}
		return NewOllamaCollaborator(client, cfg.Drafting), client.Close, nil
	case "openai":
		return NewOpenAICollaborator(cfg.OpenAI, cfg.Drafting), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown drafting provider %q", cfg.Drafting.Provider)
	}
}
