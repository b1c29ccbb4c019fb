package rag

import (
	"context"
	"errors"

	"github.com/pleader-ai/pleader-backend/services/providers"
	"go.uber.org/zap"
)

var errNoChoices = errors.New("provider returned no content")

// GeneratorConfig selects the model and sampling for generation calls
type GeneratorConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// ProviderGenerator sends prompts to a chat completion provider with the
// legal research system prompt.
type ProviderGenerator struct {
	provider providers.Provider
	system   string
	config   GeneratorConfig
	logger   *zap.Logger
}

// NewProviderGenerator creates a Generator backed by provider
func NewProviderGenerator(provider providers.Provider, prompts *Prompts, config GeneratorConfig, logger *zap.Logger) *ProviderGenerator {
	return &ProviderGenerator{
		provider: provider,
		system:   prompts.System(),
		config:   config,
		logger:   logger,
	}
}

// Generate returns the model's reply to prompt
func (g *ProviderGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	messages := make([]providers.Message, 0, 2)
	if g.system != "" {
		messages = append(messages, providers.Message{Role: providers.RoleSystem, Content: g.system})
	}
	messages = append(messages, providers.Message{Role: providers.RoleUser, Content: prompt})

	resp, err := g.provider.ChatCompletion(ctx, &providers.ChatRequest{
		Model:       g.config.Model,
		Messages:    messages,
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	})
	if err != nil {
		return "", err
	}

	content := resp.Content()
	if content == "" {
		return "", errNoChoices
	}

	g.logger.Debug("generation completed",
		zap.String("provider", g.provider.Name()),
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("latency", resp.Latency))
	return content, nil
}
