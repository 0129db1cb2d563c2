package planner

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/forgebot/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator abstracts the text-completion backend so the planner can be
// tested against fakes and swapped across providers.
type Generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// Model wraps a langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
}

var _ Generator = (*Model)(nil)

// NewGenerator creates the configured completion backend. Bedrock is
// handled by its own client; everything else goes through langchaingo.
func NewGenerator(cfg config.Config) (Generator, error) {
	if cfg.LLMProvider == config.ProviderBedrock {
		return NewBedrockGenerator(cfg)
	}
	return NewModel(cfg)
}

// NewModel creates a langchaingo-backed model based on configuration.
func NewModel(cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OpenAI API key required", ErrConfig)
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: Anthropic API key required", ErrConfig)
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider %q", ErrConfig, cfg.LLMProvider)
	}

	return &Model{
		llm:       model,
		modelName: cfg.LLMModel,
	}, nil
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(0.3),
		llms.WithMaxTokens(8192),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: no response choices", ErrTransport)
	}

	return response.Choices[0].Content, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}
