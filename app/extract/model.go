package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
)

type ModelConfig struct {
	Provider   Provider
	Model      string
	APIKey     string
	OllamaHost string
	MaxTokens  int
}

// Model wraps a langchaingo model for prompt completion.
type Model struct {
	llm       llms.Model
	modelName string
	maxTokens int
}

var _ Generator = (*Model)(nil)

// NewModel creates a model for the configured provider. Hosted providers
// without an API key return ErrNotConfigured.
func NewModel(config ModelConfig) (*Model, error) {
	var model llms.Model
	var err error

	switch Provider(strings.ToLower(string(config.Provider))) {
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(config.Model)}
		if config.OllamaHost != "" {
			opts = append(opts, ollama.WithServerURL(config.OllamaHost))
		}
		model, err = ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI:
		if config.APIKey == "" {
			return nil, fmt.Errorf("%w: OpenAI API key required", ErrNotConfigured)
		}
		model, err = openai.New(
			openai.WithToken(config.APIKey),
			openai.WithModel(config.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if config.APIKey == "" {
			return nil, fmt.Errorf("%w: Anthropic API key required", ErrNotConfigured)
		}
		model, err = anthropic.New(
			anthropic.WithToken(config.APIKey),
			anthropic.WithModel(config.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}

	return NewModelFromLLM(model, config.Model, config.MaxTokens), nil
}

func NewModelFromLLM(llm llms.Model, modelName string, maxTokens int) *Model {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Model{
		llm:       llm,
		modelName: modelName,
		maxTokens: maxTokens,
	}
}

func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(0),
		llms.WithMaxTokens(m.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generate with system: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return response.Choices[0].Content, nil
}

func (m *Model) Name() string {
	return m.modelName
}
