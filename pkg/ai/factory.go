package ai

import (
	"context"
	"fmt"

	"raid-mail-agent/pkg/gemini"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey   string
	OpenAIEndpoint string
	OpenAIModel    string
}

// geminiCompleter adapts the Gemini client to Completer
type geminiCompleter struct {
	svc *gemini.GeminiService
}

func (g *geminiCompleter) Name() string {
	return string(ProviderGemini)
}

func (g *geminiCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return g.svc.Generate(ctx, req.System, req.Prompt, req.Temperature, req.MaxTokens, req.JSON)
}

// NewCompleter creates a Completer based on the config.
// Switch AI provider by changing cfg.Provider; "auto" chains every configured
// provider with Ollama last.
func NewCompleter(cfg Config, settings *RuntimeSettings) (Completer, error) {
	var geminiProvider, openaiProvider Completer
	if cfg.GeminiAPIKey != "" {
		geminiProvider = &geminiCompleter{svc: gemini.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel)}
	}
	if cfg.OpenAIAPIKey != "" {
		openaiProvider = NewOpenAICompleter(cfg.OpenAIEndpoint, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}
	ollama := NewOllamaCompleter(settings)

	switch cfg.Provider {
	case ProviderGemini:
		if geminiProvider == nil {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return geminiProvider, nil

	case ProviderOpenAI:
		if openaiProvider == nil {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return openaiProvider, nil

	case ProviderOllama:
		return ollama, nil

	case ProviderAuto, "":
		return NewFallbackCompleter(geminiProvider, openaiProvider, ollama), nil

	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
