package ai

import "context"

// CompletionRequest is one prompt sent to a text generation provider
type CompletionRequest struct {
	System      string
	Prompt      string
	JSON        bool // ask the provider for a JSON object
	Temperature float64
	MaxTokens   int
}

// Completer is the interface for text generation providers.
// Implement this interface to add new AI providers (Gemini, Ollama, OpenAI, etc.)
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderOpenAI ProviderType = "openai"
	ProviderAuto   ProviderType = "auto"
)
