package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// OllamaCompleter implements Completer using an Ollama server
type OllamaCompleter struct {
	getBaseURL func() string // Dynamic getter for BaseURL
	getModel   func() string // Dynamic getter for Model
	client     *http.Client
}

// NewOllamaCompleter creates an Ollama completer bound to runtime settings
func NewOllamaCompleter(settings *RuntimeSettings) *OllamaCompleter {
	return NewOllamaCompleterWithGetters(settings.OllamaBaseURL, settings.OllamaModel)
}

// NewOllamaCompleterWithGetters creates an Ollama completer with dynamic getters
func NewOllamaCompleterWithGetters(getBaseURL, getModel func() string) *OllamaCompleter {
	return &OllamaCompleter{
		getBaseURL: getBaseURL,
		getModel:   getModel,
		client:     &http.Client{},
	}
}

func (o *OllamaCompleter) Name() string {
	return string(ProviderOllama)
}

// Complete implements Completer
func (o *OllamaCompleter) Complete(ctx context.Context, in CompletionRequest) (string, error) {
	url := o.getBaseURL() + "/api/generate"

	options := map[string]interface{}{
		"temperature": in.Temperature,
	}
	if in.MaxTokens > 0 {
		options["num_predict"] = in.MaxTokens
	}
	payload := map[string]interface{}{
		"model":   o.getModel(),
		"prompt":  in.Prompt,
		"stream":  false,
		"options": options,
	}
	if in.System != "" {
		payload["system"] = in.System
	}
	if in.JSON {
		payload["format"] = "json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return result.Response, nil
}

// Ping checks that the Ollama server at baseURL answers
func Ping(ctx context.Context, baseURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
