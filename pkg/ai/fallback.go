package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
)

// FallbackCompleter tries providers in order and moves to the next one when a
// provider is unreachable or out of quota
type FallbackCompleter struct {
	providers []Completer
}

// NewFallbackCompleter creates a fallback chain. Nil providers are skipped.
func NewFallbackCompleter(providers ...Completer) *FallbackCompleter {
	chain := make([]Completer, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			chain = append(chain, p)
		}
	}
	return &FallbackCompleter{providers: chain}
}

func (f *FallbackCompleter) Name() string {
	names := make([]string, 0, len(f.providers))
	for _, p := range f.providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, ">")
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return containsAny(err.Error(),
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"EOF",
	)
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(),
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
		"RESOURCE_EXHAUSTED",
	)
}

func containsAny(s string, indicators ...string) bool {
	s = strings.ToLower(s)
	for _, indicator := range indicators {
		if strings.Contains(s, strings.ToLower(indicator)) {
			return true
		}
	}
	return false
}

// Complete implements Completer
func (f *FallbackCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if len(f.providers) == 0 {
		return "", fmt.Errorf("no AI provider available")
	}

	var lastErr error
	for _, p := range f.providers {
		result, err := p.Complete(ctx, req)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		lastErr = err

		switch {
		case isQuotaError(err):
			log.Printf("[AI] %s quota exhausted: %v, trying next provider", p.Name(), err)
		case isConnectionError(err):
			log.Printf("[AI] %s connection failed: %v, trying next provider", p.Name(), err)
		default:
			log.Printf("[AI] %s error: %v, trying next provider", p.Name(), err)
		}
	}
	return "", fmt.Errorf("all AI providers failed: %w", lastErr)
}
