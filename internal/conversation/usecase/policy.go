package usecase

import (
	"fmt"
	"strings"

	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/pkg/fuzzy"
)

// CompletionPolicy decides whether the reply to an inbound message is the
// last one before extraction. exchange counts agent replies including the
// one being drafted.
type CompletionPolicy interface {
	Concludes(exchange int, latest *domain.Message) bool
	Name() string
}

// ExchangeLimit concludes after a fixed number of replies
type ExchangeLimit struct {
	Max int
}

func (p ExchangeLimit) Concludes(exchange int, _ *domain.Message) bool {
	return p.Max > 0 && exchange >= p.Max
}

func (p ExchangeLimit) Name() string {
	return fmt.Sprintf("exchanges(%d)", p.Max)
}

// IntentPolicy concludes when the user signals the end of the conversation.
// Phrases match with a small typo tolerance. Questions never count as closing.
type IntentPolicy struct {
	Phrases []string
}

func (p IntentPolicy) Concludes(_ int, latest *domain.Message) bool {
	if latest == nil {
		return false
	}
	for _, sentence := range statements(latest.Body) {
		for _, phrase := range p.Phrases {
			if fuzzy.ContainsPhrase(sentence, phrase) {
				return true
			}
		}
	}
	return false
}

// statements splits body into sentences and drops the ones ending in "?"
func statements(body string) []string {
	var out []string
	start := 0
	for i, r := range body {
		switch r {
		case '.', '!', '?', '\n':
			if r != '?' {
				out = append(out, body[start:i])
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(body[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func (p IntentPolicy) Name() string {
	return "intent"
}

// AnyOf concludes when any of its policies does
type AnyOf []CompletionPolicy

func (p AnyOf) Concludes(exchange int, latest *domain.Message) bool {
	for _, policy := range p {
		if policy.Concludes(exchange, latest) {
			return true
		}
	}
	return false
}

func (p AnyOf) Name() string {
	names := make([]string, 0, len(p))
	for _, policy := range p {
		names = append(names, policy.Name())
	}
	return strings.Join(names, "|")
}

// NewCompletionPolicy builds the policy named by kind: "exchanges", "intent"
// or "either"
func NewCompletionPolicy(kind string, maxExchanges int, phrases []string) (CompletionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "exchanges":
		if maxExchanges <= 0 {
			return nil, fmt.Errorf("MAX_EXCHANGES must be positive for the exchanges policy")
		}
		return ExchangeLimit{Max: maxExchanges}, nil
	case "intent":
		if len(phrases) == 0 {
			return nil, fmt.Errorf("TERMINAL_PHRASES must not be empty for the intent policy")
		}
		return IntentPolicy{Phrases: phrases}, nil
	case "either", "":
		return AnyOf{ExchangeLimit{Max: maxExchanges}, IntentPolicy{Phrases: phrases}}, nil
	default:
		return nil, fmt.Errorf("unknown completion policy %q", kind)
	}
}
