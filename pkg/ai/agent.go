package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"raid-mail-agent/internal/conversation/domain"
)

const notMentioned = "Not mentioned"

// Agent drafts replies and extracts application fields on top of a Completer
type Agent struct {
	completer Completer
	agentName string
	system    string
}

func NewAgent(completer Completer, agentName, systemPrompt string) *Agent {
	return &Agent{completer: completer, agentName: agentName, system: systemPrompt}
}

// DraftReply implements domain.Generator
func (a *Agent) DraftReply(ctx context.Context, req *domain.DraftRequest) (string, error) {
	prompt := draftPrompt(req, a.agentName)

	out, err := a.completer.Complete(ctx, CompletionRequest{System: a.system, Prompt: prompt, Temperature: 0.7, MaxTokens: 700})
	if err != nil {
		return "", err
	}
	draft := cleanDraft(out)

	if draft == "" {
		log.Printf("[AI] Empty draft from %s, asking again", a.completer.Name())
		out, err = a.completer.Complete(ctx, CompletionRequest{
			System:      a.system,
			Prompt:      prompt + "\n\nYour previous answer was empty. Write the full email body now.",
			Temperature: 0.7,
			MaxTokens:   700,
		})
		if err != nil {
			return "", err
		}
		if draft = cleanDraft(out); draft == "" {
			return "", &domain.MalformedOutputError{Stage: "draft", Raw: out, Err: errors.New("empty draft")}
		}
	}

	if req.Final {
		draft = ensureClosingNote(draft, fmt.Sprintf(ClosingNote, a.agentName))
	}
	return draft, nil
}

// ExtractFields implements domain.Generator. Output that does not parse gets
// one corrective re-prompt before a MalformedOutputError is returned.
func (a *Agent) ExtractFields(ctx context.Context, history []*domain.Message) (*domain.Extraction, error) {
	req := CompletionRequest{
		System:      extractionSystem,
		Prompt:      fmt.Sprintf(extractionPrompt, formatConversation(history)),
		JSON:        true,
		Temperature: 0.1,
		MaxTokens:   500,
	}
	out, err := a.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	extraction, parseErr := ParseExtraction(out)
	if parseErr == nil {
		return extraction, nil
	}

	log.Printf("[AI] Unparseable extraction from %s: %v, re-prompting", a.completer.Name(), parseErr)
	req.Prompt = fmt.Sprintf(extractionRetryPrompt, parseErr, out)
	out, err = a.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	extraction, parseErr = ParseExtraction(out)
	if parseErr != nil {
		return nil, &domain.MalformedOutputError{Stage: "extract", Raw: out, Err: parseErr}
	}
	return extraction, nil
}

// activities accepts either a JSON list or a single comma separated string
type activities []string

func (a *activities) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*a = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("desired_activities must be a list of strings")
	}
	*a = nil
	for _, s := range strings.Split(single, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*a = append(*a, s)
		}
	}
	return nil
}

// ParseExtraction reads the extraction JSON out of a model response, tolerating
// code fences and surrounding prose
func ParseExtraction(raw string) (*domain.Extraction, error) {
	text := stripCodeFence(strings.TrimSpace(raw))
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON object found")
	}

	var parsed struct {
		Major             *string    `json:"major"`
		Motivation        *string    `json:"motivation"`
		DesiredActivities activities `json:"desired_activities"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if parsed.Major == nil && parsed.Motivation == nil && parsed.DesiredActivities == nil {
		return nil, errors.New("none of major, motivation, desired_activities present")
	}

	out := &domain.Extraction{
		Major:             orNotMentioned(parsed.Major),
		Motivation:        orNotMentioned(parsed.Motivation),
		DesiredActivities: []string(parsed.DesiredActivities),
	}
	if out.DesiredActivities == nil {
		out.DesiredActivities = []string{}
	}
	return out, nil
}

func orNotMentioned(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return notMentioned
	}
	return strings.TrimSpace(*s)
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

// cleanDraft drops code fences and a leading "Subject:" line
func cleanDraft(out string) string {
	text := stripCodeFence(strings.TrimSpace(out))
	if first, rest, ok := strings.Cut(text, "\n"); ok && strings.HasPrefix(strings.ToLower(first), "subject:") {
		text = rest
	}
	return strings.TrimSpace(text)
}

func ensureClosingNote(draft, note string) string {
	if strings.Contains(draft, note) {
		return draft
	}
	return draft + "\n\n" + note
}
