package usecase

import (
	"context"

	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/pkg/mailtext"
)

// ReplyComposer drafts replies through the generation backend
type ReplyComposer struct {
	generator domain.Generator
	retry     RetryPolicy
}

func NewReplyComposer(generator domain.Generator, retry RetryPolicy) *ReplyComposer {
	return &ReplyComposer{generator: generator, retry: retry}
}

// Draft returns the markdown body for one exchange
func (c *ReplyComposer) Draft(ctx context.Context, req *domain.DraftRequest) (string, error) {
	var body string
	err := c.retry.Do(ctx, "draft reply", func(ctx context.Context) error {
		out, err := c.generator.DraftReply(ctx, req)
		if err != nil {
			return err
		}
		body = out
		return nil
	})
	return body, err
}

// composeOutbox addresses a drafted body as a reply to target within history
func composeOutbox(user *domain.User, history []*domain.Message, target *domain.Message, body, fallbackSubject string, final bool) domain.Outbox {
	subject := target.Subject
	if subject == "" {
		for _, m := range history {
			if m.Subject != "" {
				subject = m.Subject
				break
			}
		}
	}
	if subject == "" {
		subject = fallbackSubject
	}

	refs := make([]string, 0, len(history))
	for _, m := range history {
		if m.RFCMessageID != "" {
			refs = append(refs, m.RFCMessageID)
		}
	}

	return domain.Outbox{
		To:         user.Email,
		ToName:     user.Name,
		Subject:    mailtext.ReplySubject(subject),
		Body:       body,
		InReplyTo:  target.RFCMessageID,
		References: mailtext.JoinIDs(refs),
		TargetID:   target.MessageID,
		Final:      final,
	}
}

// Extractor pulls application fields out of a finished conversation
type Extractor struct {
	generator domain.Generator
	retry     RetryPolicy
}

func NewExtractor(generator domain.Generator, retry RetryPolicy) *Extractor {
	return &Extractor{generator: generator, retry: retry}
}

func (e *Extractor) Extract(ctx context.Context, history []*domain.Message) (*domain.Extraction, error) {
	var extraction *domain.Extraction
	err := e.retry.Do(ctx, "extract fields", func(ctx context.Context) error {
		out, err := e.generator.ExtractFields(ctx, history)
		if err != nil {
			return err
		}
		extraction = out
		return nil
	})
	return extraction, err
}
