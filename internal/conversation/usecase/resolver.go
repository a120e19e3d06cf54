package usecase

import (
	"context"
	"strings"
	"time"

	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/pkg/mailtext"
)

// Resolution is the outcome of resolving one raw message
type Resolution struct {
	New     bool
	Skipped string // reason the message was ignored
	Message *domain.Message
	History []*domain.Message // ordered thread up to and including Message
}

// Resolver maps raw transport messages onto stored threads
type Resolver struct {
	repos      Repositories
	agentEmail string
	store      RetryPolicy
}

func NewResolver(repos Repositories, agentEmail string, store RetryPolicy) *Resolver {
	return &Resolver{repos: repos, agentEmail: strings.ToLower(agentEmail), store: store}
}

// Resolve stores raw if it is new and returns the thread history up to it.
// Messages already stored are reported with New=false and no error.
func (r *Resolver) Resolve(ctx context.Context, raw *domain.RawMessage) (*Resolution, error) {
	sender := domain.SenderUser
	participant, name := strings.ToLower(raw.From), raw.FromName

	if participant == r.agentEmail {
		sender = domain.SenderAgent
		participant, name = "", ""
		for _, to := range raw.To {
			if to != r.agentEmail {
				participant = to
				break
			}
		}
	} else {
		switch {
		case participant == "":
			return &Resolution{Skipped: "no sender"}, nil
		case mailtext.IsNoReply(participant):
			return &Resolution{Skipped: "automated sender"}, nil
		case !r.addressedToAgent(raw):
			return &Resolution{Skipped: "not addressed to agent"}, nil
		}
	}
	if participant == "" {
		return &Resolution{Skipped: "no participant"}, nil
	}

	ts := raw.Date
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := &domain.Message{
		ThreadID:     raw.ThreadID,
		MessageID:    raw.ID,
		UserEmail:    participant,
		Sender:       sender,
		Subject:      raw.Subject,
		Body:         raw.Body,
		RFCMessageID: raw.RFCMessageID,
		Timestamp:    ts,
	}

	var inserted bool
	err := r.store.Do(ctx, "store message", func(ctx context.Context) error {
		if _, err := r.repos.Users.Ensure(ctx, participant, name); err != nil {
			return err
		}
		var err error
		inserted, err = r.repos.Messages.Append(ctx, msg)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return &Resolution{Message: msg, Skipped: "duplicate"}, nil
	}

	var thread []*domain.Message
	err = r.store.Do(ctx, "list thread", func(ctx context.Context) error {
		var err error
		thread, err = r.repos.Messages.ListByThread(ctx, msg.ThreadID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Resolution{New: true, Message: msg, History: domain.HistoryUpTo(thread, msg.MessageID)}, nil
}

func (r *Resolver) addressedToAgent(raw *domain.RawMessage) bool {
	for _, list := range [][]string{raw.To, raw.Cc} {
		for _, addr := range list {
			if strings.EqualFold(addr, r.agentEmail) {
				return true
			}
		}
	}
	return false
}
