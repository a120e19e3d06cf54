package domain

import (
	"context"
	"time"
)

// OutboundMail is a message handed to the mail transport
type OutboundMail struct {
	ThreadID   string // empty starts a new thread
	To         string
	ToName     string
	Subject    string
	TextBody   string
	HTMLBody   string
	InReplyTo  string
	References string
}

// SentMail identifies a message accepted by the mail transport
type SentMail struct {
	ThreadID     string
	MessageID    string
	RFCMessageID string
	Timestamp    time.Time
}

// MailTransport reads mailbox deltas and sends mail
type MailTransport interface {
	FetchChanges(ctx context.Context, mailbox string, since uint64) (*ChangeSet, error)
	Send(ctx context.Context, mail *OutboundMail) (*SentMail, error)
}

// DraftRequest carries what the generation backend needs to write one email.
// Exchange 0 is the welcome email; Final asks for the closing farewell.
type DraftRequest struct {
	Name     string
	Email    string
	History  []*Message
	Exchange int
	Final    bool
}

// Generator is the generation backend
type Generator interface {
	DraftReply(ctx context.Context, req *DraftRequest) (string, error)
	ExtractFields(ctx context.Context, history []*Message) (*Extraction, error)
}

// Renderer turns a markdown body into the HTML sent to users
type Renderer interface {
	Render(markdown string) (string, error)
}

// ApplicationIndex is an optional semantic index over application records
type ApplicationIndex interface {
	Index(ctx context.Context, app *Application) error
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Alerter tells operators a thread stopped
type Alerter interface {
	ThreadFailed(ctx context.Context, wf *Workflow)
}
