package domain

import (
	"fmt"
	"time"
)

// Status is the position of a thread in the conversation state machine
type Status string

const (
	StatusInitiated     Status = "initiated"
	StatusAwaitingReply Status = "awaiting_reply"
	StatusExtracting    Status = "extracting"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
)

// transitions lists every status a workflow may move to from a given status.
// Non-terminal statuses may also re-write themselves (outbox claim, step advance).
var transitions = map[Status][]Status{
	StatusInitiated:     {StatusInitiated, StatusAwaitingReply, StatusExtracting, StatusFailed},
	StatusAwaitingReply: {StatusAwaitingReply, StatusExtracting, StatusFailed},
	StatusExtracting:    {StatusExtracting, StatusCompleted, StatusFailed},
	StatusCompleted:     {},
	// operator reset only
	StatusFailed: {StatusInitiated, StatusAwaitingReply, StatusExtracting},
}

// ParseStatus rejects anything outside the closed set of statuses
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if _, ok := transitions[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return status, nil
}

// Terminal reports whether the engine must leave the workflow alone
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the table allows from -> to
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Outbox holds a drafted reply that has been claimed but not yet confirmed as sent
type Outbox struct {
	To         string `json:"to,omitempty"`
	ToName     string `json:"to_name,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Body       string `json:"body,omitempty"` // markdown
	InReplyTo  string `json:"in_reply_to,omitempty"`
	References string `json:"references,omitempty"`
	TargetID   string `json:"target_id,omitempty"` // inbound message being answered
	Final      bool   `json:"final,omitempty"`
	// LeaseUntil is set by the worker delivering the outbox. Other workers
	// leave the outbox alone until it passes.
	LeaseUntil time.Time `json:"lease_until,omitempty"`
}

// Pending reports whether a reply is waiting to be delivered
func (o Outbox) Pending() bool {
	return o.Body != ""
}

// Leased reports whether a worker holds the delivery lease at now
func (o Outbox) Leased(now time.Time) bool {
	return o.Pending() && o.LeaseUntil.After(now)
}

// Workflow is the persisted progress of one thread
type Workflow struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	ThreadID   string    `json:"thread_id" gorm:"uniqueIndex;not null"`
	UserEmail  string    `json:"user_email" gorm:"index;not null"`
	Step       int       `json:"step" gorm:"not null;default:0"`
	Status     Status    `json:"status" gorm:"type:varchar(32);index;not null"`
	Revision   int64     `json:"revision" gorm:"not null;default:0"`
	FailedFrom Status    `json:"failed_from,omitempty" gorm:"type:varchar(32)"`
	LastError  string    `json:"last_error,omitempty" gorm:"type:text"`
	RawOutput  string    `json:"raw_output,omitempty" gorm:"type:text"`
	Outbox     Outbox    `json:"outbox" gorm:"embedded;embeddedPrefix:outbox_"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"index"`
}

func (Workflow) TableName() string {
	return "workflows"
}

// Transition is the full next state written by a compare-and-advance
type Transition struct {
	Step       int
	Status     Status
	Outbox     Outbox
	FailedFrom Status
	LastError  string
	RawOutput  string
}

// Apply returns a copy of w with the transition written over it
func (w Workflow) Apply(t Transition) *Workflow {
	w.Step = t.Step
	w.Status = t.Status
	w.Outbox = t.Outbox
	w.FailedFrom = t.FailedFrom
	w.LastError = t.LastError
	w.RawOutput = t.RawOutput
	w.Revision++
	return &w
}
