package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Extraction is what the generation backend pulls out of a finished conversation
type Extraction struct {
	Major             string   `json:"major"`
	Motivation        string   `json:"motivation"`
	DesiredActivities []string `json:"desired_activities"`
}

// TranscriptEntry is one line of the conversation stored with an application
type TranscriptEntry struct {
	Sender    Sender    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Application is the club membership record produced when a thread completes
type Application struct {
	Email             string                               `json:"email" gorm:"primaryKey"`
	Name              string                               `json:"name"`
	ThreadID          string                               `json:"thread_id" gorm:"index"`
	Conversation      datatypes.JSONSlice[TranscriptEntry] `json:"conversation"`
	Major             string                               `json:"major"`
	Motivation        string                               `json:"motivation" gorm:"type:text"`
	DesiredActivities datatypes.JSONSlice[string]          `json:"desired_activities"`
	CreatedAt         time.Time                            `json:"created_at"`
	UpdatedAt         time.Time                            `json:"updated_at"`
}

func (Application) TableName() string {
	return "club_applications"
}

// Transcript flattens an ordered thread for storage
func Transcript(messages []*Message) []TranscriptEntry {
	entries := make([]TranscriptEntry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, TranscriptEntry{Sender: m.Sender, Body: m.Body, Timestamp: m.Timestamp})
	}
	return entries
}

// MailboxCursor is the last history marker processed for a mailbox
type MailboxCursor struct {
	Mailbox   string    `json:"mailbox" gorm:"primaryKey"`
	HistoryID uint64    `json:"history_id" gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (MailboxCursor) TableName() string {
	return "mailbox_cursors"
}
