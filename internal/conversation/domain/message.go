package domain

import (
	"sort"
	"time"
)

// Sender tells who authored a message in a thread
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// User is the external participant of a thread
type User struct {
	Email     string    `json:"email" gorm:"primaryKey"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Message is one immutable entry of a thread's log
type Message struct {
	ThreadID     string    `json:"thread_id" gorm:"primaryKey"`
	MessageID    string    `json:"message_id" gorm:"primaryKey"`
	UserEmail    string    `json:"user_email" gorm:"index;not null"`
	User         *User     `json:"-" gorm:"foreignKey:UserEmail;references:Email"`
	Sender       Sender    `json:"sender" gorm:"type:varchar(16);not null"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body" gorm:"type:text"`
	RFCMessageID string    `json:"rfc_message_id,omitempty"`
	Timestamp    time.Time `json:"timestamp" gorm:"index"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// SortMessages orders a thread by (timestamp, message id)
func SortMessages(messages []*Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Timestamp.Equal(messages[j].Timestamp) {
			return messages[i].MessageID < messages[j].MessageID
		}
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
}

// Inbound filters the user-authored messages of an ordered thread
func Inbound(messages []*Message) []*Message {
	inbound := make([]*Message, 0, len(messages))
	for _, m := range messages {
		if m.Sender == SenderUser {
			inbound = append(inbound, m)
		}
	}
	return inbound
}

// HistoryUpTo cuts an ordered thread right after the message with the given id.
// The full thread is returned when the id is not present.
func HistoryUpTo(messages []*Message, messageID string) []*Message {
	for i, m := range messages {
		if m.MessageID == messageID {
			return messages[:i+1]
		}
	}
	return messages
}

// RawMessage is a message as reported by the mail transport, before resolution
type RawMessage struct {
	ID           string
	ThreadID     string
	RFCMessageID string
	From         string
	FromName     string
	To           []string
	Cc           []string
	Subject      string
	Body         string
	Date         time.Time
}

// ChangeSet is the delta returned by a transport fetch
type ChangeSet struct {
	Messages  []*RawMessage
	HistoryID uint64 // newest marker observed by the fetch, 0 when unknown
}

// Notification says a mailbox may have new data as of a history marker.
// HistoryID is 0 when the source cannot tell (IMAP IDLE).
type Notification struct {
	Mailbox   string `json:"emailAddress"`
	HistoryID uint64 `json:"historyId"`
}
