package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"initiated", "awaiting_reply", "extracting", "completed", "failed"} {
		status, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, Status(s), status)
	}

	_, err := ParseStatus("sent_followup_2")
	assert.ErrorIs(t, err, ErrUnknownStatus)

	_, err = ParseStatus("")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusInitiated, StatusAwaitingReply, true},
		{StatusInitiated, StatusExtracting, true},
		{StatusAwaitingReply, StatusAwaitingReply, true},
		{StatusAwaitingReply, StatusExtracting, true},
		{StatusAwaitingReply, StatusInitiated, false},
		{StatusExtracting, StatusCompleted, true},
		{StatusExtracting, StatusAwaitingReply, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusAwaitingReply, false},
		{StatusFailed, StatusAwaitingReply, true},
		{StatusFailed, StatusCompleted, false},
		{Status("bogus"), StatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestApplyBumpsRevision(t *testing.T) {
	wf := Workflow{ThreadID: "t1", Step: 1, Status: StatusAwaitingReply, Revision: 4}
	next := wf.Apply(Transition{Step: 2, Status: StatusExtracting})

	assert.Equal(t, 2, next.Step)
	assert.Equal(t, StatusExtracting, next.Status)
	assert.Equal(t, int64(5), next.Revision)
	assert.Equal(t, int64(4), wf.Revision)
}

func TestHistoryHelpers(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs := []*Message{
		{MessageID: "c", Sender: SenderUser, Timestamp: base.Add(2 * time.Minute)},
		{MessageID: "b", Sender: SenderUser, Timestamp: base},
		{MessageID: "a", Sender: SenderAgent, Timestamp: base},
	}
	SortMessages(msgs)

	assert.Equal(t, []string{"a", "b", "c"}, []string{msgs[0].MessageID, msgs[1].MessageID, msgs[2].MessageID})
	assert.Len(t, Inbound(msgs), 2)
	assert.Len(t, HistoryUpTo(msgs, "b"), 2)
	assert.Len(t, HistoryUpTo(msgs, "zzz"), 3)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(&MalformedOutputError{Stage: "extract", Raw: "{"}))
	assert.True(t, IsPermanent(ErrConflict))
	assert.False(t, IsPermanent(errors.New("connection reset by peer")))
	assert.False(t, IsPermanent(nil))
}
