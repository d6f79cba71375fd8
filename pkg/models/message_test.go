package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadFlags(t *testing.T) {
	tests := []struct {
		name       string
		msg        Message
		wantParent bool
		wantReply  bool
	}{
		{
			name:       "standalone message",
			msg:        Message{MessageID: "100.000001"},
			wantParent: false,
			wantReply:  false,
		},
		{
			name:       "thread parent",
			msg:        Message{MessageID: "100.000001", ThreadTS: "100.000001", ReplyCount: 3},
			wantParent: true,
			wantReply:  false,
		},
		{
			name:       "self-parented without replies is standalone",
			msg:        Message{MessageID: "100.000001", ThreadTS: "100.000001", ReplyCount: 0},
			wantParent: false,
			wantReply:  false,
		},
		{
			name:       "thread reply",
			msg:        Message{MessageID: "101.000001", ThreadTS: "100.000001"},
			wantParent: false,
			wantReply:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantParent, tt.msg.IsThreadParent())
			assert.Equal(t, tt.wantReply, tt.msg.IsThreadReply())
			// Parent and reply are mutually exclusive in every case.
			assert.False(t, tt.msg.IsThreadParent() && tt.msg.IsThreadReply())
		})
	}
}

func TestPartitionDateUsesUTC(t *testing.T) {
	// 23:59 UTC on the 15th must partition to the 15th even if the local
	// zone has already rolled over.
	loc := time.FixedZone("UTC+2", 2*3600)
	msg := Message{Timestamp: time.Date(2025, 10, 16, 1, 59, 0, 0, loc)}
	assert.Equal(t, "2025-10-15", msg.PartitionDate())
}

func TestChannelAlias(t *testing.T) {
	assert.Equal(t, "eng", Channel{Name: "eng", ID: "C123"}.Alias())
	assert.Equal(t, "channel_C123", Channel{ID: "C123"}.Alias())
}

func TestToRow(t *testing.T) {
	ts := time.Date(2025, 10, 15, 23, 59, 0, 0, time.UTC)
	msg := Message{
		MessageID:  "1760572740.000100",
		UserID:     "U1",
		Text:       "Fixed PRD-16975 and PRD-16975 and FOO-1",
		Timestamp:  ts,
		ThreadTS:   "1760572740.000100",
		ReplyCount: 2,
		UserInfo:   &User{ID: "U1", Name: "alice", RealName: "Alice Chen"},
		Reactions:  []Reaction{{Emoji: "thumbsup", Count: 1, Users: []string{"U2"}}},
	}

	row := msg.ToRow()

	require.NotNil(t, row.UserID)
	assert.Equal(t, "U1", *row.UserID)
	assert.Equal(t, "2025-10-15T23:59:00Z", row.Timestamp)
	assert.True(t, row.IsThreadParent)
	assert.False(t, row.IsThreadReply)
	assert.Equal(t, []string{"PRD-16975", "FOO-1"}, row.IssueKeys)
	assert.True(t, row.HasReactions)
	assert.False(t, row.HasFiles)
	assert.False(t, row.HasThread)
	require.NotNil(t, row.UserRealName)
	assert.Equal(t, "Alice Chen", *row.UserRealName)
	assert.Nil(t, row.UserEmail)
}

func TestToRowNullsForMissingUser(t *testing.T) {
	msg := Message{MessageID: "1.000000", Text: "system notice", Timestamp: time.Unix(1, 0)}
	row := msg.ToRow()
	assert.Nil(t, row.UserID)
	assert.Nil(t, row.ThreadTS)
	assert.Nil(t, row.UserName)
	assert.Nil(t, row.UserIsBot)
	assert.NotNil(t, row.IssueKeys)
	assert.Empty(t, row.IssueKeys)
}

func TestTicketTotalComments(t *testing.T) {
	ticket := Ticket{Comments: map[string]int{"Alice": 2, "Bob": 3}}
	assert.Equal(t, 5, ticket.TotalComments())
}
