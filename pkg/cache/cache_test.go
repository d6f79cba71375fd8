package cache

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeebeeCoder/slack-intel/pkg/apierr"
	"github.com/zeebeeCoder/slack-intel/pkg/models"
)

func fixedClock() time.Time {
	return time.Date(2025, 10, 21, 8, 0, 0, 0, time.UTC)
}

func testMessages() []models.Message {
	return []models.Message{
		{
			MessageID:  "1760572740.000100",
			UserID:     "U1",
			Text:       "Fixed PRD-16975 and PRD-16975 and FOO-1",
			Timestamp:  time.Date(2025, 10, 15, 23, 59, 0, 0, time.UTC),
			ThreadTS:   "1760572740.000100",
			ReplyCount: 2,
			UserInfo:   &models.User{ID: "U1", Name: "alice", RealName: "Alice Chen", Email: "alice@example.com"},
			Reactions:  []models.Reaction{{Emoji: "rocket", Count: 2, Users: []string{"U2", "U3"}}},
			Files:      []models.File{{ID: "F1", Name: "design.pdf", Mimetype: "application/pdf", URL: "https://files/F1", Size: 1024}},
			IssueKeys:  []string{"PRD-16975", "FOO-1"},
		},
		{
			MessageID: "1760572000.000200",
			Text:      "channel joined",
			Timestamp: time.Date(2025, 10, 15, 23, 46, 40, 0, time.UTC),
		},
	}
}

func TestSaveAndReadMessagesRoundTrip(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(root, zerolog.Nop())
	reader := NewReader(root, zerolog.Nop())
	channel := models.Channel{Name: "eng", ID: "C123"}

	path, err := writer.SaveMessages(channel, "2025-10-15", testMessages())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, filepath.Join("dt=2025-10-15", "channel=eng", "data.parquet")))

	rows, err := reader.ReadChannel(context.Background(), "eng", "2025-10-15")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Sorted by timestamp: the system message first.
	assert.Equal(t, "1760572000.000200", rows[0].MessageID)
	assert.Nil(t, rows[0].UserID, "absent user_id must round-trip as null")
	assert.Nil(t, rows[0].UserIsBot)
	assert.Empty(t, rows[0].IssueKeys)

	parent := rows[1]
	assert.Equal(t, "1760572740.000100", parent.MessageID)
	require.NotNil(t, parent.UserID)
	assert.Equal(t, "U1", *parent.UserID)
	assert.Equal(t, "2025-10-15T23:59:00Z", parent.Timestamp)
	assert.True(t, parent.IsThreadParent)
	assert.False(t, parent.IsThreadReply)
	assert.Equal(t, int64(2), parent.ReplyCount)
	assert.Equal(t, []string{"PRD-16975", "FOO-1"}, parent.IssueKeys)
	assert.True(t, parent.HasReactions)
	assert.True(t, parent.HasFiles)
	assert.False(t, parent.HasThread)
	require.Len(t, parent.Reactions, 1)
	assert.Equal(t, models.Reaction{Emoji: "rocket", Count: 2, Users: []string{"U2", "U3"}}, parent.Reactions[0])
	require.Len(t, parent.Files, 1)
	assert.Equal(t, int64(1024), parent.Files[0].Size)
	require.NotNil(t, parent.UserRealName)
	assert.Equal(t, "Alice Chen", *parent.UserRealName)
}

func TestSaveMessagesEmptyInput(t *testing.T) {
	writer := NewWriter(t.TempDir(), zerolog.Nop())
	path, err := writer.SaveMessages(models.Channel{Name: "eng"}, "2025-10-15", nil)
	require.NoError(t, err)
	assert.Equal(t, "", path, "empty input writes no file")
}

func TestSaveMessagesInvalidDate(t *testing.T) {
	writer := NewWriter(t.TempDir(), zerolog.Nop())
	_, err := writer.SaveMessages(models.Channel{Name: "eng"}, "15-10-2025", testMessages())
	require.Error(t, err)
	assert.Equal(t, apierr.KindConfig, apierr.KindOf(err))
}

func TestSaveMessagesDuplicateIDIsSchemaError(t *testing.T) {
	writer := NewWriter(t.TempDir(), zerolog.Nop())
	msgs := testMessages()
	msgs = append(msgs, msgs[0])
	_, err := writer.SaveMessages(models.Channel{Name: "eng"}, "2025-10-15", msgs)
	require.Error(t, err)
	assert.Equal(t, apierr.KindSchema, apierr.KindOf(err))
}

func TestSaveMessagesOverwriteIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(root, zerolog.Nop()).WithClock(fixedClock)
	channel := models.Channel{Name: "eng"}

	path1, err := writer.SaveMessages(channel, "2025-10-15", testMessages())
	require.NoError(t, err)
	first, err := os.ReadFile(path1)
	require.NoError(t, err)

	path2, err := writer.SaveMessages(channel, "2025-10-15", testMessages())
	require.NoError(t, err)
	assert.Equal(t, path1, path2)
	second, err := os.ReadFile(path2)
	require.NoError(t, err)

	assert.Equal(t, sha256.Sum256(first), sha256.Sum256(second), "same batch twice must be byte-identical")
}

func TestReadChannelMissingPartition(t *testing.T) {
	reader := NewReader(t.TempDir(), zerolog.Nop())
	rows, err := reader.ReadChannel(context.Background(), "nope", "2025-10-15")
	require.NoError(t, err, "missing partitions are empty results, not errors")
	assert.Empty(t, rows)
}

func TestReadChannelAliasFallback(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(root, zerolog.Nop())
	reader := NewReader(root, zerolog.Nop())

	// Written by id only: partition lands under channel_C999.
	_, err := writer.SaveMessages(models.Channel{ID: "C999"}, "2025-10-15", testMessages())
	require.NoError(t, err)

	rows, err := reader.ReadChannel(context.Background(), "C999", "2025-10-15")
	require.NoError(t, err)
	assert.Len(t, rows, 2, "a raw id must find the channel_<id> partition")
}

func TestReadChannelRangeSkipsMissingDays(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(root, zerolog.Nop())
	reader := NewReader(root, zerolog.Nop())
	channel := models.Channel{Name: "eng"}

	day1 := []models.Message{{
		MessageID: "100.000001",
		Text:      "day one",
		Timestamp: time.Date(2025, 10, 18, 10, 0, 0, 0, time.UTC),
	}}
	day3 := []models.Message{{
		MessageID: "300.000001",
		Text:      "day three",
		Timestamp: time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC),
	}}
	_, err := writer.SaveMessages(channel, "2025-10-18", day1)
	require.NoError(t, err)
	_, err = writer.SaveMessages(channel, "2025-10-20", day3)
	require.NoError(t, err)

	rows, err := reader.ReadChannelRange(context.Background(), "eng", "2025-10-18", "2025-10-20")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "100.000001", rows[0].MessageID)
	assert.Equal(t, "300.000001", rows[1].MessageID)
}

func TestReadAllChannelsTagsChannelName(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(root, zerolog.Nop())
	reader := NewReader(root, zerolog.Nop())

	a := []models.Message{{MessageID: "100.000001", Text: "from a", Timestamp: time.Date(2025, 10, 18, 9, 0, 0, 0, time.UTC)}}
	b := []models.Message{{MessageID: "200.000001", Text: "from b", Timestamp: time.Date(2025, 10, 18, 10, 0, 0, 0, time.UTC)}}
	_, err := writer.SaveMessages(models.Channel{Name: "alpha"}, "2025-10-18", a)
	require.NoError(t, err)
	_, err = writer.SaveMessages(models.Channel{Name: "beta"}, "2025-10-18", b)
	require.NoError(t, err)

	rows, err := reader.ReadAllChannels(context.Background(), "2025-10-18")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alpha", rows[0].ChannelName)
	assert.Equal(t, "beta", rows[1].ChannelName)
}

func TestReadChannelColumnsProjection(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(root, zerolog.Nop())
	reader := NewReader(root, zerolog.Nop())

	_, err := writer.SaveMessages(models.Channel{Name: "eng"}, "2025-10-15", testMessages())
	require.NoError(t, err)

	rows, err := reader.ReadChannelColumns(context.Background(), "eng", "2025-10-15",
		[]string{"user_id", "user_name", "user_real_name"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var hydrated *models.Row
	for i := range rows {
		if rows[i].UserID != nil {
			hydrated = &rows[i]
		}
	}
	require.NotNil(t, hydrated)
	assert.Equal(t, "U1", *hydrated.UserID)
	require.NotNil(t, hydrated.UserRealName)
	assert.Equal(t, "Alice Chen", *hydrated.UserRealName)
	assert.Empty(t, hydrated.Text, "unprojected columns stay zero")

	_, err = reader.ReadChannelColumns(context.Background(), "eng", "2025-10-15", []string{"reactions"})
	assert.Error(t, err, "nested columns cannot be projected")
}

func TestSaveAndReadUsers(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(root, zerolog.Nop()).WithClock(fixedClock)
	reader := NewReader(root, zerolog.Nop())

	path, err := writer.SaveUsers([]models.User{
		{ID: "U2", Name: "bob", RealName: "Bob Ray", IsBot: false},
		{ID: "U1", Name: "alice", RealName: "Alice Chen", Email: "alice@example.com", IsBot: false},
		{ID: "UBOT", Name: "deploybot", IsBot: true},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "users.parquet"), path)

	usersByID, err := reader.ReadUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, usersByID, 3)
	assert.Equal(t, "Alice Chen", usersByID["U1"].RealName)
	assert.True(t, usersByID["UBOT"].IsBot)
	assert.Equal(t, "", usersByID["UBOT"].RealName)
}

func TestSaveUsersEmptyAndMissingRead(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(root, zerolog.Nop())
	reader := NewReader(root, zerolog.Nop())

	path, err := writer.SaveUsers(nil)
	require.NoError(t, err)
	assert.Equal(t, "", path)

	usersByID, err := reader.ReadUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, usersByID)
}

func TestFindUserByName(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(root, zerolog.Nop())
	reader := NewReader(root, zerolog.Nop())

	_, err := writer.SaveUsers([]models.User{
		{ID: "U1", Name: "alice", RealName: "Alice Chen"},
		{ID: "U2", Name: "bob", RealName: "Bob Ray"},
	})
	require.NoError(t, err)

	id, ok, err := reader.FindUserByName(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "U1", id)

	id, ok, err = reader.FindUserByName(context.Background(), "Ray")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "U2", id)

	_, ok, err = reader.FindUserByName(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveAndReadTicketsViaInfo(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(root, zerolog.Nop()).WithClock(fixedClock)

	points := int64(5)
	tickets := []models.Ticket{{
		TicketID:    "PRD-16975",
		Summary:     "Fix pagination",
		Status:      "In Progress",
		Priority:    "High",
		IssueType:   "Bug",
		Assignee:    "Alice Chen",
		Created:     time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC),
		Updated:     time.Date(2025, 10, 14, 17, 0, 0, 0, time.UTC),
		DueDate:     "2025-10-30",
		StoryPoints: &points,
		Blocks:      []string{"PRD-17000"},
		Components:  []string{"ingest"},
		Labels:      []string{"backend"},
		Project:     "PRD",
		Comments:    map[string]int{"Alice Chen": 2, "Bob Ray": 1},
		Sprints:     []models.Sprint{{Name: "Sprint 12", State: "active"}},
	}}

	path, err := writer.SaveIssueTickets("2025-10-21", tickets)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, filepath.Join("issue_tickets", "dt=2025-10-21", "data.parquet")))

	// Empty input writes nothing.
	empty, err := writer.SaveIssueTickets("2025-10-21", nil)
	require.NoError(t, err)
	assert.Equal(t, "", empty)

	reader := NewReader(root, zerolog.Nop())
	info, err := reader.PartitionInfo()
	require.NoError(t, err)
	require.Len(t, info.Partitions, 1)
	assert.Equal(t, "issue_tickets", info.Partitions[0].Entity)
	assert.Equal(t, int64(1), info.Partitions[0].Rows)
	assert.Equal(t, info.Partitions[0].Rows, info.TotalRows)
	assert.Positive(t, info.TotalBytes)
}

func TestPartitionInfoCountsAllEntities(t *testing.T) {
	root := t.TempDir()
	writer := NewWriter(root, zerolog.Nop())
	reader := NewReader(root, zerolog.Nop())

	_, err := writer.SaveMessages(models.Channel{Name: "eng"}, "2025-10-15", testMessages())
	require.NoError(t, err)
	_, err = writer.SaveUsers([]models.User{{ID: "U1"}})
	require.NoError(t, err)

	info, err := reader.PartitionInfo()
	require.NoError(t, err)
	assert.Len(t, info.Partitions, 2)
	assert.Equal(t, int64(3), info.TotalRows)
}
