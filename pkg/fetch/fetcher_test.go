package fetch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeebeeCoder/slack-intel/pkg/models"
	"github.com/zeebeeCoder/slack-intel/pkg/slackapi"
	"github.com/zeebeeCoder/slack-intel/pkg/timewindow"
	"github.com/zeebeeCoder/slack-intel/pkg/users"
)

// fakeAPI implements slackapi.API with function fields, in the style of the
// package's other mocks.
type fakeAPI struct {
	historyFunc func(ctx context.Context, channelID string, params slackapi.HistoryParams) (*slackapi.Page, error)
	repliesFunc func(ctx context.Context, channelID, threadTS, cursor string) (*slackapi.Page, error)
	userFunc    func(ctx context.Context, userID string) (*models.User, error)

	userCalls atomic.Int64
}

func (f *fakeAPI) History(ctx context.Context, channelID string, params slackapi.HistoryParams) (*slackapi.Page, error) {
	if f.historyFunc != nil {
		return f.historyFunc(ctx, channelID, params)
	}
	return &slackapi.Page{}, nil
}

func (f *fakeAPI) Replies(ctx context.Context, channelID, threadTS, cursor string) (*slackapi.Page, error) {
	if f.repliesFunc != nil {
		return f.repliesFunc(ctx, channelID, threadTS, cursor)
	}
	return &slackapi.Page{}, nil
}

func (f *fakeAPI) User(ctx context.Context, userID string) (*models.User, error) {
	f.userCalls.Add(1)
	if f.userFunc != nil {
		return f.userFunc(ctx, userID)
	}
	return &models.User{ID: userID, RealName: "User " + userID}, nil
}

func testWindow() timewindow.Window {
	return timewindow.Window{Days: 1, End: time.Date(2025, 10, 20, 12, 0, 0, 0, time.UTC)}
}

func newFetcher(api slackapi.API) *Fetcher {
	cache := users.New(api.User)
	return New(api, cache, zerolog.Nop())
}

func TestGetMessagesPaginatesHistory(t *testing.T) {
	fake := &fakeAPI{}
	fake.historyFunc = func(ctx context.Context, channelID string, params slackapi.HistoryParams) (*slackapi.Page, error) {
		if params.Cursor == "" {
			return &slackapi.Page{
				Messages:   []slackapi.RawMessage{{TS: "100.000001", UserID: "U1", Text: "one"}},
				NextCursor: "page2",
				HasMore:    true,
			}, nil
		}
		return &slackapi.Page{
			Messages: []slackapi.RawMessage{{TS: "101.000001", UserID: "U1", Text: "two"}},
		}, nil
	}

	msgs, err := newFetcher(fake).GetMessages(context.Background(), models.Channel{ID: "C1"}, testWindow())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "100.000001", msgs[0].MessageID)
	assert.Equal(t, "101.000001", msgs[1].MessageID)
	// Same author on both pages: the cache coalesces into one fetch.
	assert.Equal(t, int64(1), fake.userCalls.Load())
	require.NotNil(t, msgs[0].UserInfo)
	assert.Equal(t, "User U1", msgs[0].UserInfo.RealName)
}

func TestGetMessagesExpandsThreads(t *testing.T) {
	fake := &fakeAPI{}
	fake.historyFunc = func(ctx context.Context, channelID string, params slackapi.HistoryParams) (*slackapi.Page, error) {
		return &slackapi.Page{Messages: []slackapi.RawMessage{
			{TS: "100.000001", UserID: "U1", Text: "parent", ThreadTS: "100.000001", ReplyCount: 2},
			{TS: "105.000001", UserID: "U2", Text: "standalone"},
		}}, nil
	}
	fake.repliesFunc = func(ctx context.Context, channelID, threadTS, cursor string) (*slackapi.Page, error) {
		require.Equal(t, "100.000001", threadTS)
		return &slackapi.Page{Messages: []slackapi.RawMessage{
			{TS: "100.000001", UserID: "U1", Text: "parent", ThreadTS: "100.000001", ReplyCount: 2},
			{TS: "101.000001", UserID: "U3", Text: "reply one", ThreadTS: "100.000001"},
			{TS: "102.000001", UserID: "U3", Text: "reply two", ThreadTS: "100.000001"},
		}}, nil
	}

	msgs, err := newFetcher(fake).GetMessages(context.Background(), models.Channel{ID: "C1"}, testWindow())
	require.NoError(t, err)
	require.Len(t, msgs, 4, "parent + standalone + 2 replies, parent duplicate dropped")

	byID := make(map[string]*models.Message)
	for i := range msgs {
		byID[msgs[i].MessageID] = &msgs[i]
	}
	assert.Equal(t, "parent", byID["100.000001"].Text)
	assert.True(t, byID["101.000001"].IsThreadReply())
	require.NotNil(t, byID["101.000001"].UserInfo)
	assert.Equal(t, "User U3", byID["101.000001"].UserInfo.RealName)
}

func TestGetMessagesHistoryErrorIsFatal(t *testing.T) {
	fake := &fakeAPI{}
	fake.historyFunc = func(ctx context.Context, channelID string, params slackapi.HistoryParams) (*slackapi.Page, error) {
		return nil, errors.New("channel_not_found")
	}

	_, err := newFetcher(fake).GetMessages(context.Background(), models.Channel{ID: "C1"}, testWindow())
	assert.Error(t, err)
}

func TestGetMessagesThreadErrorIsWarning(t *testing.T) {
	fake := &fakeAPI{}
	fake.historyFunc = func(ctx context.Context, channelID string, params slackapi.HistoryParams) (*slackapi.Page, error) {
		return &slackapi.Page{Messages: []slackapi.RawMessage{
			{TS: "100.000001", UserID: "U1", ThreadTS: "100.000001", ReplyCount: 3},
		}}, nil
	}
	fake.repliesFunc = func(ctx context.Context, channelID, threadTS, cursor string) (*slackapi.Page, error) {
		return nil, errors.New("thread_not_found")
	}

	msgs, err := newFetcher(fake).GetMessages(context.Background(), models.Channel{ID: "C1"}, testWindow())
	require.NoError(t, err, "per-thread failures must not fail the call")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsThreadParent(), "the parent survives without its replies")
}

func TestGetMessagesUserErrorKeepsBareID(t *testing.T) {
	fake := &fakeAPI{}
	fake.historyFunc = func(ctx context.Context, channelID string, params slackapi.HistoryParams) (*slackapi.Page, error) {
		return &slackapi.Page{Messages: []slackapi.RawMessage{
			{TS: "100.000001", UserID: "U404", Text: "hello"},
		}}, nil
	}
	fake.userFunc = func(ctx context.Context, userID string) (*models.User, error) {
		return nil, errors.New("user_not_found")
	}

	msgs, err := newFetcher(fake).GetMessages(context.Background(), models.Channel{ID: "C1"}, testWindow())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "U404", msgs[0].UserID)
	assert.Nil(t, msgs[0].UserInfo)
}

func TestGetMessagesDuplicateIDTimelineWins(t *testing.T) {
	fake := &fakeAPI{}
	fake.historyFunc = func(ctx context.Context, channelID string, params slackapi.HistoryParams) (*slackapi.Page, error) {
		return &slackapi.Page{Messages: []slackapi.RawMessage{
			{TS: "100.000001", UserID: "U1", Text: "parent", ThreadTS: "100.000001", ReplyCount: 1},
			{TS: "101.000001", UserID: "U1", Text: "timeline copy", ThreadTS: "100.000001"},
		}}, nil
	}
	fake.repliesFunc = func(ctx context.Context, channelID, threadTS, cursor string) (*slackapi.Page, error) {
		return &slackapi.Page{Messages: []slackapi.RawMessage{
			{TS: "100.000001", Text: "parent"},
			{TS: "101.000001", UserID: "U1", Text: "thread copy", ThreadTS: "100.000001"},
		}}, nil
	}

	msgs, err := newFetcher(fake).GetMessages(context.Background(), models.Channel{ID: "C1"}, testWindow())
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	for _, m := range msgs {
		if m.MessageID == "101.000001" {
			assert.Equal(t, "timeline copy", m.Text)
		}
	}
}

func TestGetMessagesMalformedTimestampDropped(t *testing.T) {
	fake := &fakeAPI{}
	fake.historyFunc = func(ctx context.Context, channelID string, params slackapi.HistoryParams) (*slackapi.Page, error) {
		return &slackapi.Page{Messages: []slackapi.RawMessage{
			{TS: "garbage", Text: "bad"},
			{TS: "100.000001", Text: "good"},
		}}, nil
	}

	msgs, err := newFetcher(fake).GetMessages(context.Background(), models.Channel{ID: "C1"}, testWindow())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "100.000001", msgs[0].MessageID)
}
