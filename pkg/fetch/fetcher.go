// Package fetch implements the channel ingestion read path: paginated
// history, user hydration, and thread expansion.
package fetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zeebeeCoder/slack-intel/pkg/models"
	"github.com/zeebeeCoder/slack-intel/pkg/slackapi"
	"github.com/zeebeeCoder/slack-intel/pkg/timewindow"
	"github.com/zeebeeCoder/slack-intel/pkg/users"
)

// DefaultGatherLimit bounds each fan-out (threads, users) independently of
// the client's own request pool.
const DefaultGatherLimit = 10

// Fetcher retrieves a channel's messages for a time window.
type Fetcher struct {
	api         slackapi.API
	cache       *users.Cache
	log         zerolog.Logger
	gatherLimit int
}

// New creates a Fetcher. The cache is shared across channels for the
// lifetime of a run.
func New(api slackapi.API, cache *users.Cache, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		api:         api,
		cache:       cache,
		log:         logger,
		gatherLimit: DefaultGatherLimit,
	}
}

// GetMessages returns the channel's timeline messages for the window plus
// all replies of threads rooted in it. Replies outside the window are kept:
// thread expansion is intentionally unbounded by the window. The result is
// unsorted; ordering is established by the reader.
//
// History page errors are fatal. Per-thread and per-user failures are
// logged and skipped; affected messages are still emitted.
func (f *Fetcher) GetMessages(ctx context.Context, channel models.Channel, window timewindow.Window) ([]models.Message, error) {
	timeline, err := f.fetchHistory(ctx, channel.ID, window)
	if err != nil {
		return nil, fmt.Errorf("fetching history for channel %s: %w", channel.ID, err)
	}
	f.log.Debug().
		Str("channel", channel.ID).
		Int("timeline", len(timeline)).
		Msg("history fetched")

	f.hydrateUsers(ctx, timeline)

	replies := f.fetchThreadReplies(ctx, channel.ID, timeline)
	f.hydrateUsers(ctx, replies)

	// Duplicate ids across timeline and thread pages are not expected, but
	// when they occur the timeline row wins and the reply copy is dropped.
	seen := make(map[string]struct{}, len(timeline)+len(replies))
	messages := make([]models.Message, 0, len(timeline)+len(replies))
	for _, raw := range timeline {
		if _, dup := seen[raw.TS]; dup {
			continue
		}
		seen[raw.TS] = struct{}{}
		if msg, ok := f.convert(raw); ok {
			messages = append(messages, msg)
		}
	}
	for _, raw := range replies {
		if _, dup := seen[raw.TS]; dup {
			f.log.Debug().Str("message", raw.TS).Msg("dropping duplicate thread copy of timeline message")
			continue
		}
		seen[raw.TS] = struct{}{}
		if msg, ok := f.convert(raw); ok {
			messages = append(messages, msg)
		}
	}

	f.log.Info().
		Str("channel", channel.Alias()).
		Int("total", len(messages)).
		Int("timeline", len(timeline)).
		Int("thread_replies", len(replies)).
		Msg("fetched messages")
	return messages, nil
}

// fetchHistory pages through conversations.history until the cursor is
// exhausted. Any page error fails the whole call.
func (f *Fetcher) fetchHistory(ctx context.Context, channelID string, window timewindow.Window) ([]slackapi.RawMessage, error) {
	params := slackapi.HistoryParams{
		Oldest: slackapi.FormatTS(window.Start()),
		Latest: slackapi.FormatTS(window.EndTime()),
	}

	var all []slackapi.RawMessage
	for {
		page, err := f.api.History(ctx, channelID, params)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Messages...)
		if page.NextCursor == "" {
			return all, nil
		}
		params.Cursor = page.NextCursor
	}
}

// hydrateUsers warms the user cache for every distinct author in msgs.
// Failures are warnings: the message keeps its bare user id.
func (f *Fetcher) hydrateUsers(ctx context.Context, msgs []slackapi.RawMessage) {
	ids := make(map[string]struct{})
	for _, m := range msgs {
		if m.UserID != "" {
			if _, ok := f.cache.Lookup(m.UserID); !ok {
				ids[m.UserID] = struct{}{}
			}
		}
	}
	if len(ids) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.gatherLimit)
	for id := range ids {
		id := id
		g.Go(func() error {
			if _, err := f.cache.Get(gctx, id); err != nil {
				f.log.Warn().Str("user", id).Err(err).Msg("failed to fetch user info")
			}
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors; failures are logged above
}

// fetchThreadReplies fans out over thread parents and gathers their
// replies. A failed thread is logged and omitted; its parent remains.
func (f *Fetcher) fetchThreadReplies(ctx context.Context, channelID string, timeline []slackapi.RawMessage) []slackapi.RawMessage {
	var parents []string
	for _, m := range timeline {
		if m.ThreadTS == m.TS && m.ReplyCount > 0 {
			parents = append(parents, m.TS)
		}
	}
	if len(parents) == 0 {
		return nil
	}
	f.log.Debug().Int("threads", len(parents)).Msg("expanding threads")

	var mu sync.Mutex
	var replies []slackapi.RawMessage

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.gatherLimit)
	for _, threadTS := range parents {
		threadTS := threadTS
		g.Go(func() error {
			batch, err := f.fetchOneThread(gctx, channelID, threadTS)
			if err != nil {
				f.log.Warn().Str("thread", threadTS).Err(err).Msg("failed to fetch thread replies")
				return nil
			}
			mu.Lock()
			replies = append(replies, batch...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return replies
}

// fetchOneThread pages through one thread. The first message of the first
// page duplicates the parent and is dropped.
func (f *Fetcher) fetchOneThread(ctx context.Context, channelID, threadTS string) ([]slackapi.RawMessage, error) {
	var (
		all    []slackapi.RawMessage
		cursor string
		first  = true
	)
	for {
		page, err := f.api.Replies(ctx, channelID, threadTS, cursor)
		if err != nil {
			return nil, err
		}
		msgs := page.Messages
		if first && len(msgs) > 0 {
			msgs = msgs[1:]
			first = false
		}
		all = append(all, msgs...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// convert turns a raw row into a Message with cached user info attached.
// A malformed timestamp is logged and the row is dropped.
func (f *Fetcher) convert(raw slackapi.RawMessage) (models.Message, bool) {
	var user *models.User
	if raw.UserID != "" {
		user, _ = f.cache.Lookup(raw.UserID)
	}
	msg, err := raw.ToMessage(user)
	if err != nil {
		f.log.Warn().Str("message", raw.TS).Err(err).Msg("dropping message with malformed timestamp")
		return models.Message{}, false
	}
	return msg, true
}
