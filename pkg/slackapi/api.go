// Package slackapi wraps the chat workspace API behind a narrow interface
// with rate limiting, bounded concurrency, and classified errors.
package slackapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zeebeeCoder/slack-intel/pkg/models"
)

// RawMessage is one message as returned by the workspace API, before
// user hydration and issue-key extraction.
type RawMessage struct {
	TS         string
	UserID     string
	Text       string
	ThreadTS   string
	ReplyCount int
	Reactions  []models.Reaction
	Files      []models.File
}

// Page is one page of history or thread replies.
type Page struct {
	Messages   []RawMessage
	NextCursor string
	HasMore    bool
}

// HistoryParams bounds a history page request. Oldest and Latest are
// native "<seconds>.<microseconds>" timestamp strings.
type HistoryParams struct {
	Oldest string
	Latest string
	Cursor string
}

// API is the capability set the fetcher needs from the chat platform.
type API interface {
	// History returns one page of channel history.
	History(ctx context.Context, channelID string, params HistoryParams) (*Page, error)

	// Replies returns one page of a thread's messages. The first message
	// of the first page duplicates the parent.
	Replies(ctx context.Context, channelID, threadTS, cursor string) (*Page, error)

	// User returns a user profile.
	User(ctx context.Context, userID string) (*models.User, error)
}

// FormatTS renders a time as a native API timestamp string.
func FormatTS(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}

// ParseTS converts a native "<seconds>.<microseconds>" timestamp to UTC.
func ParseTS(ts string) (time.Time, error) {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	var micro int64
	if frac != "" {
		// Right-pad so "123.4" means 400000 microseconds.
		if len(frac) < 6 {
			frac += strings.Repeat("0", 6-len(frac))
		}
		micro, err = strconv.ParseInt(frac[:6], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
	}
	return time.Unix(s, micro*1000).UTC(), nil
}

// ToMessage converts a raw API message into the domain model, extracting
// issue keys and attaching the user profile when one is supplied.
func (r RawMessage) ToMessage(user *models.User) (models.Message, error) {
	ts, err := ParseTS(r.TS)
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{
		MessageID:  r.TS,
		UserID:     r.UserID,
		Text:       r.Text,
		Timestamp:  ts,
		ThreadTS:   r.ThreadTS,
		ReplyCount: r.ReplyCount,
		UserInfo:   user,
		Reactions:  r.Reactions,
		Files:      r.Files,
		IssueKeys:  models.ExtractIssueKeys(r.Text),
	}, nil
}
