package slackapi

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/zeebeeCoder/slack-intel/pkg/models"
)

const pageLimit = 1000

// Client implements API against the Slack web API.
type Client struct {
	api       *slack.Client
	tokenKind string
	log       zerolog.Logger
}

// NewClient creates a Slack-backed client. tokenKind ("user" or "bot") is
// recorded for logging only; behavior does not differ by token kind.
func NewClient(token, tokenKind string, logger zerolog.Logger) *Client {
	logger.Debug().Str("token_kind", tokenKind).Msg("initializing chat client")
	return &Client{
		api:       slack.New(token),
		tokenKind: tokenKind,
		log:       logger,
	}
}

// TokenKind returns which credential the client was built with.
func (c *Client) TokenKind() string { return c.tokenKind }

// History returns one page of channel history.
func (c *Client) History(ctx context.Context, channelID string, params HistoryParams) (*Page, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    params.Oldest,
		Latest:    params.Latest,
		Cursor:    params.Cursor,
		Limit:     pageLimit,
	})
	if err != nil {
		return nil, mapError("conversations.history", "channel="+channelID, err)
	}

	page := &Page{
		Messages:   make([]RawMessage, 0, len(resp.Messages)),
		NextCursor: resp.ResponseMetaData.NextCursor,
		HasMore:    resp.HasMore,
	}
	for i := range resp.Messages {
		page.Messages = append(page.Messages, convertMessage(&resp.Messages[i]))
	}
	return page, nil
}

// Replies returns one page of a thread's messages.
func (c *Client) Replies(ctx context.Context, channelID, threadTS, cursor string) (*Page, error) {
	msgs, hasMore, nextCursor, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: channelID,
		Timestamp: threadTS,
		Cursor:    cursor,
		Limit:     pageLimit,
	})
	if err != nil {
		return nil, mapError("conversations.replies", "thread="+threadTS, err)
	}

	page := &Page{
		Messages:   make([]RawMessage, 0, len(msgs)),
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}
	for i := range msgs {
		page.Messages = append(page.Messages, convertMessage(&msgs[i]))
	}
	return page, nil
}

// User returns a user profile.
func (c *Client) User(ctx context.Context, userID string) (*models.User, error) {
	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, mapError("users.info", "user="+userID, err)
	}
	return &models.User{
		ID:          user.ID,
		Name:        user.Name,
		RealName:    user.RealName,
		DisplayName: user.Profile.DisplayName,
		Email:       user.Profile.Email,
		IsBot:       user.IsBot,
	}, nil
}

func convertMessage(msg *slack.Message) RawMessage {
	raw := RawMessage{
		TS:         msg.Timestamp,
		UserID:     msg.User,
		Text:       msg.Text,
		ThreadTS:   msg.ThreadTimestamp,
		ReplyCount: msg.ReplyCount,
	}
	for _, r := range msg.Reactions {
		raw.Reactions = append(raw.Reactions, models.Reaction{
			Emoji: r.Name,
			Count: r.Count,
			Users: r.Users,
		})
	}
	for _, f := range msg.Files {
		raw.Files = append(raw.Files, models.File{
			ID:       f.ID,
			Name:     f.Name,
			Mimetype: f.Mimetype,
			URL:      f.URLPrivate,
			Size:     int64(f.Size),
		})
	}
	return raw
}
