// Package view renders reconstructed conversations into the text form
// consumed by humans and the summarization pipeline. Markers are fixed
// glyphs so repeated runs over the same data diff cleanly.
package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/zeebeeCoder/slack-intel/pkg/models"
	"github.com/zeebeeCoder/slack-intel/pkg/threads"
)

// Context carries the header fields of a view.
type Context struct {
	ChannelName string
	DateRange   string
	// Channels is set for merged multi-channel views.
	Channels []string
	// Tickets enables the enriched ticket block when metadata is cached.
	Tickets map[string]models.Ticket
}

// Formatter renders top-level entries to text.
type Formatter struct {
	// ResolveMentions rewrites <@U…> tokens to @display-name.
	ResolveMentions bool

	// Clock enables relative-time suffixes ("2 days ago"). Leave nil for
	// stable output.
	Clock func() time.Time

	userMapping map[string]string
}

// NewFormatter returns a Formatter with mention resolution enabled and no
// relative times.
func NewFormatter() *Formatter {
	return &Formatter{ResolveMentions: true}
}

// Format renders the view. cachedUsers supplies display names for users
// mentioned but not present as authors; it may be nil.
func (f *Formatter) Format(topLevels []threads.TopLevel, ctx Context, cachedUsers map[string]models.User) string {
	if len(topLevels) == 0 {
		return f.formatEmpty(ctx)
	}

	f.buildUserMapping(topLevels, cachedUsers)

	var lines []string
	lines = append(lines, f.header(ctx)...)
	lines = append(lines, "")

	messageCount := 0
	threadCount := 0
	totalReplies := 0

	for _, msg := range topLevels {
		messageCount++
		lines = append(lines, f.formatMessage(msg, messageCount)...)
		if len(ctx.Tickets) > 0 && len(msg.IssueKeys) > 0 {
			lines = append(lines, FormatTicketBlock(msg.IssueKeys, ctx.Tickets)...)
		}

		switch {
		case len(msg.Replies) > 0:
			threadCount++
			totalReplies += len(msg.Replies)
			lines = append(lines, "")
			expected := int(msg.ReplyCount)
			if msg.HasClippedReplies && expected > len(msg.Replies) {
				lines = append(lines, fmt.Sprintf("  🧵 THREAD REPLIES (showing %d of %d+ replies):", len(msg.Replies), expected))
			} else {
				lines = append(lines, "  🧵 THREAD REPLIES:")
			}
			for i, reply := range msg.Replies {
				lines = append(lines, f.formatReply(reply, i+1)...)
			}
			if msg.HasClippedReplies && expected > len(msg.Replies) {
				lines = append(lines, "")
				lines = append(lines, "  💡 Thread may have additional replies outside this time range")
			}
		case msg.IsOrphanedReply:
			lines = append(lines, "  🔗 Thread clipped (parent message outside time window)")
			lines = append(lines, "  💡 Widen date range to see full thread")
		case msg.HasClippedReplies:
			// Parent with no replies present at all.
			lines = append(lines, "")
			lines = append(lines, fmt.Sprintf("  🧵 THREAD REPLIES (showing 0 of %d+ replies):", msg.ReplyCount))
			lines = append(lines, "")
			lines = append(lines, "  💡 Thread may have additional replies outside this time range")
		}

		lines = append(lines, "", strings.Repeat("-", 60), "")
	}

	lines = append(lines,
		"📊 CONVERSATION SUMMARY:",
		fmt.Sprintf("   • Total Messages: %d", messageCount),
		fmt.Sprintf("   • Total Thread Replies: %d", totalReplies),
		fmt.Sprintf("   • Active Threads: %d", threadCount),
	)

	return strings.Join(lines, "\n")
}

func (f *Formatter) header(ctx Context) []string {
	lines := []string{strings.Repeat("=", 80)}
	if len(ctx.Channels) > 0 {
		lines = append(lines, "📱 SLACK CHANNELS: "+strings.Join(ctx.Channels, ", "))
	} else {
		lines = append(lines, "📱 SLACK CHANNEL: "+ctx.ChannelName)
	}
	if ctx.DateRange != "" {
		lines = append(lines, "⏰ TIME WINDOW: "+ctx.DateRange)
	}
	lines = append(lines, strings.Repeat("=", 80))
	return lines
}

func (f *Formatter) formatEmpty(ctx Context) string {
	lines := f.header(ctx)
	lines = append(lines, "", "No messages found in the specified time window.", "", strings.Repeat("=", 80))
	return strings.Join(lines, "\n")
}

func (f *Formatter) formatMessage(msg threads.TopLevel, number int) []string {
	clipped := ""
	if msg.IsClippedThread || msg.IsOrphanedReply {
		clipped = " (🔗 Thread clipped)"
	}

	lines := []string{fmt.Sprintf("💬 MESSAGE #%d%s", number, clipped)}
	lines = append(lines, fmt.Sprintf("👤 %s at %s:", f.authorName(msg.Row), f.formatTimestamp(msg.Timestamp)))
	lines = append(lines, "   "+f.resolveMentions(msg.Text))
	lines = append(lines, f.formatDetails(msg.Row, "   ")...)
	return lines
}

func (f *Formatter) formatReply(reply models.Row, number int) []string {
	lines := []string{fmt.Sprintf("    ↳ REPLY #%d: %s at %s:", number, f.authorName(reply), f.formatTimestamp(reply.Timestamp))}
	lines = append(lines, "       "+f.resolveMentions(reply.Text))
	lines = append(lines, f.formatDetails(reply, "       ")...)
	return lines
}

// formatDetails renders the reactions/files/issue-key lines shared by
// messages and replies.
func (f *Formatter) formatDetails(row models.Row, indent string) []string {
	var lines []string

	if len(row.Reactions) > 0 {
		parts := make([]string, 0, len(row.Reactions))
		for _, r := range row.Reactions {
			parts = append(parts, fmt.Sprintf("%s(%d)", r.Emoji, r.Count))
		}
		lines = append(lines, indent+"😊 Reactions: "+strings.Join(parts, ", "))
	}

	if len(row.Files) > 0 {
		parts := make([]string, 0, len(row.Files))
		for _, file := range row.Files {
			name := file.Name
			if name == "" {
				name = "unknown"
			}
			if file.Mimetype != "" {
				parts = append(parts, fmt.Sprintf("%s (%s)", name, file.Mimetype))
			} else {
				parts = append(parts, name)
			}
		}
		lines = append(lines, indent+"📎 Files: "+strings.Join(parts, ", "))
	}

	if len(row.IssueKeys) > 0 {
		lines = append(lines, indent+"🎫 JIRA: "+strings.Join(row.IssueKeys, ", "))
	}
	return lines
}

// FormatTicketBlock renders cached ticket metadata for the keys a view
// mentions, in mention order. Used by enriched views.
func FormatTicketBlock(keys []string, tickets map[string]models.Ticket) []string {
	var lines []string
	for _, key := range keys {
		t, ok := tickets[key]
		if !ok {
			continue
		}
		line := fmt.Sprintf("   🎫 %s: %s [%s", t.TicketID, t.Summary, t.Status)
		if t.Priority != "" {
			line += ", " + t.Priority
		}
		if t.Assignee != "" {
			line += ", " + t.Assignee
		}
		line += "]"
		lines = append(lines, line)
	}
	return lines
}

// authorName prefers real name, then handle, then the bare id.
func (f *Formatter) authorName(row models.Row) string {
	if row.UserRealName != nil && *row.UserRealName != "" {
		return *row.UserRealName
	}
	if row.UserName != nil && *row.UserName != "" {
		return *row.UserName
	}
	if row.UserID != nil && *row.UserID != "" {
		return *row.UserID
	}
	return "Unknown User"
}

// buildUserMapping seeds display names from the cached user file, then
// overlays message authors, whose joined fields are fresher.
func (f *Formatter) buildUserMapping(topLevels []threads.TopLevel, cachedUsers map[string]models.User) {
	f.userMapping = make(map[string]string)

	for id, u := range cachedUsers {
		name := u.RealName
		if name == "" {
			name = u.Name
		}
		if name == "" {
			name = id
		}
		f.userMapping[id] = name
	}

	addRow := func(row models.Row) {
		if row.UserID == nil || *row.UserID == "" {
			return
		}
		f.userMapping[*row.UserID] = f.authorName(row)
	}
	for _, tl := range topLevels {
		addRow(tl.Row)
		for _, reply := range tl.Replies {
			addRow(reply)
		}
	}
}

// resolveMentions rewrites <@U…> to @display-name for known users;
// unknown mentions stay verbatim.
func (f *Formatter) resolveMentions(text string) string {
	if !f.ResolveMentions || text == "" {
		return text
	}
	return models.MentionPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := models.MentionPattern.FindStringSubmatch(match)
		if name, ok := f.userMapping[sub[1]]; ok {
			return "@" + name
		}
		return match
	})
}

// formatTimestamp renders "YYYY-MM-DD HH:MM", with a relative suffix when
// a clock is configured.
func (f *Formatter) formatTimestamp(ts string) string {
	if ts == "" {
		return "unknown time"
	}
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		if len(ts) >= 16 {
			return ts[:16]
		}
		return ts
	}

	absolute := parsed.UTC().Format("2006-01-02 15:04")
	if f.Clock == nil {
		return absolute
	}
	return fmt.Sprintf("%s (%s)", absolute, relativeTime(f.Clock().Sub(parsed)))
}

func relativeTime(d time.Duration) string {
	seconds := d.Seconds()
	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s ago", unit)
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case seconds < 60:
		return "just now"
	case seconds < 3600:
		return plural(int(seconds/60), "min")
	case seconds < 86400:
		return plural(int(seconds/3600), "hour")
	case seconds < 604800:
		return plural(int(seconds/86400), "day")
	case seconds < 2592000:
		return plural(int(seconds/604800), "week")
	case seconds < 31536000:
		return plural(int(seconds/2592000), "month")
	default:
		return plural(int(seconds/31536000), "year")
	}
}
