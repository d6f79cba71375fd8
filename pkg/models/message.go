package models

import "time"

// User represents a chat workspace user profile
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	RealName    string `json:"real_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	IsBot       bool   `json:"is_bot"`
}

// Reaction represents an emoji reaction on a message
type Reaction struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// File represents a file attachment on a message
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	URL      string `json:"url,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message represents a complete chat message with all metadata
type Message struct {
	MessageID  string     `json:"message_id"`
	UserID     string     `json:"user_id,omitempty"`
	Text       string     `json:"text"`
	Timestamp  time.Time  `json:"timestamp"`
	ThreadTS   string     `json:"thread_ts,omitempty"`
	ReplyCount int        `json:"reply_count"`
	UserInfo   *User      `json:"user_info,omitempty"`
	Reactions  []Reaction `json:"reactions,omitempty"`
	Files      []File     `json:"files,omitempty"`
	IssueKeys  []string   `json:"issue_keys,omitempty"`
}

// IsThreadParent reports whether the message starts a thread
func (m *Message) IsThreadParent() bool {
	return m.ThreadTS == m.MessageID && m.ReplyCount > 0
}

// IsThreadReply reports whether the message is a reply in someone else's thread
func (m *Message) IsThreadReply() bool {
	return m.ThreadTS != "" && m.ThreadTS != m.MessageID
}

// PartitionDate returns the message's own UTC calendar date (YYYY-MM-DD).
// Partitioning always uses this, never the ingestion date.
func (m *Message) PartitionDate() string {
	return m.Timestamp.UTC().Format("2006-01-02")
}

// Channel represents a channel configuration
type Channel struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Alias returns the string used in the channel= partition segment:
// the configured name, or "channel_<id>" when only an id is known.
func (c Channel) Alias() string {
	if c.Name != "" {
		return c.Name
	}
	return "channel_" + c.ID
}

// Row is the flat, persisted form of a message: one parquet row.
// Field order mirrors the on-disk schema. Optional columns are pointers
// so readers can distinguish null from empty.
type Row struct {
	MessageID      string     `json:"message_id"`
	UserID         *string    `json:"user_id"`
	Text           string     `json:"text"`
	Timestamp      string     `json:"timestamp"`
	ThreadTS       *string    `json:"thread_ts"`
	IsThreadParent bool       `json:"is_thread_parent"`
	IsThreadReply  bool       `json:"is_thread_reply"`
	ReplyCount     int64      `json:"reply_count"`
	UserName       *string    `json:"user_name"`
	UserRealName   *string    `json:"user_real_name"`
	UserEmail      *string    `json:"user_email"`
	UserIsBot      *bool      `json:"user_is_bot"`
	Reactions      []Reaction `json:"reactions"`
	Files          []File     `json:"files"`
	IssueKeys      []string   `json:"issue_keys"`
	HasReactions   bool       `json:"has_reactions"`
	HasFiles       bool       `json:"has_files"`
	HasThread      bool       `json:"has_thread"`

	// ChannelName is populated by multi-channel reads; it is not a column
	// of the single-channel partition files.
	ChannelName string `json:"channel_name,omitempty"`
}

// ToRow flattens the message into its persisted form. Issue keys are
// extracted here if the fetch path has not done so already.
func (m *Message) ToRow() Row {
	row := Row{
		MessageID:      m.MessageID,
		Text:           m.Text,
		Timestamp:      m.Timestamp.UTC().Format(time.RFC3339),
		IsThreadParent: m.IsThreadParent(),
		IsThreadReply:  m.IsThreadReply(),
		ReplyCount:     int64(m.ReplyCount),
		Reactions:      m.Reactions,
		Files:          m.Files,
		IssueKeys:      m.IssueKeys,
		HasReactions:   len(m.Reactions) > 0,
		HasFiles:       len(m.Files) > 0,
		HasThread:      false, // reserved column, see PARQUET schema notes
	}
	if m.IssueKeys == nil {
		row.IssueKeys = ExtractIssueKeys(m.Text)
	}
	if m.UserID != "" {
		row.UserID = strPtr(m.UserID)
	}
	if m.ThreadTS != "" {
		row.ThreadTS = strPtr(m.ThreadTS)
	}
	if m.UserInfo != nil {
		if m.UserInfo.Name != "" {
			row.UserName = strPtr(m.UserInfo.Name)
		}
		if m.UserInfo.RealName != "" {
			row.UserRealName = strPtr(m.UserInfo.RealName)
		}
		if m.UserInfo.Email != "" {
			row.UserEmail = strPtr(m.UserInfo.Email)
		}
		isBot := m.UserInfo.IsBot
		row.UserIsBot = &isBot
	}
	return row
}

func strPtr(s string) *string { return &s }
