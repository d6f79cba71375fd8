package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/rs/zerolog"

	"github.com/zeebeeCoder/slack-intel/pkg/apierr"
	"github.com/zeebeeCoder/slack-intel/pkg/models"
	"github.com/zeebeeCoder/slack-intel/pkg/timewindow"
)

// Store is the capability set writers expose to the ingest pipeline.
type Store interface {
	// SaveMessages writes one (dt, channel) message partition. Returns the
	// written path, or "" with a nil error for empty input.
	SaveMessages(channel models.Channel, date string, messages []models.Message) (string, error)

	// SaveUsers writes the workspace-wide users.parquet file.
	SaveUsers(users []models.User) (string, error)

	// SaveIssueTickets writes one dt ticket partition.
	SaveIssueTickets(date string, tickets []models.Ticket) (string, error)
}

// Writer persists entities to the partitioned Parquet dataset. Each call
// produces exactly one file; re-invoking with the same partition replaces
// it atomically (write-to-temp then rename). Writes to the same partition
// are serialized; distinct partitions may write concurrently.
type Writer struct {
	root string
	log  zerolog.Logger

	// now stamps cached_at; injectable so tests get deterministic files.
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWriter creates a Writer rooted at the cache directory.
func NewWriter(root string, logger zerolog.Logger) *Writer {
	return &Writer{
		root:  root,
		log:   logger,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the cached_at clock. Test hook.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

func (w *Writer) partitionLock(path string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[path]
	if !ok {
		l = &sync.Mutex{}
		w.locks[path] = l
	}
	return l
}

// SaveMessages writes one message partition. Rows are sorted by
// (timestamp, message_id) so identical batches produce identical files.
func (w *Writer) SaveMessages(channel models.Channel, date string, messages []models.Message) (string, error) {
	if !timewindow.ValidDate(date) {
		return "", apierr.New(apierr.KindConfig, "cache.save_messages", "", fmt.Errorf("invalid date format %q, expected YYYY-MM-DD", date))
	}
	if len(messages) == 0 {
		return "", nil
	}

	rows := make([]models.Row, 0, len(messages))
	for i := range messages {
		rows = append(rows, messages[i].ToRow())
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Timestamp != rows[j].Timestamp {
			return rows[i].Timestamp < rows[j].Timestamp
		}
		return rows[i].MessageID < rows[j].MessageID
	})

	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r.MessageID == "" || r.Timestamp == "" {
			return "", apierr.New(apierr.KindSchema, "cache.save_messages", "message="+r.MessageID, fmt.Errorf("row missing required field"))
		}
		if _, dup := seen[r.MessageID]; dup {
			return "", apierr.New(apierr.KindSchema, "cache.save_messages", "message="+r.MessageID, fmt.Errorf("duplicate message_id within partition"))
		}
		seen[r.MessageID] = struct{}{}
	}

	rec := buildMessageRecord(rows)
	defer rec.Release()

	path := filepath.Join(w.root, "messages", "dt="+date, "channel="+channel.Alias(), "data.parquet")
	if err := w.writeFile(path, messageSchema(), rec); err != nil {
		return "", err
	}
	w.log.Debug().Str("path", path).Int("rows", len(rows)).Msg("wrote message partition")
	return path, nil
}

// SaveUsers writes the unpartitioned users file. cached_at is the current
// UTC instant, uniform within the batch.
func (w *Writer) SaveUsers(users []models.User) (string, error) {
	if len(users) == 0 {
		return "", nil
	}

	sorted := make([]models.User, len(users))
	copy(sorted, users)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	cachedAt := w.now().UTC().Format(time.RFC3339)
	rec := buildUserRecord(sorted, cachedAt)
	defer rec.Release()

	path := filepath.Join(w.root, "users.parquet")
	if err := w.writeFile(path, userSchema(), rec); err != nil {
		return "", err
	}
	w.log.Debug().Str("path", path).Int("rows", len(sorted)).Msg("wrote user cache")
	return path, nil
}

// SaveIssueTickets writes one ticket partition for the given date.
func (w *Writer) SaveIssueTickets(date string, tickets []models.Ticket) (string, error) {
	if !timewindow.ValidDate(date) {
		return "", apierr.New(apierr.KindConfig, "cache.save_issue_tickets", "", fmt.Errorf("invalid date format %q, expected YYYY-MM-DD", date))
	}
	if len(tickets) == 0 {
		return "", nil
	}

	sorted := make([]models.Ticket, len(tickets))
	copy(sorted, tickets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TicketID < sorted[j].TicketID })

	cachedAt := w.now().UTC().Format(time.RFC3339)
	rec := buildTicketRecord(sorted, cachedAt)
	defer rec.Release()

	path := filepath.Join(w.root, "issue_tickets", "dt="+date, "data.parquet")
	if err := w.writeFile(path, ticketSchema(), rec); err != nil {
		return "", err
	}
	w.log.Debug().Str("path", path).Int("rows", len(sorted)).Msg("wrote ticket partition")
	return path, nil
}

// writeFile writes one record to a temp file in the partition directory
// and renames it over the target for crash safety.
func (w *Writer) writeFile(path string, schema *arrow.Schema, rec arrow.Record) error {
	lock := w.partitionLock(path)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apierr.New(apierr.KindIO, "cache.write", "", fmt.Errorf("creating %s: %w", dir, err))
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return apierr.New(apierr.KindIO, "cache.write", "", fmt.Errorf("creating %s: %w", tmp, err))
	}

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return apierr.New(apierr.KindIO, "cache.write", "", fmt.Errorf("opening parquet writer: %w", err))
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		os.Remove(tmp)
		return apierr.New(apierr.KindIO, "cache.write", "", fmt.Errorf("writing %s: %w", tmp, err))
	}
	if err := fw.Close(); err != nil {
		os.Remove(tmp)
		return apierr.New(apierr.KindIO, "cache.write", "", fmt.Errorf("closing %s: %w", tmp, err))
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apierr.New(apierr.KindIO, "cache.write", "", fmt.Errorf("renaming into place: %w", err))
	}
	return nil
}

func buildMessageRecord(rows []models.Row) arrow.Record {
	bld := array.NewRecordBuilder(memory.DefaultAllocator, messageSchema())
	defer bld.Release()

	for _, r := range rows {
		bld.Field(0).(*array.StringBuilder).Append(r.MessageID)
		appendStringPtr(bld.Field(1).(*array.StringBuilder), r.UserID)
		bld.Field(2).(*array.StringBuilder).Append(r.Text)
		bld.Field(3).(*array.StringBuilder).Append(r.Timestamp)
		appendStringPtr(bld.Field(4).(*array.StringBuilder), r.ThreadTS)
		bld.Field(5).(*array.BooleanBuilder).Append(r.IsThreadParent)
		bld.Field(6).(*array.BooleanBuilder).Append(r.IsThreadReply)
		bld.Field(7).(*array.Int64Builder).Append(r.ReplyCount)
		appendStringPtr(bld.Field(8).(*array.StringBuilder), r.UserName)
		appendStringPtr(bld.Field(9).(*array.StringBuilder), r.UserRealName)
		appendStringPtr(bld.Field(10).(*array.StringBuilder), r.UserEmail)
		if r.UserIsBot != nil {
			bld.Field(11).(*array.BooleanBuilder).Append(*r.UserIsBot)
		} else {
			bld.Field(11).(*array.BooleanBuilder).AppendNull()
		}
		appendReactions(bld.Field(12).(*array.ListBuilder), r.Reactions)
		appendFiles(bld.Field(13).(*array.ListBuilder), r.Files)
		appendStringList(bld.Field(14).(*array.ListBuilder), r.IssueKeys)
		bld.Field(15).(*array.BooleanBuilder).Append(r.HasReactions)
		bld.Field(16).(*array.BooleanBuilder).Append(r.HasFiles)
		bld.Field(17).(*array.BooleanBuilder).Append(r.HasThread)
	}
	return bld.NewRecord()
}

func buildUserRecord(users []models.User, cachedAt string) arrow.Record {
	bld := array.NewRecordBuilder(memory.DefaultAllocator, userSchema())
	defer bld.Release()

	for _, u := range users {
		bld.Field(0).(*array.StringBuilder).Append(u.ID)
		appendOptionalString(bld.Field(1).(*array.StringBuilder), u.Name)
		appendOptionalString(bld.Field(2).(*array.StringBuilder), u.RealName)
		appendOptionalString(bld.Field(3).(*array.StringBuilder), u.Email)
		bld.Field(4).(*array.BooleanBuilder).Append(u.IsBot)
		bld.Field(5).(*array.StringBuilder).Append(cachedAt)
	}
	return bld.NewRecord()
}

func buildTicketRecord(tickets []models.Ticket, cachedAt string) arrow.Record {
	bld := array.NewRecordBuilder(memory.DefaultAllocator, ticketSchema())
	defer bld.Release()

	for i := range tickets {
		t := &tickets[i]
		bld.Field(0).(*array.StringBuilder).Append(t.TicketID)
		bld.Field(1).(*array.StringBuilder).Append(t.Summary)
		bld.Field(2).(*array.StringBuilder).Append(t.Status)
		bld.Field(3).(*array.StringBuilder).Append(t.Priority)
		bld.Field(4).(*array.StringBuilder).Append(t.IssueType)
		bld.Field(5).(*array.StringBuilder).Append(t.Assignee)
		bld.Field(6).(*array.StringBuilder).Append(t.Created.UTC().Format(time.RFC3339))
		bld.Field(7).(*array.StringBuilder).Append(t.Updated.UTC().Format(time.RFC3339))
		appendOptionalString(bld.Field(8).(*array.StringBuilder), t.DueDate)
		if t.StoryPoints != nil {
			bld.Field(9).(*array.Int64Builder).Append(*t.StoryPoints)
		} else {
			bld.Field(9).(*array.Int64Builder).AppendNull()
		}
		appendStringList(bld.Field(10).(*array.ListBuilder), t.Blocks)
		appendStringList(bld.Field(11).(*array.ListBuilder), t.BlockedBy)
		appendStringList(bld.Field(12).(*array.ListBuilder), t.DependsOn)
		appendStringList(bld.Field(13).(*array.ListBuilder), t.Related)
		appendStringList(bld.Field(14).(*array.ListBuilder), t.Components)
		appendStringList(bld.Field(15).(*array.ListBuilder), t.Labels)
		appendStringList(bld.Field(16).(*array.ListBuilder), t.FixVersions)
		appendOptionalString(bld.Field(17).(*array.StringBuilder), t.Project)
		appendOptionalString(bld.Field(18).(*array.StringBuilder), t.Team)
		appendOptionalString(bld.Field(19).(*array.StringBuilder), t.EpicLink)
		appendOptionalString(bld.Field(20).(*array.StringBuilder), t.Resolution)
		appendComments(bld.Field(21).(*array.MapBuilder), t.Comments)
		bld.Field(22).(*array.Int64Builder).Append(int64(t.TotalComments()))
		appendSprints(bld.Field(23).(*array.ListBuilder), t.Sprints)
		bld.Field(24).(*array.StringBuilder).Append(cachedAt)
	}
	return bld.NewRecord()
}

func appendStringPtr(b *array.StringBuilder, v *string) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}

// appendOptionalString writes Parquet nulls, never empty strings, for
// absent values.
func appendOptionalString(b *array.StringBuilder, v string) {
	if v == "" {
		b.AppendNull()
		return
	}
	b.Append(v)
}

// appendStringList appends a list value; list columns are never null,
// only empty.
func appendStringList(b *array.ListBuilder, values []string) {
	vb := b.ValueBuilder().(*array.StringBuilder)
	b.Append(true)
	for _, v := range values {
		vb.Append(v)
	}
}

func appendReactions(b *array.ListBuilder, reactions []models.Reaction) {
	sb := b.ValueBuilder().(*array.StructBuilder)
	emojiB := sb.FieldBuilder(0).(*array.StringBuilder)
	countB := sb.FieldBuilder(1).(*array.Int64Builder)
	usersB := sb.FieldBuilder(2).(*array.ListBuilder)
	usersValB := usersB.ValueBuilder().(*array.StringBuilder)

	b.Append(true)
	for _, r := range reactions {
		sb.Append(true)
		emojiB.Append(r.Emoji)
		countB.Append(int64(r.Count))
		usersB.Append(true)
		for _, u := range r.Users {
			usersValB.Append(u)
		}
	}
}

func appendFiles(b *array.ListBuilder, files []models.File) {
	sb := b.ValueBuilder().(*array.StructBuilder)
	idB := sb.FieldBuilder(0).(*array.StringBuilder)
	nameB := sb.FieldBuilder(1).(*array.StringBuilder)
	mimeB := sb.FieldBuilder(2).(*array.StringBuilder)
	urlB := sb.FieldBuilder(3).(*array.StringBuilder)
	sizeB := sb.FieldBuilder(4).(*array.Int64Builder)

	b.Append(true)
	for _, f := range files {
		sb.Append(true)
		idB.Append(f.ID)
		nameB.Append(f.Name)
		mimeB.Append(f.Mimetype)
		urlB.Append(f.URL)
		sizeB.Append(f.Size)
	}
}

func appendComments(b *array.MapBuilder, comments map[string]int) {
	kb := b.KeyBuilder().(*array.StringBuilder)
	ib := b.ItemBuilder().(*array.Int64Builder)

	b.Append(true)
	// Deterministic key order keeps repeated writes byte-identical.
	keys := make([]string, 0, len(comments))
	for k := range comments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kb.Append(k)
		ib.Append(int64(comments[k]))
	}
}

func appendSprints(b *array.ListBuilder, sprints []models.Sprint) {
	sb := b.ValueBuilder().(*array.StructBuilder)
	nameB := sb.FieldBuilder(0).(*array.StringBuilder)
	stateB := sb.FieldBuilder(1).(*array.StringBuilder)

	b.Append(true)
	for _, s := range sprints {
		sb.Append(true)
		nameB.Append(s.Name)
		stateB.Append(s.State)
	}
}
