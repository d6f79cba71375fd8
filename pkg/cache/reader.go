package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/rs/zerolog"

	"github.com/zeebeeCoder/slack-intel/pkg/apierr"
	"github.com/zeebeeCoder/slack-intel/pkg/models"
	"github.com/zeebeeCoder/slack-intel/pkg/timewindow"
)

const readBatchSize = 8192

// Reader reads message partitions back as flat rows. Missing partitions
// are an empty result, never an error.
type Reader struct {
	root string
	log  zerolog.Logger
}

// NewReader creates a Reader over the cache root.
func NewReader(root string, logger zerolog.Logger) *Reader {
	return &Reader{root: root, log: logger}
}

// ReadChannel returns one (channel, dt) partition sorted by
// (timestamp, message_id). The channel may be a configured name or a raw
// id: the literal partition is tried first, then "channel_<c>".
func (r *Reader) ReadChannel(ctx context.Context, channel, date string) ([]models.Row, error) {
	return r.readChannelColumns(ctx, channel, date, nil)
}

// ReadChannelColumns is ReadChannel limited to a subset of flat columns,
// for cheap scans over wide date windows. Unread fields are zero values.
func (r *Reader) ReadChannelColumns(ctx context.Context, channel, date string, columns []string) ([]models.Row, error) {
	return r.readChannelColumns(ctx, channel, date, columns)
}

func (r *Reader) readChannelColumns(ctx context.Context, channel, date string, columns []string) ([]models.Row, error) {
	path, ok := r.resolvePartition(channel, date)
	if !ok {
		return nil, nil
	}
	rows, err := r.readRows(ctx, path, columns)
	if err != nil {
		return nil, err
	}
	sortRows(rows)
	return rows, nil
}

// ReadChannelRange reads every day in [start, end] inclusive and
// concatenates the results. Missing partitions are silently skipped.
func (r *Reader) ReadChannelRange(ctx context.Context, channel, start, end string) ([]models.Row, error) {
	days, err := timewindow.DateRange(start, end)
	if err != nil {
		return nil, apierr.New(apierr.KindConfig, "cache.read_range", "", err)
	}

	var all []models.Row
	for _, day := range days {
		rows, err := r.readChannelColumns(ctx, channel, day, nil)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	sortRows(all)
	return all, nil
}

// ReadAllChannels reads every channel partition for one date. Each row's
// ChannelName carries the partition it came from.
func (r *Reader) ReadAllChannels(ctx context.Context, date string) ([]models.Row, error) {
	dateDir := filepath.Join(r.root, "messages", "dt="+date)
	entries, err := os.ReadDir(dateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apierr.New(apierr.KindIO, "cache.read_all", "", err)
	}

	var all []models.Row
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "channel=") {
			continue
		}
		alias := strings.TrimPrefix(entry.Name(), "channel=")
		path := filepath.Join(dateDir, entry.Name(), "data.parquet")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		rows, err := r.readRows(ctx, path, nil)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			rows[i].ChannelName = alias
		}
		all = append(all, rows...)
	}
	sortRows(all)
	return all, nil
}

// FindMessagesWithTicket returns the rows in [start, end] whose issue keys
// include ticketID. An empty channel searches all channels.
func (r *Reader) FindMessagesWithTicket(ctx context.Context, ticketID, channel, start, end string) ([]models.Row, error) {
	var (
		rows []models.Row
		err  error
	)
	if channel != "" {
		rows, err = r.ReadChannelRange(ctx, channel, start, end)
	} else {
		var days []string
		days, err = timewindow.DateRange(start, end)
		if err != nil {
			return nil, apierr.New(apierr.KindConfig, "cache.find_ticket", "", err)
		}
		for _, day := range days {
			dayRows, derr := r.ReadAllChannels(ctx, day)
			if derr != nil {
				return nil, derr
			}
			rows = append(rows, dayRows...)
		}
	}
	if err != nil {
		return nil, err
	}

	var matched []models.Row
	for _, row := range rows {
		for _, key := range row.IssueKeys {
			if key == ticketID {
				matched = append(matched, row)
				break
			}
		}
	}
	sortRows(matched)
	return matched, nil
}

// resolvePartition maps a requested channel to an existing partition file.
// Exactly two attempts: the literal alias, then the "channel_" prefix.
func (r *Reader) resolvePartition(channel, date string) (string, bool) {
	path := filepath.Join(r.root, "messages", "dt="+date, "channel="+channel, "data.parquet")
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	if !strings.HasPrefix(channel, "channel_") {
		path = filepath.Join(r.root, "messages", "dt="+date, "channel=channel_"+channel, "data.parquet")
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func sortRows(rows []models.Row) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Timestamp != rows[j].Timestamp {
			return rows[i].Timestamp < rows[j].Timestamp
		}
		return rows[i].MessageID < rows[j].MessageID
	})
}

// readRows reads one partition file, optionally projecting a subset of
// flat columns.
func (r *Reader) readRows(ctx context.Context, path string, columns []string) ([]models.Row, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, apierr.New(apierr.KindIO, "cache.read", "", fmt.Errorf("opening %s: %w", path, err))
	}
	defer pf.Close()

	rdr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: readBatchSize}, memory.DefaultAllocator)
	if err != nil {
		return nil, apierr.New(apierr.KindIO, "cache.read", "", fmt.Errorf("reading %s: %w", path, err))
	}

	var indices []int
	if columns != nil {
		indices, err = projectionIndices(messageSchema(), columns)
		if err != nil {
			return nil, err
		}
	}

	rr, err := rdr.GetRecordReader(ctx, indices, nil)
	if err != nil {
		return nil, apierr.New(apierr.KindIO, "cache.read", "", fmt.Errorf("reading %s: %w", path, err))
	}
	defer rr.Release()

	var rows []models.Row
	for rr.Next() {
		rec := rr.Record()
		batch, err := decodeMessageRecord(rec)
		if err != nil {
			return nil, apierr.New(apierr.KindSchema, "cache.read", "", fmt.Errorf("decoding %s: %w", path, err))
		}
		rows = append(rows, batch...)
	}
	if err := rr.Err(); err != nil {
		return nil, apierr.New(apierr.KindIO, "cache.read", "", fmt.Errorf("reading %s: %w", path, err))
	}
	return rows, nil
}

// projectionIndices maps column names to parquet leaf indices. Only
// single-leaf (flat or list-of-string) columns can be projected.
func projectionIndices(schema *arrow.Schema, columns []string) ([]int, error) {
	offsets := make(map[string]struct{ start, width int }, schema.NumFields())
	leaf := 0
	for _, f := range schema.Fields() {
		width := leafCount(f.Type)
		offsets[f.Name] = struct{ start, width int }{leaf, width}
		leaf += width
	}

	indices := make([]int, 0, len(columns))
	for _, name := range columns {
		off, ok := offsets[name]
		if !ok {
			return nil, apierr.New(apierr.KindConfig, "cache.read", "", fmt.Errorf("unknown column %q", name))
		}
		if off.width != 1 {
			return nil, apierr.New(apierr.KindConfig, "cache.read", "", fmt.Errorf("column %q cannot be projected", name))
		}
		indices = append(indices, off.start)
	}
	return indices, nil
}

func leafCount(dt arrow.DataType) int {
	switch t := dt.(type) {
	case *arrow.ListType:
		return leafCount(t.Elem())
	case *arrow.StructType:
		n := 0
		for _, f := range t.Fields() {
			n += leafCount(f.Type)
		}
		return n
	case *arrow.MapType:
		return leafCount(t.KeyType()) + leafCount(t.ItemType())
	default:
		return 1
	}
}

// decodeMessageRecord turns an Arrow record batch into rows. Columns are
// matched by name so projected reads decode with the same path.
func decodeMessageRecord(rec arrow.Record) ([]models.Row, error) {
	n := int(rec.NumRows())
	rows := make([]models.Row, n)

	for c := 0; c < int(rec.NumCols()); c++ {
		name := rec.Schema().Field(c).Name
		col := rec.Column(c)
		var err error
		switch name {
		case "message_id":
			err = eachString(col, func(i int, v string) { rows[i].MessageID = v })
		case "user_id":
			err = eachStringPtr(col, func(i int, v *string) { rows[i].UserID = v })
		case "text":
			err = eachString(col, func(i int, v string) { rows[i].Text = v })
		case "timestamp":
			err = eachString(col, func(i int, v string) { rows[i].Timestamp = v })
		case "thread_ts":
			err = eachStringPtr(col, func(i int, v *string) { rows[i].ThreadTS = v })
		case "is_thread_parent":
			err = eachBool(col, func(i int, v bool) { rows[i].IsThreadParent = v })
		case "is_thread_reply":
			err = eachBool(col, func(i int, v bool) { rows[i].IsThreadReply = v })
		case "reply_count":
			err = eachInt64(col, func(i int, v int64) { rows[i].ReplyCount = v })
		case "user_name":
			err = eachStringPtr(col, func(i int, v *string) { rows[i].UserName = v })
		case "user_real_name":
			err = eachStringPtr(col, func(i int, v *string) { rows[i].UserRealName = v })
		case "user_email":
			err = eachStringPtr(col, func(i int, v *string) { rows[i].UserEmail = v })
		case "user_is_bot":
			err = eachBoolPtr(col, func(i int, v *bool) { rows[i].UserIsBot = v })
		case "reactions":
			err = decodeReactions(col, rows)
		case "files":
			err = decodeFiles(col, rows)
		case "issue_keys":
			err = eachStringList(col, func(i int, v []string) { rows[i].IssueKeys = v })
		case "has_reactions":
			err = eachBool(col, func(i int, v bool) { rows[i].HasReactions = v })
		case "has_files":
			err = eachBool(col, func(i int, v bool) { rows[i].HasFiles = v })
		case "has_thread":
			err = eachBool(col, func(i int, v bool) { rows[i].HasThread = v })
		default:
			err = fmt.Errorf("unexpected column %q", name)
		}
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func eachString(a arrow.Array, set func(int, string)) error {
	arr, ok := a.(*array.String)
	if !ok {
		return fmt.Errorf("expected string column, got %s", a.DataType())
	}
	for i := 0; i < arr.Len(); i++ {
		set(i, arr.Value(i))
	}
	return nil
}

func eachStringPtr(a arrow.Array, set func(int, *string)) error {
	arr, ok := a.(*array.String)
	if !ok {
		return fmt.Errorf("expected string column, got %s", a.DataType())
	}
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			continue
		}
		v := arr.Value(i)
		set(i, &v)
	}
	return nil
}

func eachBool(a arrow.Array, set func(int, bool)) error {
	arr, ok := a.(*array.Boolean)
	if !ok {
		return fmt.Errorf("expected boolean column, got %s", a.DataType())
	}
	for i := 0; i < arr.Len(); i++ {
		set(i, arr.Value(i))
	}
	return nil
}

func eachBoolPtr(a arrow.Array, set func(int, *bool)) error {
	arr, ok := a.(*array.Boolean)
	if !ok {
		return fmt.Errorf("expected boolean column, got %s", a.DataType())
	}
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			continue
		}
		v := arr.Value(i)
		set(i, &v)
	}
	return nil
}

func eachInt64(a arrow.Array, set func(int, int64)) error {
	arr, ok := a.(*array.Int64)
	if !ok {
		return fmt.Errorf("expected int64 column, got %s", a.DataType())
	}
	for i := 0; i < arr.Len(); i++ {
		set(i, arr.Value(i))
	}
	return nil
}

func eachStringList(a arrow.Array, set func(int, []string)) error {
	arr, ok := a.(*array.List)
	if !ok {
		return fmt.Errorf("expected list column, got %s", a.DataType())
	}
	vals, ok := arr.ListValues().(*array.String)
	if !ok {
		return fmt.Errorf("expected list<string> column, got %s", a.DataType())
	}
	for i := 0; i < arr.Len(); i++ {
		start, end := arr.ValueOffsets(i)
		out := make([]string, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, vals.Value(int(j)))
		}
		set(i, out)
	}
	return nil
}

func decodeReactions(a arrow.Array, rows []models.Row) error {
	arr, ok := a.(*array.List)
	if !ok {
		return fmt.Errorf("expected list column, got %s", a.DataType())
	}
	st, ok := arr.ListValues().(*array.Struct)
	if !ok {
		return fmt.Errorf("expected list<struct> reactions column")
	}
	emoji := st.Field(0).(*array.String)
	count := st.Field(1).(*array.Int64)
	usersList := st.Field(2).(*array.List)
	usersVals := usersList.ListValues().(*array.String)

	for i := 0; i < arr.Len(); i++ {
		start, end := arr.ValueOffsets(i)
		for j := start; j < end; j++ {
			reaction := models.Reaction{
				Emoji: emoji.Value(int(j)),
				Count: int(count.Value(int(j))),
			}
			us, ue := usersList.ValueOffsets(int(j))
			for k := us; k < ue; k++ {
				reaction.Users = append(reaction.Users, usersVals.Value(int(k)))
			}
			rows[i].Reactions = append(rows[i].Reactions, reaction)
		}
	}
	return nil
}

func decodeFiles(a arrow.Array, rows []models.Row) error {
	arr, ok := a.(*array.List)
	if !ok {
		return fmt.Errorf("expected list column, got %s", a.DataType())
	}
	st, ok := arr.ListValues().(*array.Struct)
	if !ok {
		return fmt.Errorf("expected list<struct> files column")
	}
	id := st.Field(0).(*array.String)
	name := st.Field(1).(*array.String)
	mime := st.Field(2).(*array.String)
	url := st.Field(3).(*array.String)
	size := st.Field(4).(*array.Int64)

	for i := 0; i < arr.Len(); i++ {
		start, end := arr.ValueOffsets(i)
		for j := start; j < end; j++ {
			rows[i].Files = append(rows[i].Files, models.File{
				ID:       id.Value(int(j)),
				Name:     name.Value(int(j)),
				Mimetype: mime.Value(int(j)),
				URL:      url.Value(int(j)),
				Size:     size.Value(int(j)),
			})
		}
	}
	return nil
}
