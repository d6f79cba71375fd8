// Package threads rebuilds nested conversation structure from the flat
// rows the cache stores. Thread relationships are carried by thread_ts and
// the is_thread_parent / is_thread_reply flags.
package threads

import (
	"sort"

	"github.com/zeebeeCoder/slack-intel/pkg/models"
)

// TopLevel is one entry of a reconstructed view: a standalone message, a
// parent with its replies, or an orphaned reply kept at top level.
type TopLevel struct {
	models.Row

	// Replies are nested under a parent, sorted by timestamp.
	Replies []models.Row

	// IsOrphanedReply marks a reply whose parent is outside the dataset.
	IsOrphanedReply bool

	// IsClippedThread marks an orphaned reply, or a parent none of whose
	// replies are present in this read. A parent with some but not all of
	// its replies present is marked by HasClippedReplies only.
	IsClippedThread bool

	// HasClippedReplies marks a parent whose attached replies are fewer
	// than its reply_count.
	HasClippedReplies bool
}

// Reconstruct groups flat rows into top-level entries:
//
//   - replies attach to their parent when it is present, else they stay at
//     top level marked orphaned and clipped
//   - parents with fewer attached replies than reply_count are marked
//     clipped (including parents with zero replies present)
//   - replies sort by timestamp within a thread; top-level entries sort by
//     timestamp overall
//
// Flattened, the output is a permutation of the input.
func Reconstruct(rows []models.Row) []TopLevel {
	if len(rows) == 0 {
		return nil
	}

	parents := make(map[string]*TopLevel)
	var order []*TopLevel

	addTopLevel := func(row models.Row) *TopLevel {
		tl := &TopLevel{Row: row}
		order = append(order, tl)
		return tl
	}

	// First pass: place parents and standalones so replies can attach
	// regardless of input order.
	for _, row := range rows {
		if row.IsThreadParent {
			parents[row.MessageID] = addTopLevel(row)
		} else if !row.IsThreadReply {
			// Standalone; a self-parented row without replies lands here.
			addTopLevel(row)
		}
	}

	// Second pass: attach replies or orphan them.
	for _, row := range rows {
		if !row.IsThreadReply {
			continue
		}
		threadTS := ""
		if row.ThreadTS != nil {
			threadTS = *row.ThreadTS
		}
		if parent, ok := parents[threadTS]; ok {
			parent.Replies = append(parent.Replies, row)
			continue
		}
		orphan := addTopLevel(row)
		orphan.IsOrphanedReply = true
		orphan.IsClippedThread = true
	}

	for _, parent := range parents {
		sort.Slice(parent.Replies, func(i, j int) bool {
			return parent.Replies[i].Timestamp < parent.Replies[j].Timestamp
		})
		if int64(len(parent.Replies)) < parent.ReplyCount {
			parent.HasClippedReplies = true
			if len(parent.Replies) == 0 {
				parent.IsClippedThread = true
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].Timestamp != order[j].Timestamp {
			return order[i].Timestamp < order[j].Timestamp
		}
		return order[i].MessageID < order[j].MessageID
	})

	out := make([]TopLevel, len(order))
	for i, tl := range order {
		out[i] = *tl
	}
	return out
}

// Flatten returns every row of a reconstructed view, parents before their
// replies.
func Flatten(topLevels []TopLevel) []models.Row {
	var rows []models.Row
	for _, tl := range topLevels {
		rows = append(rows, tl.Row)
		rows = append(rows, tl.Replies...)
	}
	return rows
}
