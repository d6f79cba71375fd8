// Package cache persists chat data as a partitioned, Snappy-compressed
// Parquet dataset and reads it back as flat rows.
//
// Layout:
//
//	<root>/messages/dt=YYYY-MM-DD/channel=<alias>/data.parquet
//	<root>/users.parquet
//	<root>/issue_tickets/dt=YYYY-MM-DD/data.parquet
package cache

import "github.com/apache/arrow-go/v18/arrow"

// Column field order is part of the on-disk contract; never reorder.

// messageSchema returns the Arrow schema for message partitions.
func messageSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		// Core message fields
		{Name: "message_id", Type: arrow.BinaryTypes.String},
		{Name: "user_id", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "text", Type: arrow.BinaryTypes.String},
		{Name: "timestamp", Type: arrow.BinaryTypes.String}, // RFC-3339 UTC

		// Thread fields
		{Name: "thread_ts", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "is_thread_parent", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "is_thread_reply", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "reply_count", Type: arrow.PrimitiveTypes.Int64},

		// Flattened author fields for predicate pushdown
		{Name: "user_name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "user_real_name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "user_email", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "user_is_bot", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},

		// Nested fidelity columns
		{Name: "reactions", Type: arrow.ListOf(arrow.StructOf(
			arrow.Field{Name: "emoji", Type: arrow.BinaryTypes.String},
			arrow.Field{Name: "count", Type: arrow.PrimitiveTypes.Int64},
			arrow.Field{Name: "users", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		))},
		{Name: "files", Type: arrow.ListOf(arrow.StructOf(
			arrow.Field{Name: "id", Type: arrow.BinaryTypes.String},
			arrow.Field{Name: "name", Type: arrow.BinaryTypes.String},
			arrow.Field{Name: "mimetype", Type: arrow.BinaryTypes.String},
			arrow.Field{Name: "url", Type: arrow.BinaryTypes.String},
			arrow.Field{Name: "size", Type: arrow.PrimitiveTypes.Int64},
		))},

		{Name: "issue_keys", Type: arrow.ListOf(arrow.BinaryTypes.String)},

		// Boolean flags for cheap filtering. has_thread is reserved and
		// always false in current writers.
		{Name: "has_reactions", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "has_files", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "has_thread", Type: arrow.FixedWidthTypes.Boolean},
	}, nil)
}

// userSchema returns the Arrow schema for the workspace-wide users file.
func userSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "user_id", Type: arrow.BinaryTypes.String},
		{Name: "user_name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "user_real_name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "user_email", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "is_bot", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "cached_at", Type: arrow.BinaryTypes.String}, // RFC-3339 UTC
	}, nil)
}

// ticketSchema returns the Arrow schema for issue ticket partitions.
// cached_at is last by contract.
func ticketSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "ticket_id", Type: arrow.BinaryTypes.String},
		{Name: "summary", Type: arrow.BinaryTypes.String},
		{Name: "status", Type: arrow.BinaryTypes.String},
		{Name: "priority", Type: arrow.BinaryTypes.String},
		{Name: "issue_type", Type: arrow.BinaryTypes.String},
		{Name: "assignee", Type: arrow.BinaryTypes.String},
		{Name: "created", Type: arrow.BinaryTypes.String},
		{Name: "updated", Type: arrow.BinaryTypes.String},
		{Name: "due_date", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "story_points", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "blocks", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		{Name: "blocked_by", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		{Name: "depends_on", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		{Name: "related", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		{Name: "components", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		{Name: "labels", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		{Name: "fix_versions", Type: arrow.ListOf(arrow.BinaryTypes.String)},
		{Name: "project", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "team", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "epic_link", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "resolution", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "comments", Type: arrow.MapOf(arrow.BinaryTypes.String, arrow.PrimitiveTypes.Int64)},
		{Name: "total_comments", Type: arrow.PrimitiveTypes.Int64},
		{Name: "sprints", Type: arrow.ListOf(arrow.StructOf(
			arrow.Field{Name: "name", Type: arrow.BinaryTypes.String},
			arrow.Field{Name: "state", Type: arrow.BinaryTypes.String},
		))},
		{Name: "cached_at", Type: arrow.BinaryTypes.String},
	}, nil)
}
