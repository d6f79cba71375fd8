// Package query embeds an analytical SQL engine over the on-disk Parquet
// dataset. Views are registered per entity so callers can query messages,
// users, and issue_tickets directly.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"

	"github.com/zeebeeCoder/slack-intel/pkg/models"
)

// Engine wraps an in-memory DuckDB instance with views over the cache.
type Engine struct {
	db   *sql.DB
	root string
	log  zerolog.Logger
}

// Open creates the engine and registers views for every entity that has
// files on disk.
func Open(root string, logger zerolog.Logger) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}

	// Session settings don't propagate across pooled connections; a single
	// connection keeps them consistent.
	db.SetMaxOpenConns(1)

	threads := runtime.GOMAXPROCS(0)
	if _, err := db.Exec(fmt.Sprintf("SET threads = %d", threads)); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring duckdb: %w", err)
	}

	e := &Engine{db: db, root: root, log: logger}
	if err := e.registerViews(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// Close releases the engine.
func (e *Engine) Close() error { return e.db.Close() }

// registerViews creates one view per entity whose files exist. Missing
// entities are skipped so a messages-only cache still queries cleanly.
func (e *Engine) registerViews(ctx context.Context) error {
	views := []struct {
		name string
		glob string
		hive bool
	}{
		{name: "messages", glob: filepath.Join(e.root, "messages", "*", "*", "data.parquet"), hive: true},
		{name: "users", glob: filepath.Join(e.root, "users.parquet")},
		{name: "issue_tickets", glob: filepath.Join(e.root, "issue_tickets", "*", "data.parquet"), hive: true},
	}

	for _, v := range views {
		matches, err := filepath.Glob(v.glob)
		if err != nil || len(matches) == 0 {
			e.log.Debug().Str("view", v.name).Msg("no files on disk, view skipped")
			continue
		}
		glob := strings.ReplaceAll(v.glob, "'", "''")
		ddl := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet('%s'", v.name, glob)
		if v.hive {
			ddl += ", hive_partitioning=true"
		}
		ddl += ")"
		if _, err := e.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("registering view %s: %w", v.name, err)
		}
	}
	return nil
}

// Result is one query's output, with values kept raw for format-specific
// rendering.
type Result struct {
	Columns []string
	Rows    [][]interface{}
}

// Query runs one SQL statement and materializes its result.
func (e *Engine) Query(ctx context.Context, sqlText string) (*Result, error) {
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{Columns: cols}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	return result, rows.Err()
}

// Tables lists the registered views, for the REPL's meta-commands.
func (e *Engine) Tables(ctx context.Context) ([]string, error) {
	result, err := e.Query(ctx, "SELECT table_name FROM information_schema.tables ORDER BY table_name")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, row := range result.Rows {
		names = append(names, fmt.Sprintf("%v", row[0]))
	}
	return names, nil
}

// Schema describes one view's columns.
func (e *Engine) Schema(ctx context.Context, table string) (*Result, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return e.Query(ctx, "DESCRIBE "+table)
}

// Tickets loads the latest cached metadata per ticket, keyed by id. Used
// by enriched views; an absent issue_tickets view is an empty map.
func (e *Engine) Tickets(ctx context.Context) (map[string]models.Ticket, error) {
	const q = `
SELECT ticket_id, summary, status, priority, issue_type, assignee
FROM issue_tickets
QUALIFY row_number() OVER (PARTITION BY ticket_id ORDER BY cached_at DESC) = 1`

	result, err := e.Query(ctx, q)
	if err != nil {
		if strings.Contains(err.Error(), "issue_tickets") {
			return map[string]models.Ticket{}, nil
		}
		return nil, err
	}

	asString := func(v interface{}) string {
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	}

	tickets := make(map[string]models.Ticket, len(result.Rows))
	for _, row := range result.Rows {
		t := models.Ticket{
			TicketID:  asString(row[0]),
			Summary:   asString(row[1]),
			Status:    asString(row[2]),
			Priority:  asString(row[3]),
			IssueType: asString(row[4]),
			Assignee:  asString(row[5]),
		}
		tickets[t.TicketID] = t
	}
	return tickets, nil
}
