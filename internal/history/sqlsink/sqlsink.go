// Package sqlsink stores history events in a child_history table through
// database/sql. Dialects differ only in driver name, timestamp column type
// and bind-parameter syntax.
package sqlsink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/loykin/everlast/internal/history"
)

type Dialect struct {
	Driver   string
	TimeType string
	TimeNow  string
	Bind     func(n int) string
	MaxConns int
}

// Numbered binds as $1, $2 ... (PostgreSQL).
func Numbered(n int) string { return fmt.Sprintf("$%d", n) }

// Positional binds as ? (SQLite, MySQL).
func Positional(int) string { return "?" }

var columns = []string{
	"occurred_at", "event", "supervisor_id", "child_id", "child_index",
	"pid", "run_id", "exit_code", "signal", "error",
}

type Sink struct {
	db     *sql.DB
	insert string
}

// Open connects with d and creates the table and its child index when absent.
func Open(ctx context.Context, d Dialect, dsn string) (*Sink, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, err
	}
	if d.MaxConns > 0 {
		db.SetMaxOpenConns(d.MaxConns)
	}
	for _, q := range schema(d) {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s history schema: %w", d.Driver, err)
		}
	}
	return &Sink{db: db, insert: insertStmt(d)}, nil
}

func schema(d Dialect) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS child_history(
			occurred_at ` + d.TimeType + ` NOT NULL DEFAULT ` + d.TimeNow + `,
			event TEXT NOT NULL,
			supervisor_id TEXT NOT NULL,
			child_id TEXT NOT NULL,
			child_index INTEGER NOT NULL,
			pid INTEGER NOT NULL,
			run_id TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			signal TEXT,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_child_history_child ON child_history(child_id, child_index)`,
	}
}

func insertStmt(d Dialect) string {
	binds := make([]string, len(columns))
	for i := range binds {
		binds[i] = d.Bind(i + 1)
	}
	return "INSERT INTO child_history(" + strings.Join(columns, ", ") +
		") VALUES(" + strings.Join(binds, ", ") + ")"
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	r := e.Record
	_, err := s.db.ExecContext(ctx, s.insert,
		e.OccurredAt.UTC(), e.Type, r.SupervisorID, r.ChildID, r.Index,
		r.PID, r.RunID, r.ExitCode, optional(r.Signal), optional(r.Error))
	return err
}

// DB exposes the underlying handle for queries.
func (s *Sink) DB() *sql.DB { return s.db }

func (s *Sink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func optional(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
