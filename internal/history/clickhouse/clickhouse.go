package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/everlast/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// Options selects the server and table. Empty fields take defaults.
type Options struct {
	Addr     string // host:port of the native protocol, default localhost:9000
	Database string // default "default"
	Username string // default "default"
	Password string
	Table    string // default "child_history"
}

func New(o Options) (*Sink, error) {
	if o.Addr == "" {
		o.Addr = "localhost:9000"
	}
	if o.Database == "" {
		o.Database = "default"
	}
	if o.Username == "" {
		o.Username = "default"
	}
	if o.Table == "" {
		o.Table = "child_history"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{o.Addr},
		Auth: clickhouse.Auth{
			Database: o.Database,
			Username: o.Username,
			Password: o.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return &Sink{conn: conn, table: o.Table}, nil
}

// EnsureTable creates the history table when it does not exist.
func (s *Sink) EnsureTable(ctx context.Context) error {
	return s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			event String,
			occurred_at DateTime64(6),
			supervisor_id String,
			child_id String,
			child_index Int32,
			pid Int32,
			run_id String,
			exit_code Int32,
			signal Nullable(String),
			error Nullable(String)
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, child_id)`, s.table))
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	r := e.Record
	query := fmt.Sprintf(`INSERT INTO %s (event, occurred_at, supervisor_id, child_id, child_index, pid, run_id, exit_code, signal, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	err := s.conn.Exec(ctx, query,
		e.Type,
		e.OccurredAt,
		r.SupervisorID,
		r.ChildID,
		int32(r.Index), // #nosec G115
		int32(r.PID),   // #nosec G115
		r.RunID,
		int32(r.ExitCode), // #nosec G115
		nullable(r.Signal),
		nullable(r.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
