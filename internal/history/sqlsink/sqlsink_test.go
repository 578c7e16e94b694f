package sqlsink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/loykin/everlast/internal/history"
)

func TestInsertStmt(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO child_history(occurred_at, event, supervisor_id, child_id, child_index, pid, run_id, exit_code, signal, error) VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		insertStmt(Dialect{Bind: Numbered}))
	assert.Contains(t, insertStmt(Dialect{Bind: Positional}), "VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
}

func TestOpenSendQuery(t *testing.T) {
	d := Dialect{Driver: "sqlite", TimeType: "TIMESTAMP", TimeNow: "(CURRENT_TIMESTAMP)", Bind: Positional, MaxConns: 1}
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "h.db")

	s, err := Open(ctx, d, path)
	require.NoError(t, err)
	require.NoError(t, s.Send(ctx, history.Event{
		Type:       "exited",
		OccurredAt: time.Now(),
		Record:     history.Record{SupervisorID: "s", ChildID: "c", Index: 1, PID: 7, RunID: "r", ExitCode: 2, Error: "exit status 2"},
	}))
	require.NoError(t, s.Close())

	// reopening an existing store keeps its rows
	s, err = Open(ctx, d, path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	var code int
	var signal, msg *string
	require.NoError(t, s.DB().QueryRowContext(ctx,
		"SELECT exit_code, signal, error FROM child_history WHERE child_id = ? AND child_index = ?", "c", 1).
		Scan(&code, &signal, &msg))
	assert.Equal(t, 2, code)
	assert.Nil(t, signal)
	require.NotNil(t, msg)
	assert.Equal(t, "exit status 2", *msg)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Dialect{Driver: "nope", Bind: Positional}, "x")
	assert.Error(t, err)
}

func TestCloseNil(t *testing.T) {
	var s *Sink
	assert.NoError(t, s.Close())
}
