package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/everlast/internal/history"
)

func sample(kind string, at time.Time) history.Event {
	return history.Event{
		Type:       kind,
		OccurredAt: at,
		Record: history.Record{
			SupervisorID: "sup-1",
			ChildID:      "worker",
			Index:        0,
			PID:          12345,
			RunID:        "run-1",
		},
	}
}

func TestSQLiteSink_File(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, sink.Close()) }()

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, sample("running", time.Now().UTC())))

	stopped := sample("stopped", time.Now().UTC())
	stopped.Record.ExitCode = -1
	stopped.Record.Signal = "SIGTERM"
	require.NoError(t, sink.Send(ctx, stopped))

	var count int
	require.NoError(t, sink.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM child_history WHERE child_id = ?", "worker").Scan(&count))
	assert.Equal(t, 2, count)

	var signal string
	require.NoError(t, sink.DB().QueryRowContext(ctx,
		"SELECT signal FROM child_history WHERE event = 'stopped'").Scan(&signal))
	assert.Equal(t, "SIGTERM", signal)
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	e := sample("error", time.Now().UTC())
	e.Record.Error = "spawn failed"
	require.NoError(t, sink.Send(context.Background(), e))

	var msg string
	require.NoError(t, sink.DB().QueryRow("SELECT error FROM child_history").Scan(&msg))
	assert.Equal(t, "spawn failed", msg)
}

func TestSQLiteSink_ContextCancellation(t *testing.T) {
	sink, err := New(":memory:")
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, sink.Send(ctx, sample("running", time.Now())))
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
