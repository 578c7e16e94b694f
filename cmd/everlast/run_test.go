package main

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/everlast/internal/history/sqlite"
)

func TestRunSupervisorNoChildren(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, "c.toml", `
[log]
path = "`+filepath.ToSlash(filepath.Join(dir, "everlast.log"))+`"
`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, runSupervisor(ctx, cfg, time.Second))
}

func TestRunSupervisorBadConfig(t *testing.T) {
	cfg := writeFile(t, "c.toml", `strategy = "sometimes"`)
	assert.Error(t, runSupervisor(context.Background(), cfg, time.Second))

	cfg = writeFile(t, "h.toml", "[history]\ndsn = [\"mongodb://nope\"]\n")
	assert.Error(t, runSupervisor(context.Background(), cfg, time.Second))

	cfg = writeFile(t, "tls.toml", "[http]\nlisten = \"127.0.0.1:0\"\n[http.tls]\nenabled = true\n")
	assert.ErrorContains(t, runSupervisor(context.Background(), cfg, time.Second), "http tls")

	cfg = writeFile(t, "auth.toml", `
[http]
listen = "127.0.0.1:0"

[http.auth]
enabled = true

[[http.auth.users]]
username = "ops"
password_hash = "not-bcrypt"
`)
	assert.ErrorContains(t, runSupervisor(context.Background(), cfg, time.Second), "http auth")
}

func TestRunSupervisorStopsChildrenAndRecordsHistory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	if testing.Short() {
		t.Skip("spawns real processes")
	}
	dir := t.TempDir()
	db := filepath.Join(dir, "history.db")
	cfg := writeFile(t, "c.toml", `
strategy = "never"

[log]
path = "`+filepath.Join(dir, "everlast.log")+`"

[history]
dsn = ["sqlite://`+db+`"]

[[children]]
id = "sleeper"
path = "/bin/sh"
args = ["-c", "sleep 30"]
`)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, runSupervisor(ctx, cfg, 5*time.Second))

	sink, err := sqlite.New(db)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()
	var events []string
	rows, err := sink.DB().Query(`SELECT event FROM child_history ORDER BY rowid`)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var e string
		require.NoError(t, rows.Scan(&e))
		events = append(events, e)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"starting", "running", "stopping", "stopped"}, events)
}
