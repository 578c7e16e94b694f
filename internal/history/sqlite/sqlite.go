package sqlite

import (
	"context"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/everlast/internal/history/sqlsink"
)

// One connection keeps ":memory:" databases coherent.
var dialect = sqlsink.Dialect{
	Driver:   "sqlite",
	TimeType: "TIMESTAMP",
	TimeNow:  "(CURRENT_TIMESTAMP)",
	Bind:     sqlsink.Positional,
	MaxConns: 1,
}

type Sink struct {
	*sqlsink.Sink
}

// New opens a SQLite history store. Accepted forms are "sqlite:///path.db",
// "sqlite://:memory:", a bare path and ":memory:".
func New(dsn string) (*Sink, error) {
	path := strings.TrimSpace(dsn)
	if len(path) >= len("sqlite://") && strings.EqualFold(path[:len("sqlite://")], "sqlite://") {
		path = path[len("sqlite://"):]
	}
	if path == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	s, err := sqlsink.Open(context.Background(), dialect, path)
	if err != nil {
		return nil, err
	}
	return &Sink{s}, nil
}
