package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/everlast/internal/child"
	"github.com/loykin/everlast/internal/event"
)

// Shutdown stops every child, waits until all slots report stopped or ctx
// ends, and then closes the supervisor. Children that ignore the stop signal
// are left behind when ctx expires.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if err := s.StopAllChildren(nil); err != nil {
		return err
	}
	defer s.Close()
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for {
		if s.allStopped() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Supervisor) allStopped() bool {
	for _, ci := range s.Children() {
		if ci.State != child.StateStopped {
			return false
		}
	}
	return true
}

// LogEvents writes every event from sub to l until the subscription ends.
// It is meant to run in its own goroutine.
func LogEvents(sub *event.Subscription, l *slog.Logger) {
	for e := range sub.C() {
		attrs := []any{"event", e.Kind.String(), "id", e.ID, "index", e.Index}
		switch e.Kind {
		case event.Running, event.Stopping:
			attrs = append(attrs, "pid", e.PID)
		case event.Stopped:
			attrs = append(attrs, "exit_code", e.Exit.Code)
			if e.Exit.Signal != "" {
				attrs = append(attrs, "signal", e.Exit.Signal)
			}
		case event.Error:
			l.Error("child error", append(attrs, "error", e.ErrorText())...)
			continue
		}
		l.Info("child "+e.Kind.String(), attrs...)
	}
}
