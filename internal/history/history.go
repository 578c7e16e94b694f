package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/everlast/internal/event"
)

// Record is the persisted shape of one child lifecycle event.
type Record struct {
	SupervisorID string `json:"supervisor_id"`
	ChildID      string `json:"child_id"`
	Index        int    `json:"index"`
	PID          int    `json:"pid"`
	RunID        string `json:"run_id"`
	ExitCode     int    `json:"exit_code"`
	Signal       string `json:"signal,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// FromEvent converts a supervisor event into a history event.
func FromEvent(supervisorID string, e event.Event) Event {
	return Event{
		Type:       e.Kind.String(),
		OccurredAt: e.Time.UTC(),
		Record: Record{
			SupervisorID: supervisorID,
			ChildID:      e.ID,
			Index:        e.Index,
			PID:          e.PID,
			RunID:        e.RunID,
			ExitCode:     e.Exit.Code,
			Signal:       e.Exit.Signal,
			Error:        e.ErrorText(),
		},
	}
}

// Forward sends every event from sub to all sinks until the subscription
// ends or ctx is cancelled. Sink failures are logged and skipped.
func Forward(ctx context.Context, sub *event.Subscription, supervisorID string, sinks ...Sink) {
	for {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			he := FromEvent(supervisorID, e)
			for _, s := range sinks {
				if err := s.Send(ctx, he); err != nil {
					slog.Warn("history sink send failed", "event", he.Type, "child", he.Record.ChildID, "error", err)
				}
			}
		}
	}
}
