package event

import (
	"time"
)

// Kind is the closed set of lifecycle events a supervisor publishes.
type Kind int

const (
	Starting Kind = iota + 1
	Running
	Restarting
	Stopping
	Stopped
	Error
)

func (k Kind) String() string {
	switch k {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Restarting:
		return "restarting"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Kinds lists every event kind.
func Kinds() []Kind { return []Kind{Starting, Running, Restarting, Stopping, Stopped, Error} }

// Event is one published lifecycle change. Which fields are meaningful
// depends on Kind:
//
//	Starting   ID
//	Running    ID, Index, PID
//	Restarting ID, Index
//	Stopping   ID, Index, PID
//	Stopped    ID, Index, Exit
//	Error      Err (ID and Index when the error concerns one child)
type Event struct {
	Kind  Kind      `json:"kind"`
	ID    string    `json:"id,omitempty"`
	Index int       `json:"index"`
	PID   int       `json:"pid,omitempty"`
	Exit  Exit      `json:"exit"`
	Err   error     `json:"-"`
	RunID string    `json:"run_id,omitempty"`
	Time  time.Time `json:"time"`
}

// Exit is the outcome of a child process. Signal is empty for a normal exit.
type Exit struct {
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

// ErrorText returns Err's message or "".
func (e Event) ErrorText() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
