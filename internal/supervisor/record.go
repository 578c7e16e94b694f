package supervisor

import (
	"time"

	"github.com/loykin/everlast/internal/child"
	"github.com/loykin/everlast/internal/spawn"
)

// record is the supervisor-owned state of one occupied slot.
type record struct {
	spec      child.Spec
	state     child.State
	handle    spawn.Handle // nil once reaped
	runID     string
	startedAt time.Time
	stoppedAt time.Time
	restarts  int
	lastExit  spawn.Exit
	// halt turns a pending restart into a plain stop; set by a stop-all sweep.
	halt bool
}

// ChildInfo is a point-in-time view of one slot.
type ChildInfo struct {
	Index     int         `json:"index"`
	ID        string      `json:"id"`
	Path      string      `json:"path"`
	Args      []string    `json:"args,omitempty"`
	State     child.State `json:"state"`
	PID       int         `json:"pid,omitempty"`
	Alive     bool        `json:"alive"`
	RunID     string      `json:"run_id,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	StoppedAt time.Time   `json:"stopped_at"`
	Restarts  int         `json:"restarts"`
	ExitCode  int         `json:"exit_code"`
	Signal    string      `json:"signal,omitempty"`
}

type aliveChecker interface{ Alive() bool }

func (r *record) info(idx int) ChildInfo {
	ci := ChildInfo{
		Index:     idx,
		ID:        r.spec.ID,
		Path:      r.spec.Path,
		Args:      append([]string(nil), r.spec.Args...),
		State:     r.state,
		RunID:     r.runID,
		StartedAt: r.startedAt,
		StoppedAt: r.stoppedAt,
		Restarts:  r.restarts,
		ExitCode:  r.lastExit.Code,
		Signal:    r.lastExit.Signal,
	}
	if r.handle != nil {
		ci.PID = r.handle.Pid()
		ci.Alive = true
		if ac, ok := r.handle.(aliveChecker); ok {
			ci.Alive = ac.Alive()
		}
	}
	return ci
}

func (r *record) pid() int {
	if r.handle == nil {
		return 0
	}
	return r.handle.Pid()
}
