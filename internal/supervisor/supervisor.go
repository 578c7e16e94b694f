// Package supervisor keeps a set of child processes alive according to a
// restart strategy.
//
// All registry and restart-log mutation happens on a single control loop.
// Public methods hand a closure to that loop and wait for its result; exit
// notifications from children are delivered to the same loop, so commands and
// exits never interleave. Outcomes of asynchronous work (exits, automatic
// restarts) are only observable through Subscribe.
package supervisor

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/loykin/everlast/internal/child"
	"github.com/loykin/everlast/internal/env"
	"github.com/loykin/everlast/internal/event"
	"github.com/loykin/everlast/internal/metrics"
	"github.com/loykin/everlast/internal/spawn"
	"github.com/loykin/everlast/internal/strategy"
)

// Environment variables injected into every child.
const (
	EnvChildID    = "EVERLAST_ID"
	EnvChildIndex = "EVERLAST_IDX"
)

// Options configures a Supervisor. Zero values select the defaults.
type Options struct {
	Strategy    strategy.Kind // default one_for_one
	MaxRestarts int           // default 3
	MaxTime     int64         // default 1 (ticks of 100ms)
	Spawner     spawn.Spawner // default *spawn.ExecSpawner
	Env         *env.Env      // default OS environment
	Now         func() time.Time
	Logger      *slog.Logger
}

type Supervisor struct {
	id      string
	spawner spawn.Spawner
	env     *env.Env
	bus     *event.Bus
	now     func() time.Time
	log     *slog.Logger
	stratCf strategy.Config

	cmds      chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by the control loop
	children []*record
	strat    strategy.Strategy
	pending  []func()
}

// New creates a supervisor and starts its control loop.
func New(opts Options) (*Supervisor, error) {
	kind := opts.Strategy
	if kind == "" {
		kind = strategy.KindOneForOne
	}
	s := &Supervisor{
		id:      xid.New().String(),
		spawner: opts.Spawner,
		env:     opts.Env,
		bus:     event.NewBus(),
		now:     opts.Now,
		log:     opts.Logger,
		cmds:    make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if s.spawner == nil {
		s.spawner = &spawn.ExecSpawner{}
	}
	if s.env == nil {
		s.env = env.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.stratCf = strategy.Config{
		MaxRestarts: opts.MaxRestarts,
		MaxTime:     opts.MaxTime,
		Now:         s.now,
		OnThrottle:  s.throttled,
	}
	st, err := strategy.New(kind, loopCtl{s}, s.stratCf)
	if err != nil {
		return nil, err
	}
	s.strat = st
	go s.run()
	return s, nil
}

// ID identifies this supervisor instance; it is carried on history rows.
func (s *Supervisor) ID() string { return s.id }

func (s *Supervisor) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.cmds:
			fn()
			s.drain()
		case <-s.quit:
			return
		}
	}
}

// drain runs work deferred by the previous message before the loop accepts
// another one.
func (s *Supervisor) drain() {
	for len(s.pending) > 0 {
		fn := s.pending[0]
		s.pending = s.pending[1:]
		fn()
	}
}

func (s *Supervisor) later(fn func()) { s.pending = append(s.pending, fn) }

// call runs fn on the control loop and returns its result.
func (s *Supervisor) call(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- func() { reply <- fn() }:
	case <-s.done:
		return ErrClosed
	case <-s.quit:
		return ErrClosed
	}
	return <-reply
}

// Subscribe returns a subscription for the given event kinds, or for every
// kind when none are given.
func (s *Supervisor) Subscribe(kinds ...event.Kind) *event.Subscription {
	return s.bus.Subscribe(kinds...)
}

// Close stops the control loop and detaches every subscriber. Children are
// left running; use StopAllChildren first for an orderly teardown.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.bus.Close()
	})
}

// StartChild adds a child for spec and starts it, returning its index. When
// the process cannot be spawned the slot is kept in the stopped state and
// its index is returned along with the error.
func (s *Supervisor) StartChild(spec child.Spec) (int, error) {
	idx := -1
	err := s.call(func() error {
		var err error
		idx, err = s.add(spec)
		return err
	})
	return idx, err
}

// StartChildren validates every spec before allocating any slot, then starts
// them in order.
func (s *Supervisor) StartChildren(specs []child.Spec) ([]int, error) {
	for i, sp := range specs {
		if err := sp.Validate(); err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
	}
	out := make([]int, 0, len(specs))
	err := s.call(func() error {
		for _, sp := range specs {
			idx, err := s.add(sp)
			if idx >= 0 {
				out = append(out, idx)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// StartChildAt restarts the existing child at idx. The slot must be stopped
// or restarting; RestartChild is the safer call for running children.
//
// Accepting both states is a deliberate policy: historical variants accepted
// only restarting, which left manually stopped children unrestartable.
func (s *Supervisor) StartChildAt(idx int) error {
	return s.call(func() error { return s.startIndex(idx) })
}

// StopChild asks the child at idx to terminate. It returns once the signal
// is sent; the stopped event reports the actual exit. The active strategy
// sees that exit like any other, so only never leaves the child down.
func (s *Supervisor) StopChild(idx int) error {
	return s.call(func() error { return s.stop(idx) })
}

// RestartChild stops a running or stopped child and starts it again once it
// has exited.
func (s *Supervisor) RestartChild(idx int) error {
	return s.call(func() error { return s.restart(idx) })
}

// DeleteChild frees a stopped slot. The index is never reused. Deleting an
// empty slot succeeds.
func (s *Supervisor) DeleteChild(idx int) error {
	return s.call(func() error { return s.remove(idx) })
}

// StopAllChildren clears the restart strategy and stops every child except
// those in ignore, highest index first. Per-child failures are published as
// error events and do not interrupt the sweep.
func (s *Supervisor) StopAllChildren(ignore []int) error {
	for _, idx := range ignore {
		if idx < 0 {
			return fmt.Errorf("%w: ignore index %d", ErrInvalidArgument, idx)
		}
	}
	return s.call(func() error {
		s.stopAll(ignore)
		return nil
	})
}

// CountChildren returns the number of occupied slots.
func (s *Supervisor) CountChildren() int {
	n := 0
	_ = s.call(func() error {
		n = s.count()
		return nil
	})
	return n
}

// CheckChildSpecs validates raw specs as decoded from JSON or config.
func (s *Supervisor) CheckChildSpecs(specs []map[string]any) bool {
	return child.CheckChildSpecs(specs)
}

// RestartStrategy returns the active strategy, or nil after StopAllChildren.
func (s *Supervisor) RestartStrategy() strategy.Strategy {
	var st strategy.Strategy
	_ = s.call(func() error {
		st = s.strat
		return nil
	})
	return st
}

// SetRestartStrategy installs a fresh strategy of the given kind. The
// previous strategy's restart log is discarded.
func (s *Supervisor) SetRestartStrategy(kind strategy.Kind) error {
	st, err := strategy.New(kind, loopCtl{s}, s.stratCf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return s.call(func() error {
		s.strat = st
		return nil
	})
}

// Child returns a snapshot of the slot at idx.
func (s *Supervisor) Child(idx int) (ChildInfo, error) {
	var ci ChildInfo
	err := s.call(func() error {
		r := s.get(idx)
		if r == nil {
			return notFound(idx)
		}
		ci = r.info(idx)
		return nil
	})
	return ci, err
}

// Children returns snapshots of all occupied slots in index order.
func (s *Supervisor) Children() []ChildInfo {
	var out []ChildInfo
	_ = s.call(func() error {
		for idx, r := range s.children {
			if r != nil {
				out = append(out, r.info(idx))
			}
		}
		return nil
	})
	return out
}

// --- control loop internals ---

func (s *Supervisor) get(idx int) *record {
	if idx < 0 || idx >= len(s.children) {
		return nil
	}
	return s.children[idx]
}

func (s *Supervisor) count() int {
	n := 0
	for _, r := range s.children {
		if r != nil {
			n++
		}
	}
	return n
}

func (s *Supervisor) indices() []int {
	out := make([]int, 0, len(s.children))
	for idx, r := range s.children {
		if r != nil {
			out = append(out, idx)
		}
	}
	return out
}

func notFound(idx int) error { return fmt.Errorf("%w: index %d", ErrNotFound, idx) }

func (s *Supervisor) add(spec child.Spec) (int, error) {
	if err := spec.Validate(); err != nil {
		return -1, err
	}
	idx := len(s.children)
	s.children = append(s.children, &record{spec: spec.Clone(), state: child.StateStarting})
	metrics.SetChildren(s.count())
	return idx, s.launch(idx)
}

func (s *Supervisor) startIndex(idx int) error {
	r := s.get(idx)
	if r == nil {
		return notFound(idx)
	}
	if r.state != child.StateStopped && r.state != child.StateRestarting {
		return fmt.Errorf("%w: child %d is not stopped or restarting", ErrInvalidState, idx)
	}
	if r.handle != nil {
		// Detach the old process; its exit will be ignored.
		old := r.handle
		r.handle = nil
		_ = old.Kill()
	}
	r.halt = false
	r.restarts++
	return s.launch(idx)
}

// launch drives a slot through starting to running.
func (s *Supervisor) launch(idx int) error {
	r := s.children[idx]
	s.transition(idx, r, child.StateStarting)
	s.emit(event.Event{Kind: event.Starting, ID: r.spec.ID, Index: idx})

	vars := s.env.Merge(r.spec.Env, map[string]string{
		EnvChildID:    r.spec.ID,
		EnvChildIndex: strconv.Itoa(idx),
	})
	h, err := s.spawner.Spawn(spawn.Command{
		Name: r.spec.ID + "-" + strconv.Itoa(idx),
		Path: r.spec.Path,
		Args: append([]string(nil), r.spec.Args...),
		Env:  vars.Slice(),
	})
	if err != nil {
		r.lastExit = spawn.Exit{Code: -1}
		r.stoppedAt = s.now()
		s.transition(idx, r, child.StateStopped)
		s.emit(event.Event{Kind: event.Stopped, ID: r.spec.ID, Index: idx, Exit: event.Exit{Code: -1}})
		return fmt.Errorf("start child %q (index %d): %w", r.spec.ID, idx, err)
	}
	r.handle = h
	r.runID = xid.New().String()
	r.startedAt = s.now()
	go s.watch(idx, h)
	s.transition(idx, r, child.StateRunning)
	s.emit(event.Event{Kind: event.Running, ID: r.spec.ID, Index: idx, PID: h.Pid()})
	return nil
}

// watch forwards the exit of h to the control loop. idx and h are captured
// by value so a later reuse of the slot cannot redirect the notification.
func (s *Supervisor) watch(idx int, h spawn.Handle) {
	ex, ok := <-h.Exited()
	if !ok {
		ex = spawn.Exit{Code: -1}
	}
	select {
	case s.cmds <- func() { s.exited(idx, h, ex) }:
	case <-s.quit:
	}
}

func (s *Supervisor) exited(idx int, h spawn.Handle, ex spawn.Exit) {
	r := s.get(idx)
	if r == nil || r.handle != h {
		return
	}
	r.handle = nil
	r.lastExit = ex
	r.stoppedAt = s.now()
	resume := r.state == child.StateRestarting && !r.halt
	r.halt = false
	if !resume {
		s.transition(idx, r, child.StateStopped)
	}
	s.emit(event.Event{
		Kind:  event.Stopped,
		ID:    r.spec.ID,
		Index: idx,
		Exit:  event.Exit{Code: ex.Code, Signal: ex.Signal},
	})

	switch {
	case resume:
		if err := s.startIndex(idx); err != nil {
			s.emitError(idx, err)
		}
	case s.strat != nil:
		// Every transition into stopped goes to the strategy, requested stops included.
		s.strat.Process(idx)
	}
}

func (s *Supervisor) stop(idx int) error {
	r := s.get(idx)
	if r == nil {
		return notFound(idx)
	}
	if r.state >= child.StateStopping {
		// Already on its way down: succeed and repeat stopped so waiters are not starved.
		s.emit(event.Event{Kind: event.Stopped, ID: r.spec.ID, Index: idx})
		return nil
	}
	if r.state < child.StateRunning {
		// launch finishes within one loop turn, so only loop-internal callers see starting here.
		return fmt.Errorf("%w: cannot stop child %d before running", ErrInvalidState, idx)
	}
	if r.state != child.StateRestarting {
		s.transition(idx, r, child.StateStopping)
	}
	s.emit(event.Event{Kind: event.Stopping, ID: r.spec.ID, Index: idx, PID: r.pid()})
	if r.handle == nil {
		// Reaped already; complete the stop as if the exit had just arrived.
		s.later(func() { s.exited(idx, nil, r.lastExit) })
		return nil
	}
	if err := r.handle.Kill(); err != nil {
		return fmt.Errorf("stop child %q (index %d): %w", r.spec.ID, idx, err)
	}
	return nil
}

func (s *Supervisor) restart(idx int) error {
	r := s.get(idx)
	if r == nil {
		return notFound(idx)
	}
	if r.state != child.StateRunning && r.state != child.StateStopped {
		return fmt.Errorf("%w: child %d must be running or stopped", ErrInvalidState, idx)
	}
	s.transition(idx, r, child.StateRestarting)
	s.emit(event.Event{Kind: event.Restarting, ID: r.spec.ID, Index: idx})
	if err := s.stop(idx); err != nil {
		s.emitError(idx, err)
		return err
	}
	return nil
}

func (s *Supervisor) remove(idx int) error {
	r := s.get(idx)
	if r == nil {
		return nil
	}
	if r.state != child.StateStopped {
		return fmt.Errorf("%w: child %d is not stopped", ErrInvalidState, idx)
	}
	s.children[idx] = nil
	metrics.ClearChild(r.spec.ID, idx)
	metrics.SetChildren(s.count())
	return nil
}

func (s *Supervisor) stopAll(ignore []int) {
	s.strat = nil
	skip := make(map[int]bool, len(ignore))
	for _, idx := range ignore {
		skip[idx] = true
	}
	for idx := len(s.children) - 1; idx >= 0; idx-- {
		r := s.children[idx]
		if r == nil || skip[idx] {
			continue
		}
		if r.state == child.StateRestarting {
			r.halt = true
		}
		if err := s.stop(idx); err != nil {
			s.emitError(idx, err)
		}
	}
}

func (s *Supervisor) transition(idx int, r *record, to child.State) {
	from := r.state
	r.state = to
	metrics.RecordStateTransition(r.spec.ID, idx, from.String(), to.String())
}

func (s *Supervisor) emit(e event.Event) {
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	if r := s.get(e.Index); r != nil && e.RunID == "" && e.Kind != event.Starting {
		e.RunID = r.runID
	}
	metrics.ObserveEvent(e.Kind.String(), e.ID)
	s.bus.Publish(e)
}

func (s *Supervisor) emitError(idx int, err error) {
	e := event.Event{Kind: event.Error, Index: idx, Err: err}
	if r := s.get(idx); r != nil {
		e.ID = r.spec.ID
	}
	s.emit(e)
}

func (s *Supervisor) throttled(idx int) {
	id := ""
	if r := s.get(idx); r != nil {
		id = r.spec.ID
	}
	metrics.IncThrottled(id)
	s.log.Warn("restart limit reached, leaving child down", "id", id, "index", idx)
}

// loopCtl is the strategy's view of the supervisor. Strategies run on the
// control loop, so it calls the loop internals directly.
type loopCtl struct{ s *Supervisor }

func (c loopCtl) StartChild(idx int) error   { return c.s.startIndex(idx) }
func (c loopCtl) RestartChild(idx int) error { return c.s.restart(idx) }
func (c loopCtl) Indices() []int             { return c.s.indices() }
func (c loopCtl) EmitError(err error)        { c.s.emitError(-1, err) }
