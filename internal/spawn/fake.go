package spawn

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Fake is an in-memory Spawner for tests. Handles exit when killed unless
// IgnoreKill is set, and can be made to exit at will with Exit.
type Fake struct {
	mu      sync.Mutex
	nextPID int
	handles []*FakeHandle
	// FailNext makes the next Spawn call return this error.
	FailNext error
	// IgnoreKill leaves killed handles running.
	IgnoreKill bool
}

func NewFake() *Fake { return &Fake{nextPID: 1000} }

func (f *Fake) Spawn(c Command) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FailNext; err != nil {
		f.FailNext = nil
		return nil, err
	}
	f.nextPID++
	h := &FakeHandle{
		pid:        f.nextPID,
		cmd:        c,
		exited:     make(chan Exit, 1),
		ignoreKill: f.IgnoreKill,
	}
	f.handles = append(f.handles, h)
	return h, nil
}

// Fail arms FailNext under the lock, for tests that reach Spawn from
// another goroutine without a synchronizing channel.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	f.FailNext = err
	f.mu.Unlock()
}

// Handles returns every handle spawned so far, oldest first.
func (f *Fake) Handles() []*FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeHandle(nil), f.handles...)
}

// Last returns the most recent handle whose command name is name.
func (f *Fake) Last(name string) *FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.handles) - 1; i >= 0; i-- {
		if f.handles[i].cmd.Name == name {
			return f.handles[i]
		}
	}
	return nil
}

// Spawned returns the number of Spawn calls that succeeded.
func (f *Fake) Spawned() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

var ErrAlreadyExited = errors.New("fake: already exited")

// FakeHandle is a Handle controlled by the test.
type FakeHandle struct {
	pid        int
	cmd        Command
	exited     chan Exit
	once       sync.Once
	kills      atomic.Int32
	ignoreKill bool
}

func (h *FakeHandle) Pid() int            { return h.pid }
func (h *FakeHandle) Command() Command    { return h.cmd }
func (h *FakeHandle) Exited() <-chan Exit { return h.exited }
func (h *FakeHandle) Kills() int          { return int(h.kills.Load()) }

func (h *FakeHandle) Kill() error {
	h.kills.Add(1)
	if h.ignoreKill {
		return nil
	}
	_ = h.Exit(Exit{Code: -1, Signal: "SIGTERM"})
	return nil
}

// Exit makes the fake child terminate with e.
func (h *FakeHandle) Exit(e Exit) error {
	err := ErrAlreadyExited
	h.once.Do(func() {
		h.exited <- e
		close(h.exited)
		err = nil
	})
	return err
}
