package spawn

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/everlast/internal/logger"
)

// ExecSpawner runs children with os/exec. Each child gets its own process
// group so Kill reaches grandchildren as well.
type ExecSpawner struct {
	// Interpreter, when set, is prepended to the command (e.g. "node").
	Interpreter string
	// Stdio captures child output to rotating files. When disabled the
	// output is forwarded to Stdout and Stderr.
	Stdio  logger.FileConfig
	Stdout io.Writer
	Stderr io.Writer
}

func (s *ExecSpawner) Spawn(c Command) (Handle, error) {
	if c.Path == "" {
		return nil, errors.New("spawn: empty path")
	}
	name, args := c.Path, c.Args
	if s.Interpreter != "" {
		name = s.Interpreter
		args = append([]string{c.Path}, c.Args...)
	}
	// #nosec G204
	cmd := exec.Command(name, args...)
	cmd.Env = c.Env
	configureSysProcAttr(cmd)

	var closers []io.Closer
	if s.Stdio.Enabled() {
		outW, errW, err := s.Stdio.Writers(c.Name)
		if err != nil {
			return nil, err
		}
		if outW != nil {
			cmd.Stdout = outW
			closers = append(closers, outW)
		}
		if errW != nil {
			cmd.Stderr = errW
			closers = append(closers, errW)
		}
	} else {
		cmd.Stdout = orDefault(s.Stdout, os.Stdout)
		cmd.Stderr = orDefault(s.Stderr, os.Stderr)
	}

	if err := cmd.Start(); err != nil {
		closeAll(closers)
		return nil, err
	}
	h := &ExecHandle{cmd: cmd, exited: make(chan Exit, 1)}
	go h.wait(closers)
	return h, nil
}

// ExecHandle is the Handle of an os/exec child.
type ExecHandle struct {
	cmd    *exec.Cmd
	exited chan Exit
	done   atomic.Bool
	once   sync.Once
}

func (h *ExecHandle) Pid() int { return h.cmd.Process.Pid }

func (h *ExecHandle) Exited() <-chan Exit { return h.exited }

// Kill sends the termination signal to the child's process group. It is a
// no-op once the child has been reaped.
func (h *ExecHandle) Kill() error {
	if h.done.Load() {
		return nil
	}
	return terminate(h.cmd)
}

// Alive asks the OS whether the pid still exists.
func (h *ExecHandle) Alive() bool {
	if h.done.Load() {
		return false
	}
	ok, err := gopsproc.PidExists(int32(h.Pid())) // #nosec G115
	return err == nil && ok
}

func (h *ExecHandle) wait(closers []io.Closer) {
	err := h.cmd.Wait()
	h.done.Store(true)
	closeAll(closers)
	h.once.Do(func() {
		h.exited <- exitFrom(h.cmd, err)
		close(h.exited)
	})
}

func exitFrom(cmd *exec.Cmd, err error) Exit {
	ps := cmd.ProcessState
	if ps == nil {
		return Exit{Code: -1, Signal: ""}
	}
	if sig, ok := signalName(ps); ok {
		return Exit{Code: -1, Signal: sig}
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return Exit{Code: ee.ExitCode()}
	}
	return Exit{Code: ps.ExitCode()}
}

func orDefault(w, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}

func closeAll(cs []io.Closer) {
	for _, c := range cs {
		_ = c.Close()
	}
}
