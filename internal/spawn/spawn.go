// Package spawn starts child processes for the supervisor and reports their
// exits. Starting and killing never block on the child's termination.
package spawn

// Command is what the supervisor asks to run.
type Command struct {
	// Name labels the child for log file naming, e.g. "web-0".
	Name string
	Path string
	Args []string
	// Env is the complete environment in "K=V" form.
	Env []string
}

// Exit is how a child ended. Code is -1 when the child was killed by a
// signal, in which case Signal holds its name (e.g. "SIGTERM").
type Exit struct {
	Code   int
	Signal string
}

// Handle is a started child process.
type Handle interface {
	Pid() int
	// Exited delivers exactly one Exit and is then closed.
	Exited() <-chan Exit
	// Kill requests termination and returns without waiting for it.
	Kill() error
}

// Spawner starts child processes.
type Spawner interface {
	Spawn(cmd Command) (Handle, error)
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(cmd Command) (Handle, error)

func (f SpawnerFunc) Spawn(cmd Command) (Handle, error) { return f(cmd) }
