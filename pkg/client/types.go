package client

import "time"

// ChildSpec describes a child to start.
type ChildSpec struct {
	ID   string            `json:"id"`
	Path string            `json:"path"`
	Args []string          `json:"args,omitempty"`
	Env  map[string]string `json:"env,omitempty"`
}

// ChildInfo is a snapshot of one supervised slot.
type ChildInfo struct {
	Index     int       `json:"index"`
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Args      []string  `json:"args,omitempty"`
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	Alive     bool      `json:"alive"`
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	Restarts  int       `json:"restarts"`
	ExitCode  int       `json:"exit_code"`
	Signal    string    `json:"signal,omitempty"`
}

// StartResponse is returned by POST /children. Indices is set even when a
// later child failed to spawn.
type StartResponse struct {
	Indices []int  `json:"indices"`
	Error   string `json:"error,omitempty"`
}

type stopAllRequest struct {
	Ignore []int `json:"ignore,omitempty"`
}

type strategyBody struct {
	Strategy string `json:"strategy"`
}

type countResponse struct {
	Count int `json:"count"`
}

type checkResponse struct {
	Valid bool `json:"valid"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /login.
type LoginResponse struct {
	Success  bool     `json:"success"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Token    *Token   `json:"token"`
}

// Token is a bearer token issued by the daemon.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorResponse represents an API error response. Auth failures carry a
// machine code in Error and a readable Message.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
