// Package everlast supervises child processes with OTP-style restart
// strategies. It re-exports the internal supervisor for embedding.
package everlast

import (
	"context"
	"crypto/tls"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/everlast/internal/auth"
	"github.com/loykin/everlast/internal/child"
	"github.com/loykin/everlast/internal/config"
	"github.com/loykin/everlast/internal/event"
	"github.com/loykin/everlast/internal/history"
	"github.com/loykin/everlast/internal/history/factory"
	"github.com/loykin/everlast/internal/metrics"
	"github.com/loykin/everlast/internal/server"
	"github.com/loykin/everlast/internal/spawn"
	"github.com/loykin/everlast/internal/strategy"
	"github.com/loykin/everlast/internal/supervisor"
	tlsconf "github.com/loykin/everlast/internal/tls"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Supervisor = supervisor.Supervisor

type Options = supervisor.Options

type ChildSpec = child.Spec

type ChildInfo = supervisor.ChildInfo

type State = child.State

type Event = event.Event

type EventKind = event.Kind

type Subscription = event.Subscription

type StrategyKind = strategy.Kind

type Spawner = spawn.Spawner

type ExecSpawner = spawn.ExecSpawner

type Config = config.FileConfig

type HistorySink = history.Sink

type HTTPOptions = server.Options

type AuthConfig = auth.Config

type AuthUser = auth.User

type AuthService = auth.AuthService

type TLSConfig = tlsconf.Config

const (
	StateStarting   = child.StateStarting
	StateRunning    = child.StateRunning
	StateRestarting = child.StateRestarting
	StateStopping   = child.StateStopping
	StateStopped    = child.StateStopped
)

const (
	EventStarting   = event.Starting
	EventRunning    = event.Running
	EventRestarting = event.Restarting
	EventStopping   = event.Stopping
	EventStopped    = event.Stopped
	EventError      = event.Error
)

const (
	Never      = strategy.KindNever
	OneForOne  = strategy.KindOneForOne
	OneForAll  = strategy.KindOneForAll
	RestForOne = strategy.KindRestForOne
)

var (
	ErrNotFound        = supervisor.ErrNotFound
	ErrInvalidState    = supervisor.ErrInvalidState
	ErrInvalidSpec     = supervisor.ErrInvalidSpec
	ErrInvalidArgument = supervisor.ErrInvalidArgument
	ErrUnimplemented   = supervisor.ErrUnimplemented
	ErrClosed          = supervisor.ErrClosed
)

// New creates a supervisor and starts its control loop.
func New(opts Options) (*Supervisor, error) { return supervisor.New(opts) }

// ParseStrategy accepts "one_for_one", "one-for-all", "RestForOne" and so on.
func ParseStrategy(s string) (StrategyKind, error) { return strategy.ParseKind(s) }

// CheckChildSpecs validates raw specs without starting anything.
func CheckChildSpecs(specs []map[string]any) bool { return child.CheckChildSpecs(specs) }

// LoadConfig reads a toml, yaml or json config file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// NewFromConfig builds a supervisor from a loaded config. Children are not
// started; pass cfg.ChildSpecs() to StartChildren.
func NewFromConfig(cfg *Config) (*Supervisor, error) {
	opts, err := cfg.SupervisorOptions()
	if err != nil {
		return nil, err
	}
	return supervisor.New(opts)
}

// NewHTTPHandler returns the control API for sup, mountable in any mux.
func NewHTTPHandler(sup *Supervisor, basePath string) http.Handler {
	return server.NewRouter(sup, basePath).Handler()
}

// NewHTTPServer starts an HTTP server exposing the control API.
func NewHTTPServer(addr, basePath string, sup *Supervisor) (*http.Server, error) {
	return server.NewServer(addr, basePath, sup)
}

// NewHTTPServerWithOptions starts the control API with optional TLS and
// authentication. The returned server's Addr is the bound address.
func NewHTTPServerWithOptions(opts HTTPOptions, sup *Supervisor) (*http.Server, error) {
	return server.Serve(opts, sup)
}

// NewAuthService builds the authenticator used by HTTPOptions.Auth.
func NewAuthService(cfg AuthConfig) (*AuthService, error) { return auth.NewAuthService(cfg) }

// HashPassword returns a bcrypt hash for AuthUser.PasswordHash.
func HashPassword(password string) (string, error) { return auth.HashPassword(password) }

// SetupTLS builds a server TLS config for HTTPOptions.TLS, generating a
// self-signed certificate when asked to.
func SetupTLS(cfg TLSConfig) (*tls.Config, error) { return tlsconf.Setup(cfg) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
func MetricsHandler() http.Handler                  { return metrics.Handler() }

// NewHistorySink opens a sink from a DSN such as "sqlite:///var/lib/everlast.db",
// "postgres://...", "clickhouse://host:9000/db" or "opensearch://host:9200/index".
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// ForwardHistory writes every lifecycle event of sup to sinks until ctx is
// done or sup is closed. It blocks; run it in a goroutine.
func ForwardHistory(ctx context.Context, sup *Supervisor, sinks ...HistorySink) {
	history.Forward(ctx, sup.Subscribe(), sup.ID(), sinks...)
}
