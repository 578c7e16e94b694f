package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/everlast/internal/auth"
	"github.com/loykin/everlast/internal/config"
	"github.com/loykin/everlast/internal/history"
	"github.com/loykin/everlast/internal/history/factory"
	"github.com/loykin/everlast/internal/metrics"
	"github.com/loykin/everlast/internal/server"
	"github.com/loykin/everlast/internal/supervisor"
	tlsconf "github.com/loykin/everlast/internal/tls"
)

func createRunCommand(flags *GlobalFlags) *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "run [config]",
		Short: "Run the supervisor in the foreground",
		Long: `Load the config, start every [[children]] entry and supervise them until
SIGINT or SIGTERM. On shutdown every child is stopped, highest index first.

Examples:
  everlast run config.toml
  everlast run --config=config.yaml --shutdown-timeout=30s`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSupervisor(ctx, path, shutdownTimeout)
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "how long to wait for children to exit")
	return cmd
}

// runSupervisor wires config, logging, metrics, history and the HTTP surface
// around one supervisor and blocks until ctx is done.
func runSupervisor(ctx context.Context, path string, shutdownTimeout time.Duration) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, logCloser, err := cfg.LoggerConfig().Setup()
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()

	opts, err := cfg.SupervisorOptions()
	if err != nil {
		return err
	}
	opts.Logger = log
	specs, err := cfg.ChildSpecs()
	if err != nil {
		return err
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Listen != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		metricsSrv = serveMetrics(cfg.Metrics.Listen, log)
	}

	sinks, err := openSinks(cfg.History.DSN)
	if err != nil {
		return err
	}
	defer closeSinks(sinks)

	sup, err := supervisor.New(opts)
	if err != nil {
		closeServer(metricsSrv)
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		supervisor.LogEvents(sup.Subscribe(), log)
	}()
	if len(sinks) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Runs until the supervisor closes its bus so shutdown stops are recorded.
			history.Forward(context.Background(), sup.Subscribe(), sup.ID(), sinks...)
		}()
	}

	var apiSrv *http.Server
	if cfg.HTTP.Listen != "" {
		apiSrv, err = serveAPI(cfg.HTTP, sup, log)
		if err != nil {
			sup.Close()
			wg.Wait()
			closeServer(metricsSrv)
			return err
		}
	}

	if len(specs) > 0 {
		idxs, err := sup.StartChildren(specs)
		if err != nil {
			log.Error("starting children", "error", err, "started", idxs)
		} else {
			log.Info("children started", "count", len(idxs), "strategy", cfg.Strategy)
		}
	}

	<-ctx.Done()
	log.Info("shutting down", "timeout", shutdownTimeout)

	closeServer(apiSrv)
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = sup.Shutdown(sctx)
	sup.Close() // no-op unless Shutdown failed before closing
	wg.Wait()
	closeServer(metricsSrv)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("children still running after %s", shutdownTimeout)
	}
	return err
}

func serveAPI(hc config.HTTPConfig, sup *supervisor.Supervisor, log *slog.Logger) (*http.Server, error) {
	tc, err := tlsconf.Setup(hc.TLS)
	if err != nil {
		return nil, fmt.Errorf("http tls: %w", err)
	}
	var authSvc *auth.AuthService
	if hc.Auth.Enabled {
		if authSvc, err = auth.NewAuthService(hc.Auth); err != nil {
			return nil, fmt.Errorf("http auth: %w", err)
		}
	}
	srv, err := server.Serve(server.Options{
		Addr:     hc.Listen,
		BasePath: hc.BasePath,
		TLS:      tc,
		Auth:     authSvc,
		Logger:   log,
	}, sup)
	if err != nil {
		return nil, fmt.Errorf("control API: %w", err)
	}
	log.Info("control API listening", "addr", srv.Addr, "base_path", hc.BasePath,
		"tls", tc != nil, "auth", authSvc != nil)
	return srv, nil
}

func serveMetrics(addr string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "error", err)
		}
	}()
	log.Info("metrics listening", "addr", addr)
	return srv
}

func openSinks(dsns []string) ([]history.Sink, error) {
	var sinks []history.Sink
	for _, dsn := range dsns {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			closeSinks(sinks)
			return nil, fmt.Errorf("history sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func closeSinks(sinks []history.Sink) {
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

func closeServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "server shutdown:", err)
	}
}
