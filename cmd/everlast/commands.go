package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/everlast/internal/config"
	"github.com/loykin/everlast/pkg/client"
)

// command runs one API call against a running supervisor.
type command struct {
	flags *GlobalFlags
	out   io.Writer
}

func newCommand(flags *GlobalFlags, cmd *cobra.Command) command {
	return command{flags: flags, out: cmd.OutOrStdout()}
}

func (c command) client(ctx context.Context) (*client.Client, error) {
	cl := client.New(c.clientConfig())
	if _, err := cl.Count(ctx); client.IsUnauthorized(err) {
		return nil, fmt.Errorf("supervisor at %s refused the credentials: %w", c.flags.APIUrl, err)
	} else if err != nil {
		return nil, fmt.Errorf("supervisor not reachable at %s - start it first with 'everlast run'", c.flags.APIUrl)
	}
	return cl, nil
}

func (c command) clientConfig() client.Config {
	cfg := client.Config{
		BaseURL:  c.flags.APIUrl,
		Timeout:  c.flags.APITimeout,
		Token:    c.flags.Token,
		Username: c.flags.Username,
		Password: c.flags.Password,
		Insecure: c.flags.Insecure,
	}
	if c.flags.CACert != "" {
		cfg.TLS = &client.TLSClientConfig{Enabled: true, CACert: c.flags.CACert}
	}
	return cfg
}

func parseIndex(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("index must be a non-negative integer, got %q", s)
	}
	return idx, nil
}

func createCheckCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [config]",
		Short: "Validate a config file without starting anything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			kind, _ := cfg.StrategyKind()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "config OK: %d children, strategy %s, max_restarts %d, max_time %d\n",
				len(cfg.Children), kind, cfg.MaxRestarts, cfg.MaxTime)
			return nil
		},
	}
}

func createChildrenCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "children [index]",
		Short: "List children, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newCommand(flags, cmd)
			cl, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				idx, err := parseIndex(args[0])
				if err != nil {
					return err
				}
				ci, err := cl.Child(cmd.Context(), idx)
				if err != nil {
					return err
				}
				printJSON(c.out, ci)
				return nil
			}
			list, err := cl.Children(cmd.Context())
			if err != nil {
				return err
			}
			printTable(c.out, list)
			return nil
		},
	}
}

// StartFlags describes either a new child or an existing slot to start.
type StartFlags struct {
	Index int
	ID    string
	Path  string
	Env   []string
	File  string
}

func (f StartFlags) specs(args []string) ([]client.ChildSpec, error) {
	if f.File != "" {
		cfg, err := config.Load(f.File)
		if err != nil {
			return nil, err
		}
		specs, err := cfg.ChildSpecs()
		if err != nil {
			return nil, err
		}
		out := make([]client.ChildSpec, 0, len(specs))
		for _, s := range specs {
			out = append(out, client.ChildSpec{ID: s.ID, Path: s.Path, Args: s.Args, Env: s.Env})
		}
		return out, nil
	}
	if f.ID == "" || f.Path == "" {
		return nil, fmt.Errorf("either --index, --file, or both --id and --path are required")
	}
	sp := client.ChildSpec{ID: f.ID, Path: f.Path, Args: args}
	for _, kv := range f.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q, want KEY=VALUE", kv)
		}
		if sp.Env == nil {
			sp.Env = map[string]string{}
		}
		sp.Env[k] = v
	}
	return []client.ChildSpec{sp}, nil
}

func createStartCommand(flags *GlobalFlags) *cobra.Command {
	sf := &StartFlags{}
	cmd := &cobra.Command{
		Use:   "start [--index N | --id ID --path PATH [-- args...] | --file children.toml]",
		Short: "Start a new child or a stopped slot",
		Long: `Start a new child on a running supervisor, or start a stopped slot again.

Examples:
  everlast start --id=web --path=/usr/bin/web -- --port 8081
  everlast start --file=children.toml
  everlast start --index=2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newCommand(flags, cmd)
			if cmd.Flags().Changed("index") {
				if sf.Index < 0 {
					return fmt.Errorf("index must be a non-negative integer")
				}
				cl, err := c.client(cmd.Context())
				if err != nil {
					return err
				}
				return cl.StartChildAt(cmd.Context(), sf.Index)
			}
			specs, err := sf.specs(args)
			if err != nil {
				return err
			}
			cl, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			idxs, err := cl.StartChildren(cmd.Context(), specs...)
			if len(idxs) > 0 {
				printJSON(c.out, map[string][]int{"indices": idxs})
			}
			return err
		},
	}
	cmd.Flags().IntVar(&sf.Index, "index", 0, "start the stopped slot at this index")
	cmd.Flags().StringVar(&sf.ID, "id", "", "child id")
	cmd.Flags().StringVar(&sf.Path, "path", "", "program to run")
	cmd.Flags().StringArrayVar(&sf.Env, "env", nil, "extra KEY=VALUE for the child (repeatable)")
	cmd.Flags().StringVar(&sf.File, "file", "", "config file whose [[children]] are started")
	return cmd
}

func createIndexCommand(flags *GlobalFlags, use, short string, op func(*client.Client, context.Context, int) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " INDEX",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			cl, err := newCommand(flags, cmd).client(cmd.Context())
			if err != nil {
				return err
			}
			return op(cl, cmd.Context(), idx)
		},
	}
}

func createStopCommand(flags *GlobalFlags) *cobra.Command {
	return createIndexCommand(flags, "stop", "Stop a child; it is not restarted", (*client.Client).StopChild)
}

func createRestartCommand(flags *GlobalFlags) *cobra.Command {
	return createIndexCommand(flags, "restart", "Stop a child and start it again", (*client.Client).RestartChild)
}

func createDeleteCommand(flags *GlobalFlags) *cobra.Command {
	return createIndexCommand(flags, "delete", "Free the slot of a stopped child", (*client.Client).DeleteChild)
}

func createStopAllCommand(flags *GlobalFlags) *cobra.Command {
	var ignore []int
	cmd := &cobra.Command{
		Use:   "stop-all",
		Short: "Stop every child and disable automatic restarts",
		Long: `Stop every child except the ignored indices, highest index first.
The restart strategy is cleared; use 'everlast strategy KIND' to re-arm it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := newCommand(flags, cmd).client(cmd.Context())
			if err != nil {
				return err
			}
			return cl.StopAll(cmd.Context(), ignore...)
		},
	}
	cmd.Flags().IntSliceVar(&ignore, "ignore", nil, "indices to leave running")
	return cmd
}

func createStrategyCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "strategy [KIND]",
		Short: "Show or set the restart strategy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newCommand(flags, cmd)
			cl, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				if err := cl.SetStrategy(cmd.Context(), args[0]); err != nil {
					return err
				}
			}
			kind, err := cl.Strategy(cmd.Context())
			if err != nil {
				return err
			}
			if kind == "" {
				kind = "(none)"
			}
			_, _ = fmt.Fprintln(c.out, kind)
			return nil
		},
	}
}
