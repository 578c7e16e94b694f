package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
	Token      string
	Username   string
	Password   string
	CACert     string
	Insecure   bool
}

// buildRoot creates the root command with all subcommands attached.
func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := createRootCommand(flags)
	root.AddCommand(
		createRunCommand(flags),
		createCheckCommand(flags),
		createChildrenCommand(flags),
		createStartCommand(flags),
		createStopCommand(flags),
		createRestartCommand(flags),
		createDeleteCommand(flags),
		createStopAllCommand(flags),
		createStrategyCommand(flags),
		createLoginCommand(flags),
		createHashPasswordCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "everlast",
		Short: "Process supervisor with OTP-style restart strategies",
		Long: `Everlast keeps a set of child processes alive. When a child stops it is
restarted according to the configured strategy
(one_for_one, one_for_all, rest_for_one or never), bounded by a
restart-intensity limit.

Examples:
  everlast run config.toml              # supervise the children in config.toml
  everlast check config.toml            # validate config without starting anything
  everlast children                     # list children of a running supervisor
  everlast restart 2 --api-url=http://remote:8080/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to config file (toml, yaml or json)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "http://127.0.0.1:8080/api", "supervisor API URL")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	root.PersistentFlags().StringVar(&flags.Token, "token", os.Getenv("EVERLAST_TOKEN"), "bearer token for the API (env EVERLAST_TOKEN)")
	root.PersistentFlags().StringVar(&flags.Username, "user", "", "username for basic auth")
	root.PersistentFlags().StringVar(&flags.Password, "password", os.Getenv("EVERLAST_PASSWORD"), "password for basic auth (env EVERLAST_PASSWORD)")
	root.PersistentFlags().StringVar(&flags.CACert, "ca-cert", "", "CA certificate to trust for an https API URL")
	root.PersistentFlags().BoolVar(&flags.Insecure, "insecure", false, "skip TLS certificate verification")
	return root
}
