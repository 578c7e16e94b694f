package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/everlast/internal/auth"
	"github.com/loykin/everlast/pkg/client"
)

func createLoginCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Exchange --user/--password for a bearer token",
		Long: `Print a token for the control API. Export it as EVERLAST_TOKEN to use it
with the other commands.

Examples:
  export EVERLAST_TOKEN=$(everlast login --user ops --password secret)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.Username == "" || flags.Password == "" {
				return fmt.Errorf("login needs --user and --password")
			}
			c := newCommand(flags, cmd)
			cfg := c.clientConfig()
			cfg.Token, cfg.Username, cfg.Password = "", "", ""
			res, err := client.New(cfg).Login(cmd.Context(), flags.Username, flags.Password)
			if err != nil {
				return err
			}
			if res.Token == nil {
				return fmt.Errorf("login succeeded but no token was issued")
			}
			_, _ = fmt.Fprintln(c.out, res.Token.Value)
			return nil
		},
	}
}

func createHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for an [[http.auth.users]] password_hash",
		Long: `Hash a password for the config file. Without an argument the password is
read from the first line of stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pw string
			if len(args) == 1 {
				pw = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				pw = strings.TrimRight(line, "\r\n")
			}
			hash, err := auth.HashPassword(pw)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
