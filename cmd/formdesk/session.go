package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaviermatuz/formdesk/internal/session"
)

var loginPassword string

var loginCmd = &cobra.Command{
	Use:   "login <username|email>",
	Short: "Log in to the forms API",
	Long: `Login exchanges a username or email and password for a token pair and
stores it in the local session database. Without --password the password is
read from the first line of standard input.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored login",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := app.sessions.Clear(cmd.Context(), cliSession); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rctx, err := app.requestContext(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (id %s) roles: %s\n", rctx.Username, rctx.UserID, strings.Join(rctx.Roles, ", "))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password (read from stdin when empty)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	password := loginPassword
	if password == "" {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return errors.New("no password given")
		}
		password = strings.TrimRight(line, "\r\n")
	}

	creds, id, err := app.api.Login(cmd.Context(), args[0], password)
	if err != nil {
		return err
	}
	if err := session.SaveCredentials(cmd.Context(), app.sessions, cliSession, creds); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	app.logger.Debug("login stored", zap.String("user_id", id.UserID))
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s).\n", id.Username, strings.Join(id.Roles, ", "))
	return nil
}
