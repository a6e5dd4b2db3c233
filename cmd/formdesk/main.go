// Package main is formdesk, the terminal client of the forms API. It renders
// the same tables as the BFF and keeps its login in a local SQLite file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaviermatuz/formdesk/internal/apiclient"
	"github.com/xaviermatuz/formdesk/internal/capability"
	"github.com/xaviermatuz/formdesk/internal/definition"
	"github.com/xaviermatuz/formdesk/internal/metadata"
	"github.com/xaviermatuz/formdesk/internal/observability"
	"github.com/xaviermatuz/formdesk/internal/session"
	"github.com/xaviermatuz/formdesk/internal/table"
	"github.com/xaviermatuz/formdesk/internal/workspace"
	"github.com/xaviermatuz/formdesk/model"
)

// cliSession is the session id the terminal client stores its login under.
const cliSession = "cli"

var (
	// configDir is set by the --config-dir flag.
	configDir string
	// width is set by the --width flag.
	width int

	// app is initialized by PersistentPreRunE.
	app *client
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "formdesk",
	Short: "Browse and manage forms from the terminal",
	Long: `formdesk lists forms, submissions, users and audit logs from the forms API
and creates, edits, deletes or restores rows, with the same columns, filters and actions as
the web console.

Log in once with "formdesk login"; the session is kept in ~/.formdesk.`,
	SilenceUsage:       true,
	PersistentPreRunE:  initClient,
	PersistentPostRunE: func(*cobra.Command, []string) error { return closeClient() },
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", defaultConfigDir(), "directory holding config.yaml and the session database")
	rootCmd.PersistentFlags().IntVar(&width, "width", terminalWidth(), "terminal width; narrow terminals get cards instead of a table")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, listCmd, createCmd, editCmd, deleteCmd, restoreCmd, exportCmd)
}

// terminalWidth reads $COLUMNS, or 0 when unknown.
func terminalWidth() int {
	n, err := strconv.Atoi(os.Getenv("COLUMNS"))
	if err != nil {
		return 0
	}
	return n
}

// client holds everything a command needs.
type client struct {
	logger   *zap.Logger
	api      *apiclient.Client
	sessions *session.SQLiteStore
	registry *definition.Registry
	manager  *workspace.Manager
}

func initClient(*cobra.Command, []string) error {
	s, err := loadSettings(configDir)
	if err != nil {
		return err
	}

	logger, err := observability.NewCLILogger(s.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	api, err := apiclient.New(s.API, apiclient.WithLogger(logger))
	if err != nil {
		return err
	}

	files, err := definition.NewLoader().LoadAll(s.Definitions)
	if err != nil {
		return err
	}
	if verrs := definition.NewValidator().Validate(files, nil); len(verrs) > 0 {
		return fmt.Errorf("definitions: %w", verrs[0])
	}
	registry := definition.NewRegistry(files)

	evaluator, err := capability.NewStaticPolicyEvaluator(s.PolicyFile)
	if err != nil {
		return err
	}
	resolver := capability.NewResolver(evaluator, time.Minute, nil)

	sessions, err := session.OpenSQLite(s.Session.Path, s.Session.TTL)
	if err != nil {
		return err
	}

	tableCfg := s.Table
	tableCfg.IdleTimeout = 0
	app = &client{
		logger:   logger,
		api:      api,
		sessions: sessions,
		registry: registry,
		manager: workspace.NewManager(workspace.Dependencies{
			API:      api,
			Sessions: sessions,
			Tables:   metadata.NewTableProvider(registry, resolver),
			Actions:  metadata.NewActionProvider(resolver),
			Forms:    metadata.NewFormProvider(resolver),
			Config:   tableCfg,
			Logger:   logger,
		}),
	}
	return nil
}

func closeClient() error {
	if app == nil {
		return nil
	}
	app.manager.Close()
	_ = app.logger.Sync()
	err := app.sessions.Close()
	app = nil
	return err
}

// requestContext builds the identity of the stored login.
func (c *client) requestContext(ctx context.Context) (*model.RequestContext, error) {
	creds, err := session.LoadCredentials(ctx, c.sessions, cliSession)
	if errors.Is(err, session.ErrNoSession) {
		return nil, errors.New("not logged in: run formdesk login")
	}
	if err != nil {
		return nil, err
	}
	id, err := apiclient.DecodeClaims(creds.Access)
	if err != nil {
		return nil, fmt.Errorf("stored session is unreadable, log in again: %w", err)
	}
	return &model.RequestContext{
		SessionID: cliSession,
		UserID:    id.UserID,
		Username:  id.Username,
		Roles:     id.Roles,
		LastLogin: id.LastLogin,
		Claims:    id.Claims,
	}, nil
}

// render prints the table's current view for the terminal width.
func render(cmd *cobra.Command, t workspace.Table, rctx *model.RequestContext) {
	view := t.View(cmd.Context(), rctx, table.ChooseLayout(width))
	fmt.Fprintln(cmd.OutOrStdout(), table.RenderTerminal(view, table.DefaultTermStyles()))
}
