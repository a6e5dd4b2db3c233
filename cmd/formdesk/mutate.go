package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/xaviermatuz/formdesk/internal/workspace"
	"github.com/xaviermatuz/formdesk/model"
)

type mutation func(ctx context.Context, rctx *model.RequestContext, resource, id string) (model.MutationResponse, error)

// mutateEach applies mutate to every id and prints one line per id. It
// stops at the first failure.
func mutateEach(cmd *cobra.Command, resource string, ids []string, mutate mutation) error {
	rctx, err := app.requestContext(cmd.Context())
	if err != nil {
		return err
	}
	for _, id := range ids {
		resp, err := mutate(cmd.Context(), rctx, resource, id)
		if err != nil {
			return fmt.Errorf("%s %s: %w", resource, id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", resource, id, resp.Message)
	}
	return nil
}

var deleteOpts listOptions

var deleteCmd = &cobra.Command{
	Use:   "delete <resource> [id...]",
	Short: "Delete rows",
	Long: `Delete removes rows by id. Rows you may purge are deleted permanently;
the others are marked as deleted and can be restored.

With --all every row of the selected page is deleted at once.

Example:
  formdesk delete forms 12 13
  formdesk delete forms --all --filter state=active --page 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

var deleteAll bool

func runDelete(cmd *cobra.Command, args []string) error {
	resource, ids := args[0], args[1:]
	if !deleteAll {
		if len(ids) == 0 {
			return fmt.Errorf("no ids given (use --all to delete the whole page)")
		}
		return mutateEach(cmd, resource, ids, app.manager.Delete)
	}

	t, err := deleteOpts.open(cmd, resource)
	if err != nil {
		return err
	}
	if err := t.Select(cmd.Context(), workspace.SelectAll, ""); err != nil {
		return err
	}
	rctx, err := app.requestContext(cmd.Context())
	if err != nil {
		return err
	}
	resp, err := app.manager.BulkDelete(cmd.Context(), rctx, resource, deleteOpts.scope)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	if !resp.Success {
		return fmt.Errorf("bulk delete incomplete")
	}
	return nil
}

var restoreCmd = &cobra.Command{
	Use:   "restore <resource> <id...>",
	Short: "Restore soft-deleted rows",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateEach(cmd, args[0], args[1:], app.manager.Restore)
	},
}

var (
	exportOpts listOptions
	exportDir  string
)

var exportCmd = &cobra.Command{
	Use:   "export <resource> [id...]",
	Short: "Write rows of one page to selected-rows.json",
	Long: `Export writes the given rows of the selected page, or every row of the page
when no ids are given, to selected-rows.json.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	resource, ids := args[0], args[1:]
	t, err := exportOpts.open(cmd, resource)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		if err := t.Select(cmd.Context(), workspace.SelectAll, ""); err != nil {
			return err
		}
	}
	for _, id := range ids {
		if err := t.Select(cmd.Context(), workspace.SelectToggle, id); err != nil {
			return err
		}
	}

	rctx, err := app.requestContext(cmd.Context())
	if err != nil {
		return err
	}
	data, err := app.manager.Export(cmd.Context(), rctx, resource, exportOpts.scope)
	if err != nil {
		return err
	}
	path := filepath.Join(exportDir, workspace.ExportFilename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s.\n", path)
	return nil
}

func init() {
	deleteOpts.register(deleteCmd)
	deleteCmd.Flags().BoolVar(&deleteAll, "all", false, "delete every row of the selected page")

	exportOpts.register(exportCmd)
	exportCmd.Flags().StringVar(&exportDir, "dir", ".", "directory to write the export to")
}
