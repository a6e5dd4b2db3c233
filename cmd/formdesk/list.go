package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xaviermatuz/formdesk/internal/workspace"
)

// listOptions are the flags shared by list and export.
type listOptions struct {
	scope    string
	page     int
	pageSize int
	search   string
	sort     []string
	filters  []string
}

func (o *listOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.scope, "scope", "", "scope id, e.g. the form whose submissions to list")
	cmd.Flags().IntVar(&o.page, "page", 0, "page number")
	cmd.Flags().IntVar(&o.pageSize, "page-size", 0, "rows per page (5, 10, 20, 50 or 100)")
	cmd.Flags().StringVar(&o.search, "search", "", "search text")
	cmd.Flags().StringSliceVar(&o.sort, "sort", nil, "column to sort by; repeat to toggle the direction")
	cmd.Flags().StringSliceVar(&o.filters, "filter", nil, "filter as name=value, e.g. state=deleted")
}

// change turns the flags into one table state change.
func (o *listOptions) change() (workspace.StateChange, error) {
	var change workspace.StateChange
	if len(o.filters) > 0 {
		change.Filters = make(map[string]string, len(o.filters))
		for _, f := range o.filters {
			name, value, ok := strings.Cut(f, "=")
			if !ok || name == "" {
				return change, fmt.Errorf("invalid filter %q (expected name=value)", f)
			}
			change.Filters[name] = value
		}
	}
	if o.search != "" {
		change.Search = &o.search
		change.FlushSearch = true
	}
	if o.pageSize != 0 {
		change.PageSize = &o.pageSize
	}
	if o.page != 0 {
		change.Page = &o.page
	}
	return change, nil
}

// open opens the table and applies the flags to it.
func (o *listOptions) open(cmd *cobra.Command, resource string) (workspace.Table, error) {
	rctx, err := app.requestContext(cmd.Context())
	if err != nil {
		return nil, err
	}
	t, err := app.manager.Table(cmd.Context(), rctx, resource, o.scope)
	if err != nil {
		return nil, err
	}
	change, err := o.change()
	if err != nil {
		return nil, err
	}
	if err := t.Apply(cmd.Context(), rctx, change); err != nil {
		return nil, err
	}
	for _, key := range o.sort {
		if err := t.Apply(cmd.Context(), rctx, workspace.StateChange{SortKey: key}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

var listOpts listOptions

var listCmd = &cobra.Command{
	Use:   "list <resource>",
	Short: "Show one page of a resource",
	Long: `List prints one page of forms, submissions, users or audit_logs.

Example:
  formdesk list forms --filter state=deleted
  formdesk list forms --sort name --sort name      (name, descending)
  formdesk list submissions --scope 12 --page-size 20`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := listOpts.open(cmd, args[0])
		if err != nil {
			return err
		}
		rctx, err := app.requestContext(cmd.Context())
		if err != nil {
			return err
		}
		render(cmd, t, rctx)
		return nil
	},
}

func init() {
	listOpts.register(listCmd)
}
