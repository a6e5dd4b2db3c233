package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type formOptions struct {
	set    []string
	file   string
	idemID string
}

func (o *formOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&o.set, "set", nil, "field value as key=value; JSON values such as true or [..] are decoded")
	cmd.Flags().StringVar(&o.file, "values-file", "", "JSON object of field values; --set entries override it")
}

// values merges the values file and the --set entries.
func (o *formOptions) values() (map[string]any, error) {
	values := map[string]any{}
	if o.file != "" {
		data, err := os.ReadFile(o.file)
		if err != nil {
			return nil, fmt.Errorf("read values: %w", err)
		}
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("values file %s: %w", o.file, err)
		}
	}
	for _, kv := range o.set {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			if _, isNum := decoded.(float64); !isNum {
				values[k] = decoded
				continue
			}
		}
		values[k] = v
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no values given (use --set or --values-file)")
	}
	return values, nil
}

var editOpts formOptions

var editCmd = &cobra.Command{
	Use:   "edit <resource> <id>",
	Short: "Edit one row",
	Long: `Edit sends the given fields of one row. Fields left out keep their value;
a password left blank is not changed.

Example:
  formdesk edit users 9 --set email=val@example.com --set is_active=false
  formdesk edit forms 12 --values-file schema.json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := editOpts.values()
		if err != nil {
			return err
		}
		rctx, err := app.requestContext(cmd.Context())
		if err != nil {
			return err
		}
		resp, err := app.manager.Update(cmd.Context(), rctx, args[0], args[1], values)
		if err != nil {
			return fmt.Errorf("%s %s: %w", args[0], args[1], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", args[0], args[1], resp.Message)
		return nil
	},
}

var createOpts formOptions

var createCmd = &cobra.Command{
	Use:   "create <resource>",
	Short: "Create a row",
	Long: `Create sends a new row. Retrying with the same --idempotency-key and values
does not create it twice.

Example:
  formdesk create users --set username=val --set email=val@example.com \
    --set password=s3cret --set password2=s3cret --set role=Viewer`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := createOpts.values()
		if err != nil {
			return err
		}
		rctx, err := app.requestContext(cmd.Context())
		if err != nil {
			return err
		}
		resp, err := app.manager.Create(cmd.Context(), rctx, args[0], values, createOpts.idemID)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
		return nil
	},
}

func init() {
	editOpts.register(editCmd)
	createOpts.register(createCmd)
	createCmd.Flags().StringVar(&createOpts.idemID, "idempotency-key", "", "key that makes retries of this create safe")
}
