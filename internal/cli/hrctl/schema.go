package hrctl

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/yamini-Krishna/employee-management/internal/hrschema"
)

type schemaReply struct {
	Tables  []hrschema.TableInfo `json:"tables"`
	BuiltAt time.Time            `json:"built_at"`
}

func newSchemaCmd(opts Options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the HR schema the assistant sees",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAPIClient(opts)
			var reply schemaReply
			if err := client.doJSON(cmd.Context(), http.MethodGet, "/v1/schema", nil, &reply); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return renderJSON(out, reply)
			}
			columns := []string{"table", "column", "type", "nullable"}
			var rows [][]any
			for _, table := range reply.Tables {
				for _, column := range table.Columns {
					rows = append(rows, []any{table.Name, column.Name, column.DataType, column.Nullable})
				}
			}
			renderTable(out, columns, rows)
			_, _ = fmt.Fprintf(out, "snapshot built at %s\n", reply.BuiltAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw schema JSON")

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the schema snapshot after a migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := newAPIClient(opts)
			var reply struct {
				Tables  []string  `json:"tables"`
				BuiltAt time.Time `json:"built_at"`
			}
			if err := client.doJSON(cmd.Context(), http.MethodPost, "/v1/schema/refresh", nil, &reply); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "refreshed: %d tables at %s\n", len(reply.Tables), reply.BuiltAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.AddCommand(refresh)
	return cmd
}
