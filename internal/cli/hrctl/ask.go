package hrctl

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yamini-Krishna/employee-management/internal/shape"
)

type askPayload struct {
	Question string       `json:"question"`
	Output   shape.Output `json:"output"`
}

type askReply struct {
	TraceID      string   `json:"trace_id"`
	GeneratedSQL string   `json:"generated_sql"`
	ExecutedSQL  string   `json:"executed_sql"`
	Verdict      string   `json:"verdict"`
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	RowCount     int      `json:"row_count"`
	Truncated    bool     `json:"truncated"`
	ElapsedMs    int64    `json:"elapsed_ms"`
}

func newAskCmd(opts Options) *cobra.Command {
	var (
		format     string
		showSQL    bool
		pivotRows  []string
		pivotCols  []string
		pivotValue string
		pivotAgg   string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a natural-language question about the HR data",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := askPayload{Question: strings.Join(args, " ")}
			if len(pivotRows) > 0 || len(pivotCols) > 0 || pivotValue != "" {
				payload.Output = shape.Output{
					Kind: shape.KindPivot,
					Pivot: &shape.PivotSpec{
						RowDims:     pivotRows,
						ColDims:     pivotCols,
						ValueMetric: pivotValue,
						Aggregation: shape.Aggregation(pivotAgg),
					},
				}
				if err := payload.Output.Validate(); err != nil {
					return err
				}
			}

			client := newAPIClient(opts)
			var reply askReply
			if err := client.doJSON(cmd.Context(), http.MethodPost, "/v1/assistant/ask", payload, &reply); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if showSQL {
				_, _ = fmt.Fprintf(out, "-- %s (%s)\n%s\n\n", reply.Verdict, reply.TraceID, reply.ExecutedSQL)
			}
			if format == "json" {
				return renderJSON(out, reply)
			}
			renderTable(out, reply.Columns, reply.Rows)
			if reply.Truncated {
				_, _ = fmt.Fprintln(out, "(result truncated at the row cap)")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	cmd.Flags().BoolVar(&showSQL, "show-sql", false, "print the executed SQL before the result")
	cmd.Flags().StringSliceVar(&pivotRows, "pivot-rows", nil, "pivot row dimension columns")
	cmd.Flags().StringSliceVar(&pivotCols, "pivot-cols", nil, "pivot column dimension columns")
	cmd.Flags().StringVar(&pivotValue, "pivot-value", "", "pivot value metric column")
	cmd.Flags().StringVar(&pivotAgg, "pivot-agg", "sum", "pivot aggregation: count, sum, or avg")
	return cmd
}
