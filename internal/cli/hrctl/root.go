// Package hrctl is the command-line client for the HR assistant API.
package hrctl

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL string
	APIKey  string
	UserID  string
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
}

func NewRootCmd(opts Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "hrctl",
		Short:         "Ask the HR assistant questions from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.AddCommand(
		newAskCmd(opts),
		newSchemaCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

// Run executes hrctl and returns the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	root := NewRootCmd(opts)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "hrctl: %v\n", err)
		return 1
	}
	return 0
}
