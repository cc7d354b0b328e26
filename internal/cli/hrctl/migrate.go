package hrctl

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yamini-Krishna/employee-management/internal/config"
	"github.com/yamini-Krishna/employee-management/internal/migrations"
	"github.com/yamini-Krishna/employee-management/internal/store"
)

// migrate talks to the database directly, not the API: migrations must be
// runnable while the API is down.
func newMigrateCmd(Options) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage assistant database migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv("hrctl")
			if err != nil {
				return err
			}
			db, err := store.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			applied, err := migrations.NewRunner().Up(cmd.Context(), db, steps)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	}
	up.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply (0 means all)")

	downSteps := 1
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv("hrctl")
			if err != nil {
				return err
			}
			db, err := store.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			rolledBack, err := migrations.NewRunner().Down(cmd.Context(), db, downSteps)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", rolledBack)
			return nil
		},
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}
