package cmd

import (
	"github.com/spf13/cobra"

	"github.com/openctemio/sipguard/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the issue ledger schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrations(cmd, func(r *migrations.Runner) error {
			return r.Up(cmd.Context())
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last applied migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrations(cmd, func(r *migrations.Runner) error {
			return r.Down(cmd.Context())
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrations(cmd, func(r *migrations.Runner) error {
			statuses, err := r.Status(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if done, err := render(w, flagOutput, statuses); done {
				return err
			}
			t := newTable(w, "VERSION", "NAME", "APPLIED")
			for _, s := range statuses {
				t.AddRow(s.Version, s.Name, boolToStr(s.Applied))
			}
			return t.Flush()
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func withMigrations(cmd *cobra.Command, fn func(r *migrations.Runner) error) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	db, err := e.db()
	if err != nil {
		return err
	}
	return fn(migrations.NewRunner(db.DB, cmd.OutOrStdout()))
}
