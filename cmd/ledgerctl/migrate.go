package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"churchledger/internal/storage"
)

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.RunMigrations(a.dbPath); err != nil {
				return err
			}
			a.logger.Info("Migrations applied", "db_path", a.dbPath)
			return a.printStatus(cmd)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.RollbackMigrations(a.dbPath, steps); err != nil {
				return err
			}
			a.logger.Info("Migrations reverted", "db_path", a.dbPath, "steps", steps)
			return a.printStatus(cmd)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printStatus(cmd)
		},
	})
	return cmd
}

func (a *app) printStatus(cmd *cobra.Command) error {
	st, err := storage.Status(a.dbPath)
	if err != nil {
		return err
	}
	dirty := ""
	if st.Dirty {
		dirty = " (dirty)"
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d%s\n", st.Version, dirty)
	return err
}
