package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sarsweep/internal/store"
	"github.com/banshee-data/sarsweep/internal/timeutil"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run ledger schema",
	}
	cmd.PersistentFlags().String("ledger", "", "Ledger database path (default from config)")

	cmd.AddCommand(
		newMigrateActionCmd("up", "Apply all pending migrations", cobra.NoArgs, func(l *store.Ledger, args []string) error {
			return l.MigrateUp()
		}),
		newMigrateActionCmd("down", "Roll back the most recent migration", cobra.NoArgs, func(l *store.Ledger, args []string) error {
			return l.MigrateDown()
		}),
		newMigrateActionCmd("version", "Show the current schema version", cobra.NoArgs, func(l *store.Ledger, args []string) error {
			return nil
		}),
		newMigrateActionCmd("force <version>", "Set the schema version without migrating, to clear a dirty state", cobra.ExactArgs(1), func(l *store.Ledger, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return l.MigrateForce(v)
		}),
	)
	return cmd
}

// newMigrateActionCmd opens the ledger without migrating it, runs action and
// prints the resulting version.
func newMigrateActionCmd(use, short string, args cobra.PositionalArgs, action func(*store.Ledger, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ledgerPath(cmd)
			if err != nil {
				return err
			}
			l, err := store.OpenLedgerNoMigrate(path, timeutil.RealClock{})
			if err != nil {
				return err
			}
			defer l.Close()

			if err := action(l, args); err != nil {
				return err
			}
			version, dirty, err := l.MigrateVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ledger %s: schema version %d (dirty: %v)\n", path, version, dirty)
			if dirty {
				fmt.Fprintln(cmd.OutOrStdout(), "a migration failed mid-way; inspect the database, then run 'sarsweep migrate force <version>'")
			}
			return nil
		},
	}
}
