package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errNoDatabaseURL = errors.New("database URL is required (--database-url or DATABASE_URL)")

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Create the record store tables",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootOpts.DatabaseURL == "" {
				return errNoDatabaseURL
			}
			db, err := rootOpts.openStore(rootOpts.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}
