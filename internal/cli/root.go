package cli

import (
	"context"
	"os"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/store"

	"github.com/spf13/cobra"
)

// JobStore is the part of the record store the operator commands use
type JobStore interface {
	CreateJobs(ctx context.Context, jobs []*models.Job) error
	Migrate(ctx context.Context) error
	Close() error
}

// StoreOpener connects to the record store
type StoreOpener func(databaseURL string) (JobStore, error)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Verbose     bool
	DatabaseURL string

	openStore StoreOpener
}

func openPostgres(databaseURL string) (JobStore, error) {
	return store.NewStore(databaseURL)
}

// NewRootCommand creates the root command of the operator CLI
func NewRootCommand() *cobra.Command {
	return newRootCommand(openPostgres)
}

func newRootCommand(openStore StoreOpener) *cobra.Command {
	opts := &RootOptions{openStore: openStore}

	cmd := &cobra.Command{
		Use:   "shopsyncctl",
		Short: "Operator tooling for the shop sync service",
		Long:  "Migrate the record store and manage scheduled job definitions of the shop sync service.",
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection URL")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))

	return cmd
}
