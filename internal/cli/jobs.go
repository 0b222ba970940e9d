package cli

import (
	"errors"
	"fmt"
	"io"

	"shop-sync-service/internal/models"

	"github.com/spf13/cobra"
)

// NewJobsCommand creates the jobs command group
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage job definitions",
	}

	cmd.AddCommand(newJobsValidateCommand(rootOpts))
	cmd.AddCommand(newJobsImportCommand(rootOpts))

	return cmd
}

func newJobsValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <jobs.yaml>",
		Short: "Check a job file without touching the database",
		Long: `Check every job definition of a YAML job file.

The config of each job is checked against the shape of its type and its
trigger must be schedulable. Nothing is written.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := loadJobs(args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if rootOpts.Verbose {
				printJobs(cmd.OutOrStdout(), jobs)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d job(s) valid\n", len(jobs))
			return nil
		},
	}
}

func newJobsImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <jobs.yaml>",
		Short: "Validate a job file and store its jobs",
		Long: `Validate a job file and store every job it defines.

The whole file is rejected when any definition is invalid, and the jobs
are stored in one transaction so a failed insert stores none. A running
service arms imported jobs on its next start or through
POST /api/v1/jobs/:id/schedule.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootOpts.DatabaseURL == "" {
				return errNoDatabaseURL
			}
			jobs, err := loadJobs(args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			db, err := rootOpts.openStore(rootOpts.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			if err := db.CreateJobs(cmd.Context(), jobs); err != nil {
				return err
			}
			printJobs(cmd.OutOrStdout(), jobs)
			fmt.Fprintf(cmd.OutOrStdout(), "%d job(s) imported\n", len(jobs))
			return nil
		},
	}
}

func loadJobs(path string, errOut io.Writer) ([]*models.Job, error) {
	file, err := LoadJobFile(path)
	if err != nil {
		return nil, err
	}

	jobs, errs := file.ToJobs()
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(errOut, e)
		}
		return nil, fmt.Errorf("%d invalid job definition(s): %w", len(errs), errors.Join(errs...))
	}
	return jobs, nil
}

func printJobs(out io.Writer, jobs []*models.Job) {
	for _, job := range jobs {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", job.ID, job.Name, job.Type, job.TriggerType)
	}
}
