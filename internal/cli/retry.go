package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var retryRun bool

var retryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Requeue a finished job",
	Long: `Put a completed or failed job back into the queue. The retry
counter and the stored error are reset.

With --run, the job is processed immediately instead of waiting for the
next drain.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func init() {
	retryCmd.Flags().BoolVarP(&retryRun, "run", "r", false, "process the job immediately")
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	orch, err := newOrchestrator()
	if err != nil {
		return err
	}

	job, err := orch.Retry(ctx, args[0])
	if err != nil {
		return fmt.Errorf("retry job: %w", err)
	}
	fmt.Printf("%s requeued\n", job.ID)

	if !retryRun {
		return nil
	}

	job, err = orch.ProcessSpecific(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("process job: %w", err)
	}
	fmt.Printf("%s → %s\n", job.ID, job.Status)
	if job.Result != nil && job.Result.PRURL != "" {
		fmt.Printf("  PR: %s\n", job.Result.PRURL)
	}
	if job.Error != "" {
		fmt.Printf("  Error: %s\n", job.Error)
	}
	return nil
}
