package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var drainAll bool

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Process pending jobs from the queue",
	Long: `Pop the oldest due pending job and run it to completion.

With --all, keeps draining until the queue is empty.`,
	Args: cobra.NoArgs,
	RunE: runDrain,
}

func init() {
	drainCmd.Flags().BoolVarP(&drainAll, "all", "a", false, "drain until the queue is empty")
	rootCmd.AddCommand(drainCmd)
}

func runDrain(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	orch, err := newOrchestrator()
	if err != nil {
		return err
	}

	processed := 0
	for {
		job, err := orch.ProcessNext(ctx)
		if err != nil {
			return fmt.Errorf("process job: %w", err)
		}
		if job == nil {
			break
		}
		processed++
		fmt.Printf("%s → %s", job.ID, job.Status)
		if job.Result != nil && job.Result.PRURL != "" {
			fmt.Printf(" (%s)", job.Result.PRURL)
		}
		if job.Error != "" {
			fmt.Printf(" (%s)", job.Error)
		}
		fmt.Println()

		if !drainAll {
			return nil
		}
	}

	if processed == 0 {
		fmt.Println("Queue is empty")
	} else {
		fmt.Printf("Drained %d job(s)\n", processed)
	}
	return nil
}
