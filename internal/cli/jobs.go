package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/forgebot/internal/models"
)

var jobsUser string
var jobsLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect jobs",
	Long: `List a user's jobs or inspect a specific job by ID.

Examples:
  forgebot jobs --user ou_abc        # List jobs for a user
  forgebot jobs 7f3d9c12             # Show details for one job`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().StringVarP(&jobsUser, "user", "u", "", "user id to list jobs for")
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 10, "maximum jobs to list")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	if jobsUser == "" {
		return fmt.Errorf("either a job id or --user is required")
	}
	return listJobs(ctx, jobsUser)
}

func listJobs(ctx context.Context, userID string) error {
	jobs, err := dbClient.ListUserJobs(ctx, userID, jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-38s %-12s %-8s %-20s %s\n", "ID", "STATUS", "RETRIES", "CREATED", "MESSAGE")
	fmt.Println("--------------------------------------------------------------------------------------------")

	for _, job := range jobs {
		created := time.UnixMilli(job.CreatedAt).Format("2006-01-02 15:04:05")
		fmt.Printf("%-38s %-12s %-8d %-20s %s\n",
			job.ID, job.Status, job.RetryCount, created, truncateMessage(job.Message, 40))
	}

	stats, err := dbClient.GetQueueStats(ctx)
	if err == nil {
		fmt.Printf("\n%d job(s) waiting in the queue\n", stats.Pending)
	}
	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := dbClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  User: %s\n", job.UserID)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Message: %s\n", job.Message)
	fmt.Printf("  Mode: %s\n", job.Context.Mode)
	if job.Context.Branch != "" {
		fmt.Printf("  Branch: %s\n", job.Context.Branch)
	}
	fmt.Printf("  Retries: %d\n", job.RetryCount)
	fmt.Printf("  Created: %s\n", time.UnixMilli(job.CreatedAt).Format(time.RFC3339))
	if job.StartedAt != 0 {
		fmt.Printf("  Started: %s\n", time.UnixMilli(job.StartedAt).Format(time.RFC3339))
	}
	if job.CompletedAt != 0 {
		fmt.Printf("  Completed: %s\n", time.UnixMilli(job.CompletedAt).Format(time.RFC3339))
		if job.StartedAt != 0 {
			duration := time.UnixMilli(job.CompletedAt).Sub(time.UnixMilli(job.StartedAt))
			fmt.Printf("  Duration: %s\n", duration.Round(time.Second))
		}
	}

	if job.Error != "" {
		fmt.Printf("  Error: %s\n", job.Error)
	}

	if len(job.Questions) > 0 {
		fmt.Printf("\nQuestions (%d):\n", len(job.Questions))
		for i, q := range job.Questions {
			marker := " "
			if q.Answered() {
				marker = "✓"
			}
			fmt.Printf("  %s %d. %s\n", marker, i+1, q.Text)
			if q.Answered() {
				fmt.Printf("       → %s\n", q.Answer)
			}
		}
	}

	if job.Result != nil {
		fmt.Println("\nResult:")
		if job.Result.PRURL != "" {
			fmt.Printf("  PR: %s\n", job.Result.PRURL)
		}
		fmt.Printf("  Branch: %s\n", job.Result.Branch)
		fmt.Printf("  Summary: %s\n", job.Result.Summary)
	}

	if changes := job.Context.CodeChanges; changes != nil && job.Status != models.StatusCompleted {
		fmt.Println("\nPlanned changes:")
		fmt.Printf("  %s\n", changes.Plan)
		for _, f := range changes.Files {
			fmt.Printf("  - %s\n", f.Path)
		}
	}

	return nil
}

func truncateMessage(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
