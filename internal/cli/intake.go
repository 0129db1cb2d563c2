package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/forgebot/internal/lark"
	"github.com/raphaelgruber/forgebot/internal/orchestrator"
)

var (
	intakeUser string
	intakeChat string
	intakeRun  bool
)

var intakeCmd = &cobra.Command{
	Use:   "intake <instruction...>",
	Short: "Submit an instruction without going through the webhook",
	Long: `Create a job from the command line for local debugging. The
instruction is parsed exactly like a chat message, so the
'branch: <name> <task>' prefix selects update-branch mode.

Questioning dialogues cannot be answered from here; jobs that come back
with questions stay parked until answered in chat.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIntake,
}

func init() {
	intakeCmd.Flags().StringVarP(&intakeUser, "user", "u", "cli", "user id to attribute the job to")
	intakeCmd.Flags().StringVarP(&intakeChat, "chat", "c", "", "chat id for notifications (empty disables them)")
	intakeCmd.Flags().BoolVarP(&intakeRun, "run", "r", false, "process the job immediately")
	rootCmd.AddCommand(intakeCmd)
}

func runIntake(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	orch, err := newOrchestrator()
	if err != nil {
		return err
	}

	mode, branch, instruction := lark.ParseInstruction(strings.Join(args, " "))

	job, err := orch.Intake(ctx, orchestrator.IntakeRequest{
		UserID:  intakeUser,
		ChatID:  intakeChat,
		Message: instruction,
		Mode:    mode,
		Branch:  branch,
	})
	if err != nil {
		return fmt.Errorf("intake: %w", err)
	}

	fmt.Printf("%s created (%s)\n", job.ID, job.Status)
	if len(job.Questions) > 0 {
		fmt.Println("The planner needs clarification:")
		for i, q := range job.Questions {
			fmt.Printf("  %d. %s\n", i+1, q.Text)
		}
		return nil
	}

	if !intakeRun {
		return nil
	}

	job, err = orch.ProcessSpecific(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("process job: %w", err)
	}
	fmt.Printf("%s finished as %s\n", job.ID, job.Status)
	if job.Result != nil && job.Result.PRURL != "" {
		fmt.Printf("  PR: %s\n", job.Result.PRURL)
	}
	if job.Error != "" {
		fmt.Printf("  Error: %s\n", job.Error)
	}
	return nil
}
