package lark

import (
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/forgebot/internal/models"
)

func modeLine(mode models.Mode, branch string) string {
	if mode == models.ModeUpdateBranch {
		if branch == "" {
			branch = "main"
		}
		return fmt.Sprintf("**Mode:** update existing branch\n\n**Target branch:** `%s`", branch)
	}
	return "**Mode:** create pull request"
}

// ProcessingCard acknowledges a newly accepted job.
func ProcessingCard(job *models.Job) Card {
	return Card{
		Header: CardHeader{Title: plain("🤖 Task received"), Template: "blue"},
		Elements: []CardElement{
			markdown(fmt.Sprintf(
				"**Instruction:** %s\n\n%s\n\n**Status:** processing...\n\n⏳ Estimated time: 1-3 minutes",
				job.Message, modeLine(job.Context.Mode, job.Context.Branch))),
			{
				Tag: "action",
				Actions: []CardButton{
					actionButton("📊 Check status", "primary", ActionCheckStatus, job.ID),
				},
			},
		},
	}
}

// CompletedCard announces the finished result, linking the PR when one
// was created.
func CompletedCard(job *models.Job) Card {
	result := job.Result
	if result == nil {
		result = &models.JobResult{}
	}

	content := modeLine(result.Mode, result.Branch) + "\n\n**Changes:**\n" + result.Summary
	if result.PRURL != "" {
		content += "\n\n**PR:** " + result.PRURL
	} else {
		content += "\n\n**Branch:** committed"
	}

	elements := []CardElement{markdown(content)}
	if result.PRURL != "" {
		elements = append(elements, CardElement{
			Tag: "action",
			Actions: []CardButton{{
				Tag:  "button",
				Text: plain("🔗 View PR"),
				Type: "primary",
				URL:  result.PRURL,
			}},
		})
	}
	elements = append(elements, CardElement{
		Tag:     "action",
		Actions: []CardButton{actionButton("🔄 Run again", "", ActionRetry, job.ID)},
	})

	return Card{
		Header:   CardHeader{Title: plain("✅ Task completed"), Template: "green"},
		Elements: elements,
	}
}

// ErrorCard reports a failure with an optional detail line and a retry
// button.
func ErrorCard(job *models.Job, message, details string) Card {
	content := "**Error:** " + message
	if details != "" {
		content += "\n\n**Details:** " + details
	}
	return Card{
		Header: CardHeader{Title: plain("❌ Something went wrong"), Template: "red"},
		Elements: []CardElement{
			markdown(content),
			{
				Tag:     "action",
				Actions: []CardButton{actionButton("🔄 Retry", "", ActionRetry, job.ID)},
			},
		},
	}
}

// ConflictCard lists the conflicting files and asks for a manual merge.
func ConflictCard(job *models.Job, files []string) Card {
	lines := make([]string, 0, len(files))
	for _, f := range files {
		lines = append(lines, "- "+f)
	}
	if len(lines) == 0 {
		lines = append(lines, "- (unknown)")
	}
	return Card{
		Header: CardHeader{Title: plain("⚠️ Merge conflict"), Template: "yellow"},
		Elements: []CardElement{
			markdown(fmt.Sprintf(
				"**Conflicting files:**\n%s\n\nResolve the conflicts manually, then run the task again.",
				strings.Join(lines, "\n"))),
			{
				Tag:     "action",
				Actions: []CardButton{actionButton("🔄 Retry", "", ActionRetry, job.ID)},
			},
		},
	}
}

// QuestionsCard asks the user to answer clarifying questions by
// replying in the thread.
func QuestionsCard(job *models.Job) Card {
	var lines []string
	n := 1
	for _, q := range job.Questions {
		if !q.Answered() {
			lines = append(lines, fmt.Sprintf("%d. %s", n, q.Text))
			n++
		}
	}
	return Card{
		Header: CardHeader{Title: plain("❓ A few questions first"), Template: "turquoise"},
		Elements: []CardElement{
			markdown(fmt.Sprintf(
				"**Instruction:** %s\n\n%s\n\nReply in this thread to answer. Questions are taken one at a time, oldest first.",
				job.Message, strings.Join(lines, "\n"))),
		},
	}
}

// StatusCard renders the current state of a job.
func StatusCard(job *models.Job) Card {
	emoji := map[models.JobStatus]string{
		models.StatusPending:     "⏳",
		models.StatusQuestioning: "❓",
		models.StatusProcessing:  "🔄",
		models.StatusCompleted:   "✅",
		models.StatusFailed:      "❌",
	}[job.Status]

	content := fmt.Sprintf("**Instruction:** %s\n\n**Status:** %s\n**Created:** %s",
		job.Message, job.Status, formatMillis(job.CreatedAt))
	if job.CompletedAt != 0 {
		content += "\n**Completed:** " + formatMillis(job.CompletedAt)
	}
	if job.Error != "" {
		content += "\n\n**Error:** " + job.Error
	}
	if job.Result != nil && job.Result.PRURL != "" {
		content += "\n\n**PR:** " + job.Result.PRURL
	}

	elements := []CardElement{markdown(content)}
	if !job.Status.Terminal() {
		elements = append(elements, CardElement{
			Tag:     "action",
			Actions: []CardButton{actionButton("🔄 Refresh", "primary", ActionRefreshStatus, job.ID)},
		})
	}

	template := "blue"
	switch job.Status {
	case models.StatusCompleted:
		template = "green"
	case models.StatusFailed:
		template = "red"
	}

	return Card{
		Header:   CardHeader{Title: plain(emoji + " Task status"), Template: template},
		Elements: elements,
	}
}

// WelcomeCard explains usage when a user asks for help.
func WelcomeCard() Card {
	return Card{
		Header: CardHeader{Title: plain("👋 Repository assistant"), Template: "blue"},
		Elements: []CardElement{
			markdown(`I turn chat instructions into GitHub pull requests.

**How it works:**
1. Describe the change you want in a message
2. I plan and write the code, then open a PR
3. You get a notification here when it is done

**Modes:**
• **Create PR** (default): new branch plus pull request
• **Update branch**: commit onto an existing branch

**Examples:**
- "Add a date formatting helper to src/utils.ts"
- "Update README.md with install instructions"
- "branch: feature-auth fix the login validation" ← updates an existing branch
- "Fix the bug where sessions expire too early"`),
		},
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05 MST")
}
