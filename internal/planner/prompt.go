package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/forgebot/internal/models"
)

// filePreviewLimit bounds how much of an existing file is quoted into the
// prompt.
const filePreviewLimit = 2000

const systemPrompt = `You are an AI agent that operates on GitHub repositories.

## Role
- Interpret the user's instruction and plan the appropriate file changes
- Generate or edit code and prepare a pull request
- Respect the style and conventions of existing code

## Constraints
- At most 10 files per change
- Explain destructive changes up front
- Return a concrete reason when something cannot be done
- Never introduce security vulnerabilities

## Output format
Always answer with a single JSON object (outside any code block):

If the instruction is ambiguous and you need clarification (at most 3 questions):
{
  "needsQuestions": true,
  "questions": [ { "id": "q1", "text": "..." } ]
}

Otherwise:
{
  "needsQuestions": false,
  "codeChanges": {
    "plan": "short description of the change",
    "files": [ { "path": "src/example.ts", "content": "complete file content" } ],
    "commitMessage": "feat: conventional commit subject",
    "prTitle": "PR title",
    "prBody": "PR description"
  }
}

## Conventional commits
feat / fix / docs / style / refactor / test / chore`

// buildUserPrompt renders the repository context and instruction into the
// user message.
func buildUserPrompt(message string, jctx models.JobContext) string {
	var b strings.Builder

	b.WriteString("## Repository\n")
	fmt.Fprintf(&b, "URL: %s\n", jctx.RepoURL)
	if jctx.Branch != "" {
		fmt.Fprintf(&b, "Branch: %s\n", jctx.Branch)
	}
	if jctx.Mode != "" {
		fmt.Fprintf(&b, "Mode: %s\n", jctx.Mode)
	}

	if len(jctx.ExistingFiles) > 0 {
		b.WriteString("\n## Existing files\nReference these existing files:\n\n")
		paths := make([]string, 0, len(jctx.ExistingFiles))
		for p := range jctx.ExistingFiles {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			content := jctx.ExistingFiles[p]
			if len(content) > filePreviewLimit {
				content = content[:filePreviewLimit] + "\n... (truncated)"
			}
			fmt.Fprintf(&b, "### %s\n```\n%s\n```\n\n", p, content)
		}
	}

	b.WriteString("\n## Instruction\n")
	b.WriteString(message)
	return b.String()
}

// buildRefinePrompt renders an answered clarification dialogue for a
// follow-up planning round.
func buildRefinePrompt(answer string, answered []models.Question, jctx models.JobContext, original string) string {
	var b strings.Builder
	b.WriteString(buildUserPrompt(original, jctx))

	b.WriteString("\n\n## Clarification dialogue\n")
	for _, q := range answered {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", q.Text, q.Answer)
	}
	fmt.Fprintf(&b, "\nLatest answer: %s\n", answer)
	b.WriteString("\nWith these answers, either ask further questions or produce the final codeChanges.")
	return b.String()
}
