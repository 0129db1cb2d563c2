package planner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/forgebot/internal/models"
)

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// extractJSON strips markdown code fences or locates the outermost object
// boundaries in a free-form model response.
func extractJSON(content string) string {
	if m := codeBlockRe.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start != -1 && end > start {
		return content[start : end+1]
	}
	return content
}

// rawOutcome is the untrusted wire shape; validate-then-convert happens
// here and nothing past this boundary trusts the model output.
type rawOutcome struct {
	NeedsQuestions bool `json:"needsQuestions"`
	Questions      []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"questions"`
	CodeChanges *struct {
		Plan  string `json:"plan"`
		Files []struct {
			Path    string  `json:"path"`
			Content *string `json:"content"`
		} `json:"files"`
		CommitMessage string `json:"commitMessage"`
		PRTitle       string `json:"prTitle"`
		PRBody        string `json:"prBody"`
	} `json:"codeChanges"`
}

// ParsePlanOutcome validates a model response into the questions/changes
// union. Question lists are truncated to MaxOpenQuestions rather than
// rejected; missing PR metadata is defaulted from the plan.
func ParsePlanOutcome(content string) (*models.PlanOutcome, error) {
	jsonStr := extractJSON(content)

	var raw rawOutcome
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, parseError(fmt.Sprintf("invalid JSON: %v", err), content)
	}

	if raw.NeedsQuestions {
		if len(raw.Questions) == 0 {
			return nil, parseError(`needsQuestions is true but "questions" is empty`, content)
		}
		qs := raw.Questions
		if len(qs) > models.MaxOpenQuestions {
			qs = qs[:models.MaxOpenQuestions]
		}
		now := time.Now().UnixMilli()
		out := &models.PlanOutcome{NeedsQuestions: true}
		for _, q := range qs {
			if strings.TrimSpace(q.Text) == "" {
				return nil, parseError("question with empty text", content)
			}
			id := q.ID
			if id == "" {
				id = uuid.New().String()[:8]
			}
			out.Questions = append(out.Questions, models.Question{
				ID:      id,
				Text:    q.Text,
				AskedAt: now,
			})
		}
		return out, nil
	}

	cc := raw.CodeChanges
	if cc == nil {
		return nil, parseError(`missing "codeChanges"`, content)
	}
	if cc.Plan == "" {
		return nil, parseError(`missing or invalid "plan" field`, content)
	}
	if len(cc.Files) == 0 {
		return nil, parseError(`missing or empty "files" array`, content)
	}
	if len(cc.Files) > 10 {
		return nil, parseError(fmt.Sprintf("too many files: %d (max 10)", len(cc.Files)), content)
	}

	changes := &models.ChangeSet{
		Plan:          cc.Plan,
		CommitMessage: cc.CommitMessage,
		PRTitle:       cc.PRTitle,
		PRBody:        cc.PRBody,
	}
	for _, f := range cc.Files {
		if f.Path == "" {
			return nil, parseError(`each file must have a "path" string`, content)
		}
		if f.Content == nil {
			return nil, parseError(fmt.Sprintf("file %q is missing content", f.Path), content)
		}
		changes.Files = append(changes.Files, models.FileChange{Path: f.Path, Content: *f.Content})
	}

	if changes.CommitMessage == "" {
		changes.CommitMessage = "chore: update files"
	}
	if changes.PRTitle == "" {
		changes.PRTitle = changes.Plan
		// Truncate on runes so a multi-byte plan cannot yield a broken title.
		if r := []rune(changes.PRTitle); len(r) > 50 {
			changes.PRTitle = string(r[:50])
		}
	}
	if changes.PRBody == "" {
		changes.PRBody = changes.Plan
	}

	return &models.PlanOutcome{Changes: changes}, nil
}
