package models

// FileChange is one full-content file write inside a change-set.
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ChangeSet is the structured output of a successful planning round:
// a plan summary plus 1..10 complete file contents and PR metadata.
type ChangeSet struct {
	Plan          string       `json:"plan"`
	Files         []FileChange `json:"files"`
	CommitMessage string       `json:"commitMessage"`
	PRTitle       string       `json:"prTitle"`
	PRBody        string       `json:"prBody"`
}

// MaxOpenQuestions caps how many unanswered clarification items a single
// planning round may produce. Responses carrying more are truncated.
const MaxOpenQuestions = 3

// PlanOutcome is the union returned by the planner: either clarifying
// questions or a final change-set, never both.
type PlanOutcome struct {
	NeedsQuestions bool       `json:"needsQuestions"`
	Questions      []Question `json:"questions,omitempty"`
	Changes        *ChangeSet `json:"codeChanges,omitempty"`
}
