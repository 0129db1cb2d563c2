// Package models defines the data structures shared across the forgebot services.
package models

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusQuestioning JobStatus = "questioning"
	StatusProcessing  JobStatus = "processing"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

// Terminal reports whether no further automatic transitions occur from s.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Mode selects how generated changes are delivered to the repository.
type Mode string

const (
	ModeCreatePR     Mode = "create-pr"
	ModeUpdateBranch Mode = "update-branch"
)

// Question is a single clarification item in a questioning dialogue.
// Items are appended in order and never reordered; a question is answered
// once Answer is non-empty.
type Question struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Answer  string `json:"answer,omitempty"`
	AskedAt int64  `json:"asked_at"`
}

// Answered reports whether the question has received a reply.
func (q Question) Answered() bool {
	return q.Answer != ""
}

// JobContext carries the repository target and, once planning completed,
// the resolved change-set.
type JobContext struct {
	RepoURL       string            `json:"repo_url"`
	Branch        string            `json:"branch,omitempty"`
	Mode          Mode              `json:"mode,omitempty"`
	ExistingFiles map[string]string `json:"existing_files,omitempty"`
	CodeChanges   *ChangeSet        `json:"code_changes,omitempty"`
}

// JobResult is populated only when a job reaches the completed state.
// PRURL is empty in update-branch mode when commits landed without a
// new pull request.
type JobResult struct {
	PRURL   string `json:"pr_url,omitempty"`
	Branch  string `json:"branch"`
	Summary string `json:"summary"`
	Mode    Mode   `json:"mode,omitempty"`
}

// Job is the unit of work flowing through the queue.
// Timestamps are epoch milliseconds so they share a domain with the
// pending-queue score.
type Job struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ChatID      string     `json:"chat_id"`
	Message     string     `json:"message"`
	Context     JobContext `json:"context"`
	Status      JobStatus  `json:"status"`
	Questions   []Question `json:"questions,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	ThreadID    string     `json:"thread_id,omitempty"`
	CreatedAt   int64      `json:"created_at"`
	StartedAt   int64      `json:"started_at,omitempty"`
	CompletedAt int64      `json:"completed_at,omitempty"`
}

// OldestUnanswered returns the index of the first question without an
// answer, or -1 when all questions are answered.
func (j *Job) OldestUnanswered() int {
	for i, q := range j.Questions {
		if !q.Answered() {
			return i
		}
	}
	return -1
}

// AnsweredQuestions returns the questions that already carry an answer.
func (j *Job) AnsweredQuestions() []Question {
	out := make([]Question, 0, len(j.Questions))
	for _, q := range j.Questions {
		if q.Answered() {
			out = append(out, q)
		}
	}
	return out
}
