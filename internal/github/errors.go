package github

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBranchNotFound indicates the target branch does not exist in
// update-branch mode. Never retried.
var ErrBranchNotFound = errors.New("branch not found")

// ConflictError indicates merge conflicts between the generated changes
// and the target branch. Terminal; the orchestrator never retries it.
type ConflictError struct {
	Files []string
}

func (e *ConflictError) Error() string {
	files := "unknown files"
	if len(e.Files) > 0 {
		files = strings.Join(e.Files, ", ")
	}
	return fmt.Sprintf("merge conflicts detected, conflicting files: %s", files)
}

// RateLimitError signals the GitHub API quota is exhausted.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github rate limited, retry after %s", e.RetryAfter)
}

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	Status   int
	Endpoint string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api %s: status=%d %s", e.Endpoint, e.Status, e.Message)
}

// InvalidRepoURLError is raised for URLs not of the form
// github.com/owner/repo.
type InvalidRepoURLError struct {
	URL string
}

func (e *InvalidRepoURLError) Error() string {
	return fmt.Sprintf("invalid GitHub repository URL: %s", e.URL)
}
