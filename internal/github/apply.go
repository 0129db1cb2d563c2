package github

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/raphaelgruber/forgebot/internal/models"
)

// Outcome describes what applying a change-set produced.
type Outcome struct {
	PRURL   string
	Branch  string
	Summary string
}

// Apply commits a change-set to the repository. In create-pr mode it
// stages the changes on a fresh branch and opens a pull request; when a
// conflict probe against the base branch fails, the staging branch is
// discarded and a ConflictError is returned. In update-branch mode the
// target branch must already exist; the commit lands on it directly and
// an existing open PR gets a comment instead of a duplicate PR.
func (c *Client) Apply(ctx context.Context, repoURL string, changes *models.ChangeSet, baseBranch string, mode models.Mode, targetBranch string) (*Outcome, error) {
	repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	files := make(map[string]string, len(changes.Files))
	for _, f := range changes.Files {
		files[f.Path] = f.Content
	}

	if mode == models.ModeUpdateBranch {
		return c.applyToBranch(ctx, repo, changes, files, baseBranch, targetBranch)
	}
	return c.applyAsPullRequest(ctx, repo, changes, files, baseBranch)
}

func (c *Client) applyAsPullRequest(ctx context.Context, repo RepoInfo, changes *models.ChangeSet, files map[string]string, baseBranch string) (*Outcome, error) {
	base := baseBranch
	if !c.BranchExists(ctx, repo, base) && base != "master" {
		c.logger.Info("base branch missing, falling back to master", "repo", repo.Repo, "base", base)
		base = "master"
	}

	branch := fmt.Sprintf("ai/changes-%s", strconv.FormatInt(time.Now().UnixMilli(), 36))
	if err := c.CreateBranch(ctx, repo, branch, base); err != nil {
		return nil, err
	}

	if err := c.CommitFiles(ctx, repo, branch, files, changes.CommitMessage); err != nil {
		c.cleanupBranch(ctx, repo, branch)
		return nil, err
	}

	conflicting, conflicted, err := c.CheckMergeConflicts(ctx, repo, branch, base)
	if err != nil {
		c.logger.Warn("conflict probe failed, proceeding with PR", "repo", repo.Repo, "error", err)
	} else if conflicted {
		c.cleanupBranch(ctx, repo, branch)
		return nil, &ConflictError{Files: conflicting}
	}

	pr, err := c.CreatePullRequest(ctx, repo, changes.PRTitle, changes.PRBody, branch, base)
	if err != nil {
		c.cleanupBranch(ctx, repo, branch)
		return nil, err
	}

	c.logger.Info("pull request created", "repo", repo.Repo, "branch", branch, "pr", pr.Number)
	return &Outcome{
		PRURL:   pr.HTMLURL,
		Branch:  branch,
		Summary: changes.Plan,
	}, nil
}

func (c *Client) applyToBranch(ctx context.Context, repo RepoInfo, changes *models.ChangeSet, files map[string]string, baseBranch, branch string) (*Outcome, error) {
	if !c.BranchExists(ctx, repo, branch) {
		return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}

	if err := c.CommitFiles(ctx, repo, branch, files, changes.CommitMessage); err != nil {
		return nil, err
	}

	existing, err := c.FindOpenPullRequest(ctx, repo, branch)
	if err != nil {
		c.logger.Warn("open PR lookup failed", "repo", repo.Repo, "branch", branch, "error", err)
	}
	if existing != nil {
		comment := fmt.Sprintf("Pushed an update to this branch:\n\n%s", changes.Plan)
		if err := c.CommentOnPullRequest(ctx, repo, existing.Number, comment); err != nil {
			c.logger.Warn("PR comment failed", "repo", repo.Repo, "pr", existing.Number, "error", err)
		}
		return &Outcome{
			PRURL:   existing.HTMLURL,
			Branch:  branch,
			Summary: changes.Plan,
		}, nil
	}

	pr, err := c.CreatePullRequest(ctx, repo, changes.PRTitle, changes.PRBody, branch, baseBranch)
	if err != nil {
		c.logger.Warn("PR creation on updated branch failed", "repo", repo.Repo, "branch", branch, "error", err)
		return &Outcome{Branch: branch, Summary: changes.Plan}, nil
	}

	return &Outcome{
		PRURL:   pr.HTMLURL,
		Branch:  branch,
		Summary: changes.Plan,
	}, nil
}

// cleanupBranch removes a staging branch on a failed apply. Best effort,
// the original error matters more.
func (c *Client) cleanupBranch(ctx context.Context, repo RepoInfo, branch string) {
	if err := c.DeleteBranch(ctx, repo, branch); err != nil {
		c.logger.Warn("staging branch cleanup failed", "repo", repo.Repo, "branch", branch, "error", err)
	}
}
