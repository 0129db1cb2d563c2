// Package github implements the change applier against the GitHub REST
// API: branch/commit plumbing, pull requests, conflict probing, and
// repository snapshots.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://api.github.com"

var repoURLRe = regexp.MustCompile(`github\.com[/:]([^/]+)/([^/.]+)`)

// RepoInfo identifies a repository by owner and name.
type RepoInfo struct {
	Owner string
	Repo  string
}

// ParseRepoURL extracts owner/repo from the common GitHub URL forms
// (https, ssh, with or without .git suffix).
func ParseRepoURL(repoURL string) (RepoInfo, error) {
	m := repoURLRe.FindStringSubmatch(repoURL)
	if m == nil {
		return RepoInfo{}, &InvalidRepoURLError{URL: repoURL}
	}
	return RepoInfo{Owner: m[1], Repo: m[2]}, nil
}

// Client is a minimal GitHub REST client over an oauth2 transport.
type Client struct {
	http    *http.Client
	baseURL string
	limits  *RateLimitState
	logger  *slog.Logger
}

// NewClient creates a client authenticating with the given token.
func NewClient(token string, logger *slog.Logger) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = 30 * time.Second
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    httpClient,
		baseURL: defaultBaseURL,
		limits:  NewRateLimitState(),
		logger:  logger,
	}
}

// NewClientWithBaseURL creates a client against a custom API endpoint
// (GitHub Enterprise, test servers).
func NewClientWithBaseURL(token, baseURL string, logger *slog.Logger) *Client {
	c := NewClient(token, logger)
	c.baseURL = baseURL
	return c
}

// RateLimits exposes the tracked quota state.
func (c *Client) RateLimits() *RateLimitState {
	return c.limits
}

// do performs a JSON round-trip and classifies non-2xx responses.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limits.Check(); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	c.limits.Update(res.Header)

	data, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		if res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusTooManyRequests {
			if err := c.limits.Check(); err != nil {
				return err
			}
		}
		return &APIError{
			Status:   res.StatusCode,
			Endpoint: path,
			Message:  truncate(string(data), 300),
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// ============================================================================
// Refs and branches
// ============================================================================

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

// GetRefSHA returns the commit SHA a branch head points at.
func (c *Client) GetRefSHA(ctx context.Context, repo RepoInfo, branch string) (string, error) {
	var ref refResponse
	path := fmt.Sprintf("/repos/%s/%s/git/ref/heads/%s", repo.Owner, repo.Repo, branch)
	if err := c.do(ctx, http.MethodGet, path, nil, &ref); err != nil {
		return "", err
	}
	return ref.Object.SHA, nil
}

// BranchExists reports whether a branch ref exists.
func (c *Client) BranchExists(ctx context.Context, repo RepoInfo, branch string) bool {
	_, err := c.GetRefSHA(ctx, repo, branch)
	return err == nil
}

// CreateBranch creates branchName pointing at the head of baseBranch.
func (c *Client) CreateBranch(ctx context.Context, repo RepoInfo, branchName, baseBranch string) error {
	sha, err := c.GetRefSHA(ctx, repo, baseBranch)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/repos/%s/%s/git/refs", repo.Owner, repo.Repo)
	return c.do(ctx, http.MethodPost, path, map[string]string{
		"ref": "refs/heads/" + branchName,
		"sha": sha,
	}, nil)
}

// DeleteBranch removes a branch ref.
func (c *Client) DeleteBranch(ctx context.Context, repo RepoInfo, branch string) error {
	path := fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", repo.Owner, repo.Repo, branch)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ============================================================================
// Commits
// ============================================================================

type shaResponse struct {
	SHA string `json:"sha"`
}

type treeItem struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

// CommitFiles writes the files as a single commit on top of branch.
func (c *Client) CommitFiles(ctx context.Context, repo RepoInfo, branch string, files map[string]string, message string) error {
	parentSHA, err := c.GetRefSHA(ctx, repo, branch)
	if err != nil {
		return err
	}

	items := make([]treeItem, 0, len(files))
	for path, content := range files {
		var blob shaResponse
		blobPath := fmt.Sprintf("/repos/%s/%s/git/blobs", repo.Owner, repo.Repo)
		err := c.do(ctx, http.MethodPost, blobPath, map[string]string{
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
			"encoding": "base64",
		}, &blob)
		if err != nil {
			return err
		}
		items = append(items, treeItem{Path: path, Mode: "100644", Type: "blob", SHA: blob.SHA})
	}

	var tree shaResponse
	treePath := fmt.Sprintf("/repos/%s/%s/git/trees", repo.Owner, repo.Repo)
	err = c.do(ctx, http.MethodPost, treePath, map[string]any{
		"tree":      items,
		"base_tree": parentSHA,
	}, &tree)
	if err != nil {
		return err
	}

	var commit shaResponse
	commitPath := fmt.Sprintf("/repos/%s/%s/git/commits", repo.Owner, repo.Repo)
	err = c.do(ctx, http.MethodPost, commitPath, map[string]any{
		"message": message,
		"tree":    tree.SHA,
		"parents": []string{parentSHA},
	}, &commit)
	if err != nil {
		return err
	}

	refPath := fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", repo.Owner, repo.Repo, branch)
	return c.do(ctx, http.MethodPatch, refPath, map[string]string{"sha": commit.SHA}, nil)
}

// ============================================================================
// Pull requests
// ============================================================================

// PullRequest is the subset of PR fields the bot consumes.
type PullRequest struct {
	HTMLURL string `json:"html_url"`
	Number  int    `json:"number"`
	State   string `json:"state"`
}

// CreatePullRequest opens a PR from head into base.
func (c *Client) CreatePullRequest(ctx context.Context, repo RepoInfo, title, body, head, base string) (*PullRequest, error) {
	var pr PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls", repo.Owner, repo.Repo)
	err := c.do(ctx, http.MethodPost, path, map[string]string{
		"title": title,
		"body":  body,
		"head":  head,
		"base":  base,
	}, &pr)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// FindOpenPullRequest returns the open PR for the given head branch, or
// nil when none exists.
func (c *Client) FindOpenPullRequest(ctx context.Context, repo RepoInfo, head string) (*PullRequest, error) {
	var prs []PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=open&head=%s:%s", repo.Owner, repo.Repo, repo.Owner, head)
	if err := c.do(ctx, http.MethodGet, path, nil, &prs); err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		return nil, nil
	}
	return &prs[0], nil
}

// CommentOnPullRequest appends a comment to an existing PR.
func (c *Client) CommentOnPullRequest(ctx context.Context, repo RepoInfo, number int, body string) error {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", repo.Owner, repo.Repo, number)
	return c.do(ctx, http.MethodPost, path, map[string]string{"body": body}, nil)
}

// ============================================================================
// Conflict probing
// ============================================================================

type compareResponse struct {
	Status string `json:"status"` // "identical", "ahead", "behind", "diverged"
	Files  []struct {
		Filename string `json:"filename"`
		Status   string `json:"status"`
	} `json:"files"`
}

// CheckMergeConflicts probes whether base can merge cleanly into head by
// comparing the branches and, when they diverged, attempting to merge the
// base branch into the staging branch. A 409 from the merge endpoint
// means conflicts.
func (c *Client) CheckMergeConflicts(ctx context.Context, repo RepoInfo, head, base string) ([]string, bool, error) {
	var cmp compareResponse
	path := fmt.Sprintf("/repos/%s/%s/compare/%s...%s", repo.Owner, repo.Repo, base, head)
	if err := c.do(ctx, http.MethodGet, path, nil, &cmp); err != nil {
		return nil, false, err
	}
	if cmp.Status != "diverged" && cmp.Status != "behind" {
		return nil, false, nil
	}

	var conflicting []string
	for _, f := range cmp.Files {
		if f.Status == "modified" {
			conflicting = append(conflicting, f.Filename)
		}
	}

	// Merge base into the staging branch; 409 means real conflicts.
	mergePath := fmt.Sprintf("/repos/%s/%s/merges", repo.Owner, repo.Repo)
	err := c.do(ctx, http.MethodPost, mergePath, map[string]string{
		"base": head,
		"head": base,
	}, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return conflicting, true, nil
		}
		return nil, false, err
	}
	return nil, false, nil
}
