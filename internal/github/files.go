package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// maxSnapshotFileSize excludes oversized files from the repository
// snapshot handed to the planner.
const maxSnapshotFileSize = 50000

var ignorePatterns = []string{
	"node_modules/", "dist/", "build/", ".next/", ".nuxt/", "target/",
	"coverage/", ".git/", ".vscode/", ".idea/",
	"*.log", "*.lock", "*.min.js", "*.min.css",
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml", ".DS_Store",
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.ico",
	"*.pdf", "*.zip", "*.tar", "*.gz",
}

var allowedExtensions = []string{
	".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs",
	".py", ".rb", ".go", ".rs", ".java", ".kt", ".swift",
	".cpp", ".c", ".h", ".cs", ".php",
	".html", ".css", ".scss", ".less",
	".json", ".yaml", ".yml", ".toml", ".md", ".txt",
	".sh", ".bash", ".zsh", ".fish",
	".env", ".example", ".gitignore",
	"dockerfile", "makefile",
}

// ShouldIncludeFile decides whether a path belongs in the planner's
// repository snapshot.
func ShouldIncludeFile(path string) bool {
	lower := strings.ToLower(path)

	for _, pattern := range ignorePatterns {
		switch {
		case strings.HasSuffix(pattern, "/"):
			dir := strings.TrimSuffix(pattern, "/")
			if strings.Contains(lower, "/"+dir+"/") || strings.HasPrefix(lower, dir+"/") {
				return false
			}
		case strings.HasPrefix(pattern, "*"):
			if strings.HasSuffix(lower, pattern[1:]) {
				return false
			}
		default:
			if strings.Contains(lower, strings.ToLower(pattern)) {
				return false
			}
		}
	}

	for _, ext := range allowedExtensions {
		if strings.HasPrefix(ext, ".") {
			if strings.HasSuffix(lower, ext) {
				return true
			}
		} else if strings.HasSuffix(lower, "/"+ext) || lower == ext {
			return true
		}
	}

	if strings.HasPrefix(lower, "src/") || strings.HasPrefix(lower, "lib/") || strings.HasPrefix(lower, "app/") {
		return true
	}
	// Extensionless files at the repository root (Makefile-style)
	return !strings.Contains(path, "/") && !strings.Contains(path, ".")
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
}

type contentResponse struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
}

// GetFileContent fetches one file's decoded content. Returns "" and
// false for directories, missing paths, or non-file entries.
func (c *Client) GetFileContent(ctx context.Context, repo RepoInfo, path, branch string) (string, bool) {
	var resp contentResponse
	p := fmt.Sprintf("/repos/%s/%s/contents/%s", repo.Owner, repo.Repo, path)
	if branch != "" {
		p += "?ref=" + branch
	}
	if err := c.do(ctx, http.MethodGet, p, nil, &resp); err != nil {
		return "", false
	}
	if resp.Type != "file" {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

// Snapshot fetches planning context for a repository given its URL.
func (c *Client) Snapshot(ctx context.Context, repoURL, branch string, maxFiles int) (map[string]string, error) {
	repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	return c.GetRepositoryFiles(ctx, repo, branch, maxFiles), nil
}

// GetRepositoryFiles fetches up to maxFiles source files from a branch,
// shallowest paths first, for use as planning context. Failures degrade
// to an empty snapshot rather than an error.
func (c *Client) GetRepositoryFiles(ctx context.Context, repo RepoInfo, branch string, maxFiles int) map[string]string {
	files := map[string]string{}
	if maxFiles <= 0 {
		maxFiles = 20
	}
	if branch == "" {
		branch = "main"
	}

	var tree treeResponse
	path := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=true", repo.Owner, repo.Repo, branch)
	if err := c.do(ctx, http.MethodGet, path, nil, &tree); err != nil {
		c.logger.Warn("repository snapshot unavailable", "repo", repo.Repo, "branch", branch, "error", err)
		return files
	}

	var candidates []string
	for _, item := range tree.Tree {
		if item.Type == "blob" && ShouldIncludeFile(item.Path) {
			candidates = append(candidates, item.Path)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return strings.Count(candidates[i], "/") < strings.Count(candidates[j], "/")
	})

	for _, p := range candidates {
		if len(files) >= maxFiles {
			break
		}
		content, ok := c.GetFileContent(ctx, repo, p, branch)
		if ok && len(content) < maxSnapshotFileSize {
			files[p] = content
		}
	}
	return files
}
