package github

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/forgebot/internal/models"
)

func TestParseRepoURL(t *testing.T) {
	cases := []struct {
		url   string
		owner string
		repo  string
		ok    bool
	}{
		{"https://github.com/acme/widgets", "acme", "widgets", true},
		{"https://github.com/acme/widgets.git", "acme", "widgets", true},
		{"git@github.com:acme/widgets.git", "acme", "widgets", true},
		{"github.com/acme/widgets", "acme", "widgets", true},
		{"https://gitlab.com/acme/widgets", "", "", false},
		{"not a url", "", "", false},
	}

	for _, tc := range cases {
		info, err := ParseRepoURL(tc.url)
		if !tc.ok {
			var invalid *InvalidRepoURLError
			require.ErrorAs(t, err, &invalid, tc.url)
			continue
		}
		require.NoError(t, err, tc.url)
		assert.Equal(t, tc.owner, info.Owner)
		assert.Equal(t, tc.repo, info.Repo)
	}
}

func TestShouldIncludeFile(t *testing.T) {
	included := []string{
		"main.go",
		"src/index.ts",
		"internal/db/jobs.go",
		"README.md",
		"Dockerfile",
		"Makefile",
		"config.yaml",
	}
	for _, p := range included {
		assert.True(t, ShouldIncludeFile(p), p)
	}

	excluded := []string{
		"node_modules/lodash/index.js",
		"dist/bundle.js",
		"logo.png",
		"package-lock.json",
		"app.min.js",
		"vendor.tar.gz",
		"debug.log",
	}
	for _, p := range excluded {
		assert.False(t, ShouldIncludeFile(p), p)
	}
}

// fakeGitHub is a minimal in-memory stand-in for the REST endpoints the
// client touches.
type fakeGitHub struct {
	mux *http.ServeMux

	branches       map[string]string
	openPRs        []PullRequest
	mergeConflicts bool
	compareStatus  string

	createdPRs  []map[string]string
	comments    []string
	deletedRefs []string
	commits     int
}

func newFakeGitHub() *fakeGitHub {
	f := &fakeGitHub{
		branches:      map[string]string{"main": "abc123"},
		compareStatus: "identical",
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /repos/acme/widgets/git/ref/heads/{branch...}", func(w http.ResponseWriter, r *http.Request) {
		sha, ok := f.branches[r.PathValue("branch")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"object": map[string]string{"sha": sha}})
	})
	mux.HandleFunc("POST /repos/acme/widgets/git/refs", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		name := body["ref"][len("refs/heads/"):]
		f.branches[name] = body["sha"]
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("DELETE /repos/acme/widgets/git/refs/heads/{branch...}", func(w http.ResponseWriter, r *http.Request) {
		branch := r.PathValue("branch")
		delete(f.branches, branch)
		f.deletedRefs = append(f.deletedRefs, branch)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /repos/acme/widgets/git/blobs", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"sha": "blobsha"})
	})
	mux.HandleFunc("POST /repos/acme/widgets/git/trees", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"sha": "treesha"})
	})
	mux.HandleFunc("POST /repos/acme/widgets/git/commits", func(w http.ResponseWriter, r *http.Request) {
		f.commits++
		json.NewEncoder(w).Encode(map[string]string{"sha": "commitsha"})
	})
	mux.HandleFunc("PATCH /repos/acme/widgets/git/refs/heads/{branch...}", func(w http.ResponseWriter, r *http.Request) {
		f.branches[r.PathValue("branch")] = "commitsha"
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("GET /repos/acme/widgets/compare/{spec...}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": f.compareStatus,
			"files":  []map[string]string{{"filename": "main.go", "status": "modified"}},
		})
	})
	mux.HandleFunc("POST /repos/acme/widgets/merges", func(w http.ResponseWriter, r *http.Request) {
		if f.mergeConflicts {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"Merge conflict"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("POST /repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.createdPRs = append(f.createdPRs, body)
		json.NewEncoder(w).Encode(PullRequest{
			HTMLURL: "https://github.com/acme/widgets/pull/42",
			Number:  42,
			State:   "open",
		})
	})
	mux.HandleFunc("GET /repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(f.openPRs)
	})
	mux.HandleFunc("POST /repos/acme/widgets/issues/{number}/comments", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.comments = append(f.comments, body["body"])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("{}"))
	})

	f.mux = mux
	return f
}

func testClient(t *testing.T, f *fakeGitHub) *Client {
	t.Helper()
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)
	return NewClientWithBaseURL("test-token", srv.URL, slog.New(slog.DiscardHandler))
}

func testChanges() *models.ChangeSet {
	return &models.ChangeSet{
		Plan:          "Add a greeting endpoint",
		Files:         []models.FileChange{{Path: "main.go", Content: "package main\n"}},
		CommitMessage: "feat: add greeting endpoint",
		PRTitle:       "Add greeting endpoint",
		PRBody:        "Adds /greet.",
	}
}

func TestApplyCreatePR(t *testing.T) {
	f := newFakeGitHub()
	c := testClient(t, f)

	out, err := c.Apply(context.Background(), "https://github.com/acme/widgets", testChanges(), "main", models.ModeCreatePR, "")
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/acme/widgets/pull/42", out.PRURL)
	assert.Contains(t, out.Branch, "ai/changes-")
	assert.Equal(t, "Add a greeting endpoint", out.Summary)
	assert.Equal(t, 1, f.commits)
	require.Len(t, f.createdPRs, 1)
	assert.Equal(t, "main", f.createdPRs[0]["base"])
	assert.Empty(t, f.deletedRefs)
}

func TestApplyCreatePRConflict(t *testing.T) {
	f := newFakeGitHub()
	f.compareStatus = "diverged"
	f.mergeConflicts = true
	c := testClient(t, f)

	_, err := c.Apply(context.Background(), "https://github.com/acme/widgets", testChanges(), "main", models.ModeCreatePR, "")

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"main.go"}, conflict.Files)
	// Staging branch must not survive a conflicted apply.
	require.Len(t, f.deletedRefs, 1)
	assert.Contains(t, f.deletedRefs[0], "ai/changes-")
	assert.Empty(t, f.createdPRs)
}

func TestApplyCreatePRMasterFallback(t *testing.T) {
	f := newFakeGitHub()
	f.branches = map[string]string{"master": "abc123"}
	c := testClient(t, f)

	out, err := c.Apply(context.Background(), "https://github.com/acme/widgets", testChanges(), "main", models.ModeCreatePR, "")
	require.NoError(t, err)

	assert.NotEmpty(t, out.PRURL)
	require.Len(t, f.createdPRs, 1)
	assert.Equal(t, "master", f.createdPRs[0]["base"])
}

func TestApplyUpdateBranchMissing(t *testing.T) {
	f := newFakeGitHub()
	c := testClient(t, f)

	_, err := c.Apply(context.Background(), "https://github.com/acme/widgets", testChanges(), "main", models.ModeUpdateBranch, "feature/missing")

	require.ErrorIs(t, err, ErrBranchNotFound)
	assert.Zero(t, f.commits)
}

func TestApplyUpdateBranchCommentsOnOpenPR(t *testing.T) {
	f := newFakeGitHub()
	f.branches["feature/login"] = "def456"
	f.openPRs = []PullRequest{{
		HTMLURL: "https://github.com/acme/widgets/pull/7",
		Number:  7,
		State:   "open",
	}}
	c := testClient(t, f)

	out, err := c.Apply(context.Background(), "https://github.com/acme/widgets", testChanges(), "main", models.ModeUpdateBranch, "feature/login")
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/acme/widgets/pull/7", out.PRURL)
	assert.Equal(t, "feature/login", out.Branch)
	assert.Equal(t, 1, f.commits)
	require.Len(t, f.comments, 1)
	assert.Contains(t, f.comments[0], "Add a greeting endpoint")
	assert.Empty(t, f.createdPRs)
}

func TestApplyUpdateBranchOpensPRWhenNoneExists(t *testing.T) {
	f := newFakeGitHub()
	f.branches["feature/login"] = "def456"
	c := testClient(t, f)

	out, err := c.Apply(context.Background(), "https://github.com/acme/widgets", testChanges(), "main", models.ModeUpdateBranch, "feature/login")
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/acme/widgets/pull/42", out.PRURL)
	require.Len(t, f.createdPRs, 1)
	assert.Equal(t, "feature/login", f.createdPRs[0]["head"])
	assert.Empty(t, f.comments)
}

func TestRateLimitStateCheck(t *testing.T) {
	now := time.Now()
	s := &RateLimitState{remaining: -1, now: func() time.Time { return now }}

	// Unknown state never blocks.
	require.NoError(t, s.Check())

	h := http.Header{}
	h.Set("X-Ratelimit-Remaining", "0")
	h.Set("X-Ratelimit-Limit", "5000")
	h.Set("X-Ratelimit-Reset", "0")
	s.Update(h)

	var rl *RateLimitError
	require.ErrorAs(t, s.Check(), &rl)
	assert.Equal(t, time.Duration(0), rl.RetryAfter)

	// Stale headers lose authority.
	now = now.Add(staleAfter + time.Second)
	require.NoError(t, s.Check())
}
