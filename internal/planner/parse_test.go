package planner

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/forgebot/internal/models"
)

func TestParsePlanOutcomeChanges(t *testing.T) {
	content := `{
		"needsQuestions": false,
		"codeChanges": {
			"plan": "Add a /health endpoint",
			"files": [{"path": "server.go", "content": "package main"}],
			"commitMessage": "feat: add health endpoint",
			"prTitle": "Add health endpoint",
			"prBody": "Adds a simple liveness check."
		}
	}`

	outcome, err := ParsePlanOutcome(content)
	require.NoError(t, err)
	require.NotNil(t, outcome.Changes)
	assert.False(t, outcome.NeedsQuestions)
	assert.Equal(t, "Add a /health endpoint", outcome.Changes.Plan)
	require.Len(t, outcome.Changes.Files, 1)
	assert.Equal(t, "server.go", outcome.Changes.Files[0].Path)
	assert.Equal(t, "feat: add health endpoint", outcome.Changes.CommitMessage)
}

func TestParsePlanOutcomeStripsCodeFences(t *testing.T) {
	content := "Here is the plan:\n```json\n" +
		`{"needsQuestions": false, "codeChanges": {"plan": "p", "files": [{"path": "a.go", "content": ""}]}}` +
		"\n```\nLet me know if that works."

	outcome, err := ParsePlanOutcome(content)
	require.NoError(t, err)
	require.NotNil(t, outcome.Changes)
	assert.Equal(t, "p", outcome.Changes.Plan)
	// Empty string content is valid, only a missing field is rejected.
	assert.Equal(t, "", outcome.Changes.Files[0].Content)
}

func TestParsePlanOutcomeFindsBareObject(t *testing.T) {
	content := `The result follows. {"needsQuestions": true, "questions": [{"id": "q1", "text": "Which DB?"}]} Done.`

	outcome, err := ParsePlanOutcome(content)
	require.NoError(t, err)
	assert.True(t, outcome.NeedsQuestions)
	require.Len(t, outcome.Questions, 1)
	assert.Equal(t, "Which DB?", outcome.Questions[0].Text)
}

func TestParsePlanOutcomeQuestions(t *testing.T) {
	content := `{"needsQuestions": true, "questions": [
		{"id": "q1", "text": "Which port?"},
		{"text": "Should auth be required?"}
	]}`

	outcome, err := ParsePlanOutcome(content)
	require.NoError(t, err)
	assert.True(t, outcome.NeedsQuestions)
	require.Len(t, outcome.Questions, 2)
	assert.Equal(t, "q1", outcome.Questions[0].ID)
	assert.NotEmpty(t, outcome.Questions[1].ID, "missing question ids are generated")
	assert.NotZero(t, outcome.Questions[0].AskedAt)
	assert.Empty(t, outcome.Questions[0].Answer)
}

func TestParsePlanOutcomeTruncatesQuestions(t *testing.T) {
	content := `{"needsQuestions": true, "questions": [
		{"text": "one"}, {"text": "two"}, {"text": "three"}, {"text": "four"}, {"text": "five"}
	]}`

	outcome, err := ParsePlanOutcome(content)
	require.NoError(t, err)
	assert.Len(t, outcome.Questions, models.MaxOpenQuestions)
	assert.Equal(t, "one", outcome.Questions[0].Text)
}

func TestParsePlanOutcomeDefaultsPRMetadata(t *testing.T) {
	content := `{"needsQuestions": false, "codeChanges": {
		"plan": "Refactor the session handling so tokens refresh before expiry instead of after",
		"files": [{"path": "session.go", "content": "package session"}]
	}}`

	outcome, err := ParsePlanOutcome(content)
	require.NoError(t, err)
	changes := outcome.Changes
	assert.Equal(t, "chore: update files", changes.CommitMessage)
	assert.Len(t, changes.PRTitle, 50, "title falls back to a truncated plan")
	assert.Equal(t, changes.Plan, changes.PRBody)
}

func TestParsePlanOutcomeTitleTruncationKeepsValidUTF8(t *testing.T) {
	plan := strings.Repeat("変", 60)
	content := fmt.Sprintf(
		`{"needsQuestions": false, "codeChanges": {"plan": %q, "files": [{"path": "a.go", "content": ""}]}}`,
		plan)

	outcome, err := ParsePlanOutcome(content)
	require.NoError(t, err)

	title := outcome.Changes.PRTitle
	assert.True(t, utf8.ValidString(title), "truncation must not split a rune")
	assert.Equal(t, 50, len([]rune(title)))
}

func TestParsePlanOutcomeRejections(t *testing.T) {
	tooMany := `{"needsQuestions": false, "codeChanges": {"plan": "p", "files": [`
	for i := 0; i < 11; i++ {
		if i > 0 {
			tooMany += ","
		}
		tooMany += fmt.Sprintf(`{"path": "f%d.go", "content": ""}`, i)
	}
	tooMany += `]}}`

	tests := []struct {
		name    string
		content string
	}{
		{"not json", "I could not produce a plan, sorry."},
		{"questions flag without questions", `{"needsQuestions": true, "questions": []}`},
		{"question with empty text", `{"needsQuestions": true, "questions": [{"text": "  "}]}`},
		{"neither questions nor changes", `{"needsQuestions": false}`},
		{"changes without plan", `{"codeChanges": {"files": [{"path": "a.go", "content": ""}]}}`},
		{"changes without files", `{"codeChanges": {"plan": "p", "files": []}}`},
		{"too many files", tooMany},
		{"file without path", `{"codeChanges": {"plan": "p", "files": [{"content": "x"}]}}`},
		{"file without content", `{"codeChanges": {"plan": "p", "files": [{"path": "a.go"}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlanOutcome(tt.content)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse), "expected ErrParse, got %v", err)
		})
	}
}

func TestParseErrorTruncatesContent(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}

	_, err := ParsePlanOutcome(string(long))
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 700, "raw content is truncated in the error message")
}
