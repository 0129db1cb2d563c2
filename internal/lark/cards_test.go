package lark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/forgebot/internal/models"
)

func sampleJob() *models.Job {
	return &models.Job{
		ID:      "job-1",
		UserID:  "u1",
		ChatID:  "oc_1",
		Message: "Add a health endpoint",
		Status:  models.StatusProcessing,
		Context: models.JobContext{Mode: models.ModeCreatePR},
	}
}

func buttonValues(card Card) []map[string]any {
	var values []map[string]any
	for _, el := range card.Elements {
		for _, b := range el.Actions {
			if b.Value != nil {
				values = append(values, b.Value)
			}
		}
	}
	return values
}

func TestProcessingCard(t *testing.T) {
	card := ProcessingCard(sampleJob())

	assert.Equal(t, "blue", card.Header.Template)
	values := buttonValues(card)
	require.Len(t, values, 1)
	assert.Equal(t, ActionCheckStatus, values[0]["type"])
	assert.Equal(t, "job-1", values[0]["job_id"])
}

func TestCompletedCardWithPR(t *testing.T) {
	job := sampleJob()
	job.Status = models.StatusCompleted
	job.Result = &models.JobResult{
		PRURL:   "https://github.com/acme/widgets/pull/5",
		Branch:  "ai/changes-x",
		Summary: "Added /health",
		Mode:    models.ModeCreatePR,
	}

	card := CompletedCard(job)

	assert.Equal(t, "green", card.Header.Template)
	var prButton bool
	for _, el := range card.Elements {
		for _, b := range el.Actions {
			if b.URL == job.Result.PRURL {
				prButton = true
			}
		}
	}
	assert.True(t, prButton)
}

func TestConflictCardListsFiles(t *testing.T) {
	card := ConflictCard(sampleJob(), []string{"main.go", "api.go"})

	assert.Equal(t, "yellow", card.Header.Template)
	require.NotEmpty(t, card.Elements)
	assert.Contains(t, card.Elements[0].Text.Content, "- main.go")
	assert.Contains(t, card.Elements[0].Text.Content, "- api.go")
}

func TestQuestionsCardSkipsAnswered(t *testing.T) {
	job := sampleJob()
	job.Status = models.StatusQuestioning
	job.Questions = []models.Question{
		{ID: "q1", Text: "Which database?", Answer: "postgres"},
		{ID: "q2", Text: "Which port?"},
	}

	card := QuestionsCard(job)

	require.NotEmpty(t, card.Elements)
	content := card.Elements[0].Text.Content
	assert.NotContains(t, content, "Which database?")
	assert.Contains(t, content, "1. Which port?")
}

func TestStatusCardTerminalHasNoRefresh(t *testing.T) {
	job := sampleJob()
	job.Status = models.StatusFailed
	job.Error = "transport: timeout"

	card := StatusCard(job)

	assert.Equal(t, "red", card.Header.Template)
	assert.Empty(t, buttonValues(card))
	assert.Contains(t, card.Elements[0].Text.Content, "transport: timeout")
}
