package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/forgebot/internal/db"
	"github.com/raphaelgruber/forgebot/internal/lark"
	"github.com/raphaelgruber/forgebot/internal/metrics"
	"github.com/raphaelgruber/forgebot/internal/models"
	"github.com/raphaelgruber/forgebot/internal/orchestrator"
)

type fakeJobs struct {
	intakeReq  *orchestrator.IntakeRequest
	job        *models.Job
	nextEmpty  bool
	retried    string
	processed  string
	listedUser string
}

func (f *fakeJobs) Intake(_ context.Context, req orchestrator.IntakeRequest) (*models.Job, error) {
	f.intakeReq = &req
	return f.job, nil
}

func (f *fakeJobs) ProcessNext(context.Context) (*models.Job, error) {
	if f.nextEmpty {
		return nil, nil
	}
	return f.job, nil
}

func (f *fakeJobs) ProcessSpecific(_ context.Context, id string) (*models.Job, error) {
	f.processed = id
	return f.job, nil
}

func (f *fakeJobs) Retry(_ context.Context, id string) (*models.Job, error) {
	f.retried = id
	return f.job, nil
}

func (f *fakeJobs) GetJob(_ context.Context, id string) (*models.Job, error) {
	if f.job == nil || f.job.ID != id {
		return nil, db.ErrNotFound
	}
	return f.job, nil
}

func (f *fakeJobs) ListUserJobs(_ context.Context, userID string, _ int) ([]models.Job, error) {
	f.listedUser = userID
	return []models.Job{*f.job}, nil
}

func (f *fakeJobs) QueueStats(context.Context) (db.QueueStats, error) {
	return db.QueueStats{Pending: 2}, nil
}

func (f *fakeJobs) Metrics() metrics.Snapshot {
	return metrics.Snapshot{UptimeSeconds: 1}
}

type fakeChat struct {
	sentTo []string
}

func (f *fakeChat) SendCard(_ context.Context, receiveID string, _ lark.Card) error {
	f.sentTo = append(f.sentTo, receiveID)
	return nil
}

func testServer(cfg Config) (*Server, *fakeJobs, *fakeChat) {
	jobs := &fakeJobs{job: &models.Job{
		ID:     "job-1",
		UserID: "u1",
		ChatID: "oc_1",
		Status: models.StatusPending,
	}}
	chat := &fakeChat{}
	srv := New(jobs, chat, nil, cfg, slog.New(slog.DiscardHandler))
	return srv, jobs, chat
}

func doJSON(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func TestWebhookChallenge(t *testing.T) {
	srv, _, _ := testServer(Config{})

	rec := doJSON(srv, http.MethodPost, "/webhook", `{"type":"url_verification","challenge":"abc"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc", resp["challenge"])
}

func TestWebhookTokenMismatch(t *testing.T) {
	srv, _, _ := testServer(Config{VerificationToken: "expected"})

	body := `{"header":{"event_type":"im.message.receive_v1","token":"wrong"}}`
	rec := doJSON(srv, http.MethodPost, "/webhook", body, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookMessageCreatesJob(t *testing.T) {
	srv, jobs, _ := testServer(Config{})

	body := `{
		"header": {"event_type": "im.message.receive_v1"},
		"event": {
			"sender": {"sender_id": {"user_id": "u1"}},
			"message": {
				"message_id": "om_1",
				"chat_id": "oc_1",
				"content": "{\"text\":\"branch: feature-x fix the tests\"}"
			}
		}
	}`
	rec := doJSON(srv, http.MethodPost, "/webhook", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, jobs.intakeReq)
	assert.Equal(t, models.ModeUpdateBranch, jobs.intakeReq.Mode)
	assert.Equal(t, "feature-x", jobs.intakeReq.Branch)
	assert.Equal(t, "fix the tests", jobs.intakeReq.Message)
	assert.Equal(t, "om_1", jobs.intakeReq.ThreadID)
	assert.False(t, jobs.intakeReq.InThread)
}

func TestWebhookThreadedReply(t *testing.T) {
	srv, jobs, _ := testServer(Config{})

	body := `{
		"event": {
			"sender": {"sender_id": {"user_id": "u1"}},
			"message": {
				"message_id": "om_2",
				"chat_id": "oc_1",
				"root_id": "om_1",
				"content": "{\"text\":\"8080\"}"
			}
		}
	}`
	rec := doJSON(srv, http.MethodPost, "/webhook", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, jobs.intakeReq)
	assert.True(t, jobs.intakeReq.InThread)
	assert.Equal(t, "om_1", jobs.intakeReq.ThreadID)
}

func TestWebhookHelpSendsWelcome(t *testing.T) {
	srv, jobs, chat := testServer(Config{})

	body := `{
		"event": {
			"sender": {"sender_id": {"user_id": "u1"}},
			"message": {"message_id": "om_1", "chat_id": "oc_1", "content": "{\"text\":\"help\"}"}
		}
	}`
	rec := doJSON(srv, http.MethodPost, "/webhook", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"oc_1"}, chat.sentTo)
	assert.Nil(t, jobs.intakeReq, "help must not create a job")
}

func TestWebhookIgnoresNonMessageEvents(t *testing.T) {
	srv, jobs, _ := testServer(Config{})

	rec := doJSON(srv, http.MethodPost, "/webhook", `{"header":{"event_type":"im.chat.updated_v1"}}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, jobs.intakeReq)
}

func TestCronRequiresSecret(t *testing.T) {
	srv, _, _ := testServer(Config{CronSecret: "s3cret"})

	rec := doJSON(srv, http.MethodGet, "/cron", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(srv, http.MethodGet, "/cron", "", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCronEmptyQueue(t *testing.T) {
	srv, jobs, _ := testServer(Config{})
	jobs.nextEmpty = true

	rec := doJSON(srv, http.MethodPost, "/cron", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"processed":false`)
}

func TestCronSpecificValidatesBody(t *testing.T) {
	srv, jobs, _ := testServer(Config{})

	rec := doJSON(srv, http.MethodPut, "/cron", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(srv, http.MethodPut, "/cron", `{"job_id":"job-1"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "job-1", jobs.processed)
}

func TestCardActionRetry(t *testing.T) {
	srv, jobs, _ := testServer(Config{})

	body := `{"open_id":"ou_1","action":{"value":{"type":"retry","job_id":"job-1"}}}`
	rec := doJSON(srv, http.MethodPost, "/status", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "job-1", jobs.retried)
}

func TestCardActionStatusSendsCard(t *testing.T) {
	srv, _, chat := testServer(Config{})

	body := `{"open_id":"ou_1","action":{"value":{"type":"check_status","job_id":"job-1"}}}`
	rec := doJSON(srv, http.MethodPost, "/status", body, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ou_1"}, chat.sentTo)
}

func TestCardActionUnknownJob(t *testing.T) {
	srv, _, _ := testServer(Config{})

	body := `{"open_id":"ou_1","action":{"value":{"type":"check_status","job_id":"nope"}}}`
	rec := doJSON(srv, http.MethodPost, "/status", body, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserStatusRequiresUserID(t *testing.T) {
	srv, jobs, _ := testServer(Config{})

	rec := doJSON(srv, http.MethodGet, "/status", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(srv, http.MethodGet, "/status?userId=u1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", jobs.listedUser)
}

func TestHealthAndStats(t *testing.T) {
	srv, _, _ := testServer(Config{})

	rec := doJSON(srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(srv, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":2`)
}
