package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomvergara/fabricd/internal/api"
	"github.com/tomvergara/fabricd/internal/api/handler"
	mw "github.com/tomvergara/fabricd/internal/api/middleware"
	"github.com/tomvergara/fabricd/internal/cache"
	"github.com/tomvergara/fabricd/internal/gateway"
	gwmock "github.com/tomvergara/fabricd/internal/gateway/mock"
	"github.com/tomvergara/fabricd/internal/provisioning"
	"github.com/tomvergara/fabricd/internal/store"
	"github.com/tomvergara/fabricd/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// --- test fixtures ---

var (
	testRawKey    = "fd_admin_contract_key_1234567890"
	testPrefix    = testRawKey[:8]
	limitedRawKey = "fd_rdonly_contract_key_987654321"
	limitedPrefix = limitedRawKey[:8]
)

func hashKey(raw string) string {
	h, _ := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	return string(h)
}

func testFabricConfig() models.FabricConfig {
	return models.FabricConfig{
		SiteCode: "dc1",
		Credentials: models.ControllerCredentials{
			Host: "apic.example.com", Username: "admin", Password: "secret",
		},
		Tenants: []models.Tenant{{Name: "prod"}},
	}
}

// --- mock store ---

type mockStore struct {
	mu        sync.Mutex
	nextJobID int64
	jobs      map[int64]*models.Job
	logs      map[int64][]*models.TaskLogEntry
	templates []*models.Template
	keys      []*models.APIKey
}

func newMockStore() *mockStore {
	return &mockStore{
		jobs: make(map[int64]*models.Job),
		logs: make(map[int64][]*models.TaskLogEntry),
		templates: []*models.Template{
			{ID: 1, Name: "Basic Fabric", Type: "fabric", Config: json.RawMessage(`{"tenants":[]}`)},
		},
		keys: []*models.APIKey{
			{
				ID: uuid.New(), Name: "admin-key", KeyHash: hashKey(testRawKey),
				KeyPrefix: testPrefix, Scopes: []string{"read", "write", "admin"},
			},
			{
				ID: uuid.New(), Name: "limited-key", KeyHash: hashKey(limitedRawKey),
				KeyPrefix: limitedPrefix, Scopes: []string{"read", "write"},
			},
		},
	}
}

func (s *mockStore) Ping(_ context.Context) error { return nil }

func (s *mockStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextJobID++
	job.ID = s.nextJobID
	job.CreatedAt = time.Now()
	s.jobs[job.ID] = job
	return nil
}

func (s *mockStore) GetJob(_ context.Context, id int64) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (s *mockStore) ListJobs(_ context.Context) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (s *mockStore) UpdateJobStatus(_ context.Context, id int64, status string, opts ...store.JobUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	j.Status = status
	if progress, cleared := store.ResolveJobUpdateOptions(opts...); cleared {
		j.Progress = nil
	} else if progress != nil {
		j.Progress = progress
	}
	return nil
}

func (s *mockStore) DeleteJob(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.jobs, id)
	delete(s.logs, id)
	return nil
}

func (s *mockStore) AppendTaskLog(_ context.Context, entry *models.TaskLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Timestamp = time.Now()
	s.logs[entry.JobID] = append(s.logs[entry.JobID], entry)
	return nil
}

func (s *mockStore) ListTaskLogs(_ context.Context, jobID int64) ([]*models.TaskLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs[jobID], nil
}

func (s *mockStore) ListRecentTaskLogs(_ context.Context, limit int) ([]*models.TaskLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TaskLogEntry
	for _, logs := range s.logs {
		out = append(out, logs...)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *mockStore) ListTemplates(_ context.Context) ([]*models.Template, error) {
	return s.templates, nil
}

func (s *mockStore) GetTemplate(_ context.Context, id int64) (*models.Template, error) {
	for _, t := range s.templates {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *mockStore) JobStats(_ context.Context) (*store.JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &store.JobStats{ByStatus: make(map[string]int)}
	for _, j := range s.jobs {
		stats.ByStatus[j.Status]++
	}
	return stats, nil
}

func (s *mockStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

func (s *mockStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.keys {
		if existing.Name == key.Name {
			return store.ErrDuplicateKey
		}
	}
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	s.keys = append(s.keys, key)
	return nil
}

func (s *mockStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockStore) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	now := time.Now()
	for _, k := range s.keys {
		if k.ID == id && k.DeletedAt == nil {
			k.DeletedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

var _ store.Store = (*mockStore)(nil)

// --- mock cache ---

type mockCache struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newMockCache() *mockCache {
	return &mockCache{counters: make(map[string]int64)}
}

func (c *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}
func (c *mockCache) Delete(_ context.Context, _ string) error { return nil }
func (c *mockCache) Ping(_ context.Context) error             { return nil }
func (c *mockCache) SetJobStatus(_ context.Context, _ int64, _ string, _ time.Duration) error {
	return nil
}
func (c *mockCache) GetJobStatus(_ context.Context, _ int64) (string, bool, error) {
	return "", false, nil
}
func (c *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

var _ cache.Cache = (*mockCache)(nil)

// --- test harness ---

type testServer struct {
	server *httptest.Server
	store  *mockStore
	cache  *mockCache
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ms := newMockStore()
	mc := newMockCache()

	gw := gwmock.NewMockGateway()
	svc := provisioning.NewService(ms, mc,
		func(_ models.ControllerCredentials) models.Gateway { return gw },
		func(_ models.ControllerCredentials) gateway.Prober { return gw },
	)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(ms),
		RateLimit: mw.NewRateLimit(mc, 50),

		HealthHandler: handler.NewHealthHandler(ms, mc),

		SubmitJobHandler: handler.NewSubmitJobHandler(svc),
		ListJobsHandler:  handler.NewListJobsHandler(ms),
		GetJobHandler:    handler.NewGetJobHandler(ms),
		JobLogsHandler:   handler.NewJobLogsHandler(ms),
		DeleteJobHandler: handler.NewDeleteJobHandler(ms),

		ValidateHandler:          handler.NewValidateHandler(svc),
		ValidateMultiSiteHandler: handler.NewValidateMultiSiteHandler(svc),

		ListTemplatesHandler: handler.NewListTemplatesHandler(ms),
		GetTemplateHandler:   handler.NewGetTemplateHandler(ms),

		StatsHandler:      handler.NewStatsHandler(ms),
		RecentLogsHandler: handler.NewRecentLogsHandler(ms),

		CreateKeyHandler: handler.NewCreateAPIKeyHandler(ms),
		ListKeysHandler:  handler.NewListAPIKeysHandler(ms),
		RevokeKeyHandler: handler.NewRevokeAPIKeyHandler(ms),
	}

	srv := httptest.NewServer(api.NewRouter(deps))
	t.Cleanup(srv.Close)

	return &testServer{server: srv, store: ms, cache: mc}
}

func (ts *testServer) request(t *testing.T, method, path, rawKey string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	if rawKey != "" {
		req.Header.Set("Authorization", "Bearer "+rawKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func parseBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// waitForJobDone polls the mock store until the submitted job reaches a
// terminal status.
func (ts *testServer) waitForJobDone(t *testing.T, jobID int64) *models.Job {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		job, err := ts.store.GetJob(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status == models.JobStatusCompleted || job.Status == models.JobStatusFailed {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("job %d never reached a terminal status", jobID)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// --- health and auth ---

func TestHealth_NoAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := parseBody(t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestAuth_MissingToken(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/v1/jobs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_UnknownKey(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/v1/jobs", "fd_nosuch_key_00000000000000000", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// --- job endpoints ---

func TestSubmitJob_Accepted(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPost, "/api/v1/jobs", testRawKey, map[string]any{
		"name":   "dc1 rollout",
		"config": testFabricConfig(),
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := parseBody(t, resp)
	data, _ := body["data"].(map[string]any)
	require.NotNil(t, data)
	assert.Equal(t, "started", data["status"])

	jobID := int64(data["job_id"].(float64))
	job := ts.waitForJobDone(t, jobID)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}

func TestSubmitJob_MissingName(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPost, "/api/v1/jobs", testRawKey, map[string]any{
		"config": testFabricConfig(),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitJob_InvalidBody(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.server.URL+"/api/v1/jobs",
		bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testRawKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJob_OK(t *testing.T) {
	ts := newTestServer(t)

	job := &models.Job{Name: "existing", Config: testFabricConfig(), Status: models.JobStatusPending}
	require.NoError(t, ts.store.CreateJob(context.Background(), job))

	resp := ts.request(t, http.MethodGet, fmt.Sprintf("/api/v1/jobs/%d", job.ID), testRawKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := parseBody(t, resp)
	data, _ := body["data"].(map[string]any)
	require.NotNil(t, data)
	assert.Equal(t, "existing", data["name"])
}

func TestGetJob_NotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/v1/jobs/99999", testRawKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetJob_InvalidID(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/v1/jobs/abc", testRawKey, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobLogs_NotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/v1/jobs/99999/logs", testRawKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobLogs_OK(t *testing.T) {
	ts := newTestServer(t)

	job := &models.Job{Name: "logged", Config: testFabricConfig(), Status: models.JobStatusRunning}
	require.NoError(t, ts.store.CreateJob(context.Background(), job))
	require.NoError(t, ts.store.AppendTaskLog(context.Background(), &models.TaskLogEntry{
		JobID: job.ID, TaskName: "provisioning_start", Status: models.TaskStatusInfo,
	}))

	resp := ts.request(t, http.MethodGet, fmt.Sprintf("/api/v1/jobs/%d/logs", job.ID), testRawKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := parseBody(t, resp)
	data, _ := body["data"].([]any)
	assert.Len(t, data, 1)
}

func TestDeleteJob(t *testing.T) {
	ts := newTestServer(t)

	job := &models.Job{Name: "doomed", Config: testFabricConfig(), Status: models.JobStatusCompleted}
	require.NoError(t, ts.store.CreateJob(context.Background(), job))

	resp := ts.request(t, http.MethodDelete, fmt.Sprintf("/api/v1/jobs/%d", job.ID), testRawKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.request(t, http.MethodDelete, fmt.Sprintf("/api/v1/jobs/%d", job.ID), testRawKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// --- validation endpoints ---

func TestValidate_OK(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPost, "/api/v1/validate", testRawKey, testFabricConfig())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := parseBody(t, resp)
	data, _ := body["data"].(map[string]any)
	require.NotNil(t, data)
	assert.Equal(t, true, data["valid"])
}

func TestValidate_ReportsErrors(t *testing.T) {
	ts := newTestServer(t)

	cfg := testFabricConfig()
	cfg.Tenants = nil

	resp := ts.request(t, http.MethodPost, "/api/v1/validate", testRawKey, cfg)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := parseBody(t, resp)
	data, _ := body["data"].(map[string]any)
	require.NotNil(t, data)
	assert.Equal(t, false, data["valid"])
	errs, _ := data["errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "At least one tenant must be specified", errs[0])
}

func TestValidateMultiSite_RequiresHost(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPost, "/api/v1/multisite/validate", testRawKey, map[string]any{
		"credentials": map[string]any{"username": "admin"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestValidateMultiSite_OK(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPost, "/api/v1/multisite/validate", testRawKey, map[string]any{
		"credentials": map[string]any{"host": "ndo.example.com", "username": "admin", "password": "x"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := parseBody(t, resp)
	data, _ := body["data"].(map[string]any)
	require.NotNil(t, data)
	assert.Equal(t, true, data["valid"])
}

// --- templates, stats, recent logs ---

func TestTemplates_List(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/v1/templates", testRawKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := parseBody(t, resp)
	data, _ := body["data"].([]any)
	require.Len(t, data, 1)
}

func TestTemplates_GetNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/v1/templates/999", testRawKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/v1/stats", testRawKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRecentLogs_InvalidLimit(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/v1/logs/recent?limit=-5", testRawKey, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// --- admin key endpoints ---

func TestAdminKeys_RequiresAdminScope(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodGet, "/api/v1/admin/keys", limitedRawKey, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAdminKeys_CreateShowsRawKeyOnce(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.request(t, http.MethodPost, "/api/v1/admin/keys", testRawKey, map[string]any{
		"name":   "ci-key",
		"scopes": []string{"read"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := parseBody(t, resp)
	data, _ := body["data"].(map[string]any)
	require.NotNil(t, data)

	raw, _ := data["key"].(string)
	assert.NotEmpty(t, raw)
	assert.Equal(t, raw[:8], data["key_prefix"])

	// The raw key never appears in the list response
	resp = ts.request(t, http.MethodGet, "/api/v1/admin/keys", testRawKey, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listBody := parseBody(t, resp)
	keys, _ := listBody["data"].([]any)
	require.NotEmpty(t, keys)
	for _, k := range keys {
		km, _ := k.(map[string]any)
		_, hasRaw := km["key"]
		assert.False(t, hasRaw)
	}
}

func TestAdminKeys_Revoke(t *testing.T) {
	ts := newTestServer(t)

	var limitedID uuid.UUID
	for _, k := range ts.store.keys {
		if k.Name == "limited-key" {
			limitedID = k.ID
		}
	}

	resp := ts.request(t, http.MethodDelete, "/api/v1/admin/keys/"+limitedID.String(), testRawKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Revoked key can no longer authenticate
	resp = ts.request(t, http.MethodGet, "/api/v1/jobs", limitedRawKey, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// --- rate limiting ---

func TestRateLimit_Exceeded(t *testing.T) {
	ts := newTestServer(t)

	var last *http.Response
	for i := 0; i < 51; i++ {
		last = ts.request(t, http.MethodGet, "/api/v1/jobs", testRawKey, nil)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.Equal(t, "60", last.Header.Get("Retry-After"))
}
