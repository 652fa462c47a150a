package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dvloznov/ledger-sync/internal/jobs"
	"github.com/dvloznov/ledger-sync/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-sync/internal/orchestrator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPublisher implements jobs.Publisher with a function hook.
type MockPublisher struct {
	PublishSyncFunc func(ctx context.Context, job *jobs.SyncJob) error
}

func (m *MockPublisher) PublishSync(ctx context.Context, job *jobs.SyncJob) error {
	return m.PublishSyncFunc(ctx, job)
}

func (m *MockPublisher) Close() error { return nil }

func newServer(t *testing.T, pub jobs.Publisher) (*httptest.Server, *inmemory.Store) {
	t.Helper()
	store := inmemory.NewStore()
	log := zerolog.Nop()
	mux := Routes(NewJobsHandler(store, log), NewSyncHandler(pub, []string{"purchases", "expenses"}, log))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t, &MockPublisher{})
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestJobs_ListAndGet(t *testing.T) {
	ctx := context.Background()
	srv, store := newServer(t, &MockPublisher{})
	now := time.Date(2024, 4, 1, 2, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveJob(ctx, &jobs.SyncJob{
		JobID: "j1", Entity: "purchases", Status: jobs.JobStatusCompleted, CreatedAt: now,
		Report: &orchestrator.RunReport{Entity: "purchases", Fetched: 2, LedgersRendered: 1},
	}))
	require.NoError(t, store.SaveJob(ctx, &jobs.SyncJob{
		JobID: "j2", Entity: "expenses", Status: jobs.JobStatusFailed, CreatedAt: now.Add(time.Minute),
	}))

	resp, err := http.Get(srv.URL + "/api/jobs?entity=purchases")
	require.NoError(t, err)
	var list struct {
		Jobs  []jobs.SyncJob `json:"jobs"`
		Count int            `json:"count"`
	}
	decode(t, resp, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "j1", list.Jobs[0].JobID)
	require.NotNil(t, list.Jobs[0].Report)
	assert.Equal(t, 2, list.Jobs[0].Report.Fetched)

	resp, err = http.Get(srv.URL + "/api/jobs?limit=1")
	require.NoError(t, err)
	decode(t, resp, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "j2", list.Jobs[0].JobID)

	resp, err = http.Get(srv.URL + "/api/jobs/j2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var job jobs.SyncJob
	decode(t, resp, &job)
	assert.Equal(t, jobs.JobStatusFailed, job.Status)

	resp, err = http.Get(srv.URL + "/api/jobs/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/jobs", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSync_Enqueue(t *testing.T) {
	var published []*jobs.SyncJob
	pub := &MockPublisher{PublishSyncFunc: func(_ context.Context, job *jobs.SyncJob) error {
		job.JobID = "new-job"
		job.Status = jobs.JobStatusPending
		published = append(published, job)
		return nil
	}}
	srv, _ := newServer(t, pub)

	resp, err := http.Post(srv.URL+"/api/sync/purchases", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "new-job", body["job_id"])
	assert.Equal(t, "pending", body["status"])

	require.Len(t, published, 1)
	assert.Equal(t, jobs.TriggerManual, published[0].Trigger)
	assert.Equal(t, "purchases", published[0].Entity)
}

func TestSync_Errors(t *testing.T) {
	pub := &MockPublisher{PublishSyncFunc: func(context.Context, *jobs.SyncJob) error {
		return errors.New("queue is closed")
	}}
	srv, _ := newServer(t, pub)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"unknown entity", http.MethodPost, "/api/sync/invoices", http.StatusNotFound},
		{"missing entity", http.MethodPost, "/api/sync/", http.StatusBadRequest},
		{"wrong method", http.MethodGet, "/api/sync/purchases", http.StatusMethodNotAllowed},
		{"queue closed", http.MethodPost, "/api/sync/expenses", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

// MockJobStore implements jobs.JobStore with function hooks.
type MockJobStore struct {
	GetJobFunc func(ctx context.Context, jobID string) (*jobs.SyncJob, error)
}

func (m *MockJobStore) SaveJob(context.Context, *jobs.SyncJob) error { return nil }

func (m *MockJobStore) GetJob(ctx context.Context, jobID string) (*jobs.SyncJob, error) {
	return m.GetJobFunc(ctx, jobID)
}

func (m *MockJobStore) ListJobs(context.Context, jobs.JobFilter) ([]*jobs.SyncJob, error) {
	return nil, nil
}

func (m *MockJobStore) UpdateJobStatus(context.Context, string, jobs.JobStatus, string) error {
	return nil
}

func TestJobs_GetMapsStoreErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"wrapped not found", fmt.Errorf("lookup: %w", jobs.ErrNotFound), http.StatusNotFound},
		{"backend error", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockJobStore{GetJobFunc: func(context.Context, string) (*jobs.SyncJob, error) {
				return nil, tt.err
			}}
			log := zerolog.Nop()
			srv := httptest.NewServer(Routes(NewJobsHandler(store, log), NewSyncHandler(&MockPublisher{}, nil, log)))
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/api/jobs/abc")
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestSync_EnqueueWithRunningWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := inmemory.NewStore()
	q := inmemory.NewQueue(10, 2, store)
	require.NoError(t, q.Start(ctx, func(context.Context, jobs.Job) error { return nil }))
	defer q.Stop(context.Background())

	log := zerolog.Nop()
	srv := httptest.NewServer(Routes(NewJobsHandler(store, log), NewSyncHandler(q, []string{"purchases"}, log)))
	defer srv.Close()

	for i := 0; i < 5; i++ {
		resp, err := http.Post(srv.URL+"/api/sync/purchases", "application/json", nil)
		require.NoError(t, err)
		var body map[string]string
		decode(t, resp, &body)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, "pending", body["status"])
		assert.NotEmpty(t, body["job_id"])
	}
}
