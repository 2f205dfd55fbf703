package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Keda87/simple-banking-api/internal/audit"
	jobmetrics "github.com/Keda87/simple-banking-api/internal/jobs"
	"github.com/Keda87/simple-banking-api/internal/shared"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	return m.Called(ctx, log).Error(0)
}

type mockPurger struct {
	mock.Mock
}

func (m *mockPurger) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func TestAuditRecordTaskRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	task, err := NewAuditRecordTask(audit.Event{
		Actor:    "ada@example.com",
		Message:  "Succeed to deposit funds.",
		Metadata: map[string]any{"amount": "10.00", "password": "secret"},
		At:       at,
	})
	require.NoError(t, err)
	assert.Equal(t, TaskAuditRecord, task.Type())

	recorder := &mockRecorder{}
	recorder.On("Record", mock.Anything, mock.MatchedBy(func(log shared.AuditLog) bool {
		return log.Actor == "ada@example.com" &&
			log.Message == "Succeed to deposit funds." &&
			log.At.Equal(at) &&
			log.Metadata["amount"] == "10.00" &&
			log.Metadata["password"] != "secret"
	})).Return(nil).Once()

	job := NewAuditRecordJob(recorder, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, job.Handle(context.Background(), task))
	recorder.AssertExpectations(t)
}

func TestAuditRecordJobSkipsRetryOnBadPayload(t *testing.T) {
	job := NewAuditRecordJob(&mockRecorder{}, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	data, _ := json.Marshal(AuditRecordPayload{Actor: "x"})
	err = job.Handle(context.Background(), asynq.NewTask(TaskAuditRecord, data))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestAuditRecordJobRetriesStoreFailures(t *testing.T) {
	recorder := &mockRecorder{}
	recorder.On("Record", mock.Anything, mock.Anything).Return(errors.New("db down"))
	job := NewAuditRecordJob(recorder, nil, nil)

	task, err := NewAuditRecordTask(audit.Event{Actor: "a", Message: "m"})
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestIdempotencyCleanupJob(t *testing.T) {
	purger := &mockPurger{}
	purger.On("Cleanup", mock.Anything, 48*time.Hour).Return(int64(3), nil).Once()

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	job := NewIdempotencyCleanupJob(purger, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, job.Handle(context.Background(), task))
	purger.AssertExpectations(t)
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	purger := &mockPurger{}
	purger.On("Cleanup", mock.Anything, 24*time.Hour).Return(int64(0), nil).Once()

	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, NewIdempotencyCleanupJob(purger, nil, nil).Handle(context.Background(), task))
	purger.AssertExpectations(t)
}

func TestHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, nil)
	rr := httptest.NewRecorder()
	h.health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"audit","pending":0}`, rr.Body.String())
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	task, err := NewIdempotencyCleanupTask(time.Hour)
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: task}},
	})
	assert.Error(t, err)
}
