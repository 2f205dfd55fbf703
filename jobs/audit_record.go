package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/Keda87/simple-banking-api/internal/jobs"
	"github.com/Keda87/simple-banking-api/internal/shared"
)

// AuditRecorder persists transaction log rows.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditRecordJob drains audit tasks into the transaction log.
type AuditRecordJob struct {
	Store   AuditRecorder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditRecordJob initialises the audit handler.
func NewAuditRecordJob(store AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRecordJob {
	return &AuditRecordJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle writes one audit event. Malformed payloads are dropped without retry.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("audit record: handler not configured")
	}
	var payload AuditRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger().Warn("audit record: bad payload", slog.Any("error", err))
		return fmt.Errorf("audit record: decode: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Message == "" {
		return fmt.Errorf("audit record: empty message: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskAuditRecord)
	defer func() {
		err = tracker.End(err)
	}()

	err = j.Store.Record(ctx, shared.AuditLog{
		Actor:    payload.Actor,
		Message:  payload.Message,
		Metadata: payload.Metadata,
		At:       payload.At,
	})
	if err != nil {
		j.logger().Error("audit record failed", slog.String("actor", payload.Actor), slog.Any("error", err))
		return err
	}
	return nil
}

func (j *AuditRecordJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
