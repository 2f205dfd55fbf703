package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Keda87/simple-banking-api/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries transaction log writes.
	QueueAudit = "audit"

	// TaskAuditRecord persists one audit event into transaction_logs.
	TaskAuditRecord = "audit:record"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// AuditRecordPayload is the wire form of an audit event.
type AuditRecordPayload struct {
	Actor    string         `json:"actor"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
	At       time.Time      `json:"at"`
}

// IdempotencyCleanupPayload configures the retention sweep.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewAuditRecordTask constructs an audit task. Metadata is sanitized again
// since events may be built without audit.NewEvent.
func NewAuditRecordTask(event audit.Event) (*asynq.Task, error) {
	data, err := json.Marshal(AuditRecordPayload{
		Actor:    event.Actor,
		Message:  event.Message,
		Metadata: audit.Sanitize(event.Metadata),
		At:       event.At,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data), nil
}

// NewIdempotencyCleanupTask constructs the retention sweep task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	hours := int(retention / time.Hour)
	if hours <= 0 {
		hours = 24
	}
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: hours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
