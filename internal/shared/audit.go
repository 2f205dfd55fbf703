package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in transaction_logs.
type AuditLog struct {
	ID       int64
	Actor    string
	Message  string
	Metadata map[string]any
	At       time.Time
}

// AuditLogger writes records into transaction_logs, the secondary store
// that sits outside the ledger transaction.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Message == "" {
		return errors.New("audit log requires message")
	}
	if log.Metadata == nil {
		log.Metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(log.Metadata)
	if err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO transaction_logs (actor, message, metadata, created_at) VALUES ($1, $2, $3, COALESCE($4, NOW()))`, log.Actor, log.Message, metaJSON, at)
	return err
}

const (
	// DefaultAuditListLimit applies when List is called without a positive limit.
	DefaultAuditListLimit = 50
	// MaxAuditListLimit caps a single List call.
	MaxAuditListLimit = 1000
)

// AuditListLimit normalises a requested page size for List.
func AuditListLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultAuditListLimit
	case limit > MaxAuditListLimit:
		return MaxAuditListLimit
	default:
		return limit
	}
}

// List returns the most recent entries, newest first.
func (l *AuditLogger) List(ctx context.Context, limit int) ([]AuditLog, error) {
	if l == nil || l.pool == nil {
		return nil, errors.New("audit logger not initialised")
	}
	rows, err := l.pool.Query(ctx, `SELECT id, actor, message, metadata, created_at
FROM transaction_logs
ORDER BY created_at DESC, id DESC
LIMIT $1`, AuditListLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []AuditLog
	for rows.Next() {
		var (
			entry AuditLog
			meta  []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Message, &meta, &entry.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("audit log %d metadata: %w", entry.ID, err)
			}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
