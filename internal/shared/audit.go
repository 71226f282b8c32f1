package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
	At       time.Time      `json:"at"`
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	db DBTX
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(db DBTX) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err = l.db.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES (NULLIF($1, 0), $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}
