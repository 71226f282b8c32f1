package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks a submit action.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove marks an approve action.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a reject action.
	ApprovalReject ApprovalAction = "REJECT"
	// ApprovalCancel marks a cancellation by the requester.
	ApprovalCancel ApprovalAction = "CANCEL"
)

// ApprovalLog represents a single approval record.
type ApprovalLog struct {
	ID      int64          `json:"id"`
	Module  string         `json:"module"`
	RefID   uuid.UUID      `json:"ref_id"`
	ActorID int64          `json:"actor_id"`
	Action  ApprovalAction `json:"action"`
	Note    string         `json:"note,omitempty"`
	At      time.Time      `json:"at"`
}

// ReferenceUUID derives a stable approval reference for a numeric document id.
func ReferenceUUID(module string, id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%d", module, id)))
}

// ApprovalRecorder persists approval history.
type ApprovalRecorder struct {
	db     DBTX
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(db DBTX, logger *slog.Logger) *ApprovalRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApprovalRecorder{db: db, logger: logger}
}

// Record writes approval entry to database.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if log.Module == "" {
		return errors.New("approval module required")
	}
	if log.ActorID == 0 {
		return errors.New("approval actor required")
	}
	if log.RefID == uuid.Nil {
		return errors.New("approval ref id required")
	}
	if log.Action == "" {
		return errors.New("approval action required")
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err := r.db.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.Module, log.RefID, log.ActorID, string(log.Action), log.Note, at)
	if err != nil {
		r.logger.Error("record approval", slog.String("module", log.Module), slog.Any("error", err))
		return err
	}
	return nil
}

// List returns approvals for module/ref.
func (r *ApprovalRecorder) List(ctx context.Context, module string, ref uuid.UUID) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.db.Query(ctx, `SELECT id, module, ref_id, actor_id, action, note, at
FROM approvals WHERE module=$1 AND ref_id=$2 ORDER BY at ASC, id ASC`, module, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ApprovalLog
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.Module, &l.RefID, &l.ActorID, &action, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}
