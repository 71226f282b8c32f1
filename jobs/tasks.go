package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReservationSweep deletes stock reservations past their expiry.
	TaskReservationSweep = "inventory:reservation_sweep"
)

// ReservationSweepPayload carries scheduling metadata.
type ReservationSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	RequestedBy  int64     `json:"requested_by,omitempty"`
}

// NewReservationSweepTask constructs an Asynq task for the reservation sweep.
func NewReservationSweepTask(at time.Time, requestedBy int64) (*asynq.Task, error) {
	body, err := json.Marshal(ReservationSweepPayload{ScheduledFor: at, RequestedBy: requestedBy})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReservationSweep, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}
