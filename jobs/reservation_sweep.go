package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stockflow/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Sweeper removes expired reservations.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// ReservationSweepJob deletes expired reservations. Availability already
// ignores them; the sweep only keeps the table small.
type ReservationSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReservationSweepJob wires dependencies for the sweep handler.
func NewReservationSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReservationSweepJob {
	return &ReservationSweepJob{
		Sweeper: sweeper,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes reservation sweep tasks.
func (j *ReservationSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("reservation sweep: handler not configured")
	}
	var payload ReservationSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskReservationSweep)
	logger := j.logger().With(slog.Int64("requested_by", payload.RequestedBy))
	started := j.now()
	count, err := j.Sweeper.SweepExpired(ctx)
	if err != nil {
		logger.Error("reservation sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddSwept(count)
	logger.Info("reservation sweep finished", slog.Int64("count", count), slog.Duration("took", j.now().Sub(started)))
	return tracker.End(nil)
}

func (j *ReservationSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReservationSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ReservationSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
