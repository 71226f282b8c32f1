package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueReservationSweep enqueues an on-demand reservation sweep.
func (c *Client) EnqueueReservationSweep(ctx context.Context, requestedBy int64) (*asynq.TaskInfo, error) {
	task, err := NewReservationSweepTask(time.Now().UTC(), requestedBy)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Enqueuer submits sweep tasks.
type Enqueuer interface {
	EnqueueReservationSweep(ctx context.Context, requestedBy int64) (*asynq.TaskInfo, error)
}

// QueueInspector reports queue depth.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints for job observability and triggers.
type Handler struct {
	inspector QueueInspector
	enqueuer  Enqueuer
	guard     inventory.PermissionGuard
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector QueueInspector, enqueuer Enqueuer, guard inventory.PermissionGuard, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, enqueuer: enqueuer, guard: guard, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermInventoryJobs))
		r.Post("/reservations/sweep", h.sweep)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"queue": QueueDefault, "pending": 0})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "queue unreachable")
		return
	}
	pending := 0
	queueName := QueueDefault
	if info != nil {
		pending = info.Pending
		queueName = info.Queue
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queue": queueName, "pending": pending})
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "job queue not configured")
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	info, err := h.enqueuer.EnqueueReservationSweep(r.Context(), actorID)
	if err != nil {
		h.logger.Error("enqueue reservation sweep", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "could not enqueue job")
		return
	}
	h.logger.Info("reservation sweep enqueued", slog.String("task_id", info.ID), slog.Int64("actor_id", actorID))
	httpx.JSON(w, http.StatusAccepted, map[string]any{"task_id": info.ID, "queue": info.Queue})
}
