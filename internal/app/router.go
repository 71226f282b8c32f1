package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/observability"
	"github.com/odyssey-erp/stockflow/internal/rbac"
	"github.com/odyssey-erp/stockflow/internal/transfer"
	"github.com/odyssey-erp/stockflow/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	InventoryHandler   *inventory.Handler
	TransferHandler    *transfer.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with stockflow defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.InventoryHandler != nil {
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
	}
	if params.TransferHandler != nil {
		r.Route("/transfers", params.TransferHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/rbac", params.PermissionsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
