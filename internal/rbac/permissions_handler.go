package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// PermissionsHandler exposes permission listing and the caller's grants.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.me)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryView))
		r.Get("/permissions", h.listPermissions)
	})
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	grants, err := h.service.Grants(r.Context(), actorID)
	if err != nil {
		h.logger.Error("load grants", slog.Int64("actor_id", actorID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}
