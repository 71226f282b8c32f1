package transfer

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Handler exposes transfer endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   inventory.PermissionGuard
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, guard inventory.PermissionGuard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermInventoryView, shared.PermInventoryTransfer))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Get("/{id}/approvals", h.approvals)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermInventoryTransfer, shared.PermInventoryTransferAll))
		r.Post("/", h.create)
		r.Post("/{id}/{action}", h.advance)
	})
}

type locationPayload struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

func (p locationPayload) ref() (inventory.LocationRef, error) {
	return inventory.ParseLocationRef(p.Type, p.ID)
}

type createRequest struct {
	Source      locationPayload `json:"source"`
	Destination locationPayload `json:"destination"`
	Lines       []LineInput     `json:"lines"`
	Note        string          `json:"note"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
		return
	}
	src, err := req.Source.ref()
	if err != nil {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
		return
	}
	dst, err := req.Destination.ref()
	if err != nil {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	t, err := h.service.Create(r.Context(), CreateInput{
		Source:      src,
		Destination: dst,
		Lines:       req.Lines,
		ActorID:     actorID,
		Note:        req.Note,
	})
	if err != nil {
		httpx.RespondError(w, ClassifyError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request) {
	id, ok := transferID(w, r)
	if !ok {
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	t, err := h.service.Advance(r.Context(), id, Action(chi.URLParam(r, "action")), actorID)
	if err != nil {
		httpx.RespondError(w, ClassifyError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := transferID(w, r)
	if !ok {
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.logger.Error("load transfer", slog.Int64("transfer_id", id), slog.Any("error", err))
		}
		httpx.RespondError(w, ClassifyError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transfer":        t,
		"allowed_actions": AllowedActions(t.Status),
	})
}

func (h *Handler) approvals(w http.ResponseWriter, r *http.Request) {
	id, ok := transferID(w, r)
	if !ok {
		return
	}
	logs, err := h.service.Approvals(r.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.logger.Error("list transfer approvals", slog.Int64("transfer_id", id), slog.Any("error", err))
		}
		httpx.RespondError(w, ClassifyError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"approvals": logs})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	for _, side := range []struct {
		prefix string
		dst    **inventory.LocationRef
	}{{"source", &filter.Source}, {"destination", &filter.Destination}} {
		kind := q.Get(side.prefix + "_type")
		if kind == "" {
			continue
		}
		id, err := strconv.ParseInt(q.Get(side.prefix+"_id"), 10, 64)
		if err != nil {
			httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, errors.New(side.prefix+"_id must be an integer")))
			return
		}
		ref, err := inventory.ParseLocationRef(kind, id)
		if err != nil {
			httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
			return
		}
		*side.dst = &ref
	}
	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list transfers", slog.Any("error", err))
		httpx.RespondError(w, ClassifyError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func transferID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, errors.New("invalid transfer id")))
		return 0, false
	}
	return id, true
}

// ClassifyError tags transfer errors with their HTTP kind.
func ClassifyError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return httpx.Wrap(httpx.ErrNotFound, err)
	case errors.Is(err, ErrInvalidRequest):
		return httpx.Wrap(httpx.ErrValidation, err)
	case errors.Is(err, ErrUnauthorized):
		return httpx.Wrap(httpx.ErrForbidden, err)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, shared.ErrLockNotObtained):
		return httpx.Wrap(httpx.ErrConflict, err)
	}
	return inventory.ClassifyError(err)
}
