package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// PermissionGuard gates routes on actor permissions.
type PermissionGuard interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
	RequireAll(perms ...string) func(http.Handler) http.Handler
}

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   PermissionGuard
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, guard PermissionGuard) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermInventoryView))
		r.Get("/stock", h.handleStock)
		r.Get("/history", h.handleHistory)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAll(shared.PermInventoryAdjust))
		r.Post("/adjustments", h.handleAdjustment)
	})
}

const maxSummaryItems = 50

// handleStock returns summaries for one or more comma separated item ids at a location.
func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	locID, err := strconv.ParseInt(q.Get("location_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, errors.New("location_id must be an integer")))
		return
	}
	ref, err := ParseLocationRef(q.Get("location_type"), locID)
	if err != nil {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
		return
	}
	itemIDs, err := parseIDList(q.Get("item_id"))
	if err != nil {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
		return
	}

	summaries := make([]StockSummary, len(itemIDs))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(4)
	for i, itemID := range itemIDs {
		g.Go(func() error {
			summary, err := h.service.StockSummary(ctx, itemID, ref)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.logger.Error("stock summary", slog.String("location", ref.String()), slog.Any("error", err))
		httpx.RespondError(w, ClassifyError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": summaries})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter := HistoryFilter{}
	var err error
	if filter.ItemID, err = httpx.QueryInt64(r, "item_id"); err != nil || filter.ItemID <= 0 {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, errors.New("item_id is required")))
		return
	}
	if filter.LocationID, err = httpx.QueryInt64(r, "location_id"); err != nil {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, errors.New("location_id must be an integer")))
		return
	}
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		if filter.From, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, errors.New("from must be YYYY-MM-DD")))
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, errors.New("to must be YYYY-MM-DD")))
			return
		}
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if limit, err := httpx.QueryInt64(r, "limit"); err == nil && limit > 0 {
		filter.Limit = int(limit)
	}
	records, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.logger.Error("stock history", slog.Int64("item_id", filter.ItemID), slog.Any("error", err))
		httpx.RespondError(w, ClassifyError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": records})
}

type adjustmentRequest struct {
	LocationID  int64  `json:"location_id"`
	ItemID      int64  `json:"item_id"`
	Change      int64  `json:"change"`
	RefKind     string `json:"reference_type"`
	RefID       int64  `json:"reference_id"`
	Description string `json:"description"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	rec, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		LocationID:  req.LocationID,
		ItemID:      req.ItemID,
		Change:      req.Change,
		RefKind:     req.RefKind,
		RefID:       req.RefID,
		Description: req.Description,
		ActorID:     actorID,
	})
	if err != nil {
		h.logger.Error("post adjustment failed", slog.Int64("item_id", req.ItemID), slog.Any("error", err))
		httpx.RespondError(w, ClassifyError(err))
		return
	}
	h.logger.Info("posted adjustment", slog.Int64("item_id", req.ItemID), slog.Int64("location_id", req.LocationID), slog.Int64("change", req.Change))
	httpx.JSON(w, http.StatusCreated, rec)
}

func parseIDList(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) > maxSummaryItems {
		return nil, errors.New("too many item ids")
	}
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.New("item_id must be a comma separated list of positive integers")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ClassifyError tags inventory errors with their HTTP kind.
func ClassifyError(err error) error {
	var verr validator.ValidationErrors
	switch {
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrInsufficientAvailableStock):
		return httpx.Wrap(httpx.ErrUnprocessable, err)
	case errors.Is(err, ErrLocationNotFound), errors.Is(err, ErrItemNotFound), errors.Is(err, ErrBranchNotFound):
		return httpx.Wrap(httpx.ErrNotFound, err)
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return httpx.Wrap(httpx.ErrConflict, err)
	case errors.As(err, &verr),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidLocation),
		errors.Is(err, ErrInvalidReference),
		errors.Is(err, ErrInvalidFilter),
		errors.Is(err, ErrSameLocation):
		return httpx.Wrap(httpx.ErrValidation, err)
	}
	return err
}
