package rbac_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/rbac"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

func TestMiddleware(t *testing.T) {
	mw := rbac.Middleware{Service: seedService(t), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name    string
		handler http.Handler
		actor   int64
		want    int
	}{
		{"any granted", mw.RequireAny(shared.PermInventoryAdjust, shared.PermInventoryView)(ok), 3, http.StatusNoContent},
		{"any denied", mw.RequireAny(shared.PermInventoryAdjust)(ok), 3, http.StatusForbidden},
		{"all granted", mw.RequireAll(shared.PermInventoryView, shared.PermInventoryTransferAll)(ok), 9, http.StatusNoContent},
		{"all partially granted", mw.RequireAll(shared.PermInventoryView, shared.PermInventoryTransferAll)(ok), 3, http.StatusForbidden},
		{"no actor", mw.RequireAny(shared.PermInventoryView)(ok), 0, http.StatusUnauthorized},
		{"no requirement", mw.RequireAll()(ok), 0, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.actor > 0 {
				req = req.WithContext(shared.ContextWithActor(req.Context(), tc.actor))
			}
			rr := httptest.NewRecorder()
			tc.handler.ServeHTTP(rr, req)
			require.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestPermissionsHandlerMe(t *testing.T) {
	svc := seedService(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := rbac.NewPermissionsHandler(logger, svc, rbac.Middleware{Service: svc, Logger: logger})

	router := chi.NewRouter()
	h.MountRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), 3))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"branches":[1]`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
