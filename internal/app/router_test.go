package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/observability"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

func TestActorMiddleware(t *testing.T) {
	echo := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := shared.ActorFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(strconv.FormatInt(id, 10)))
	}))

	cases := []struct {
		name   string
		header string
		code   int
		body   string
	}{
		{"anonymous", "", http.StatusNoContent, ""},
		{"actor", "17", http.StatusOK, "17"},
		{"padded", " 5 ", http.StatusOK, "5"},
		{"not a number", "abc", http.StatusBadRequest, ""},
		{"zero", "0", http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(ActorHeader, tc.header)
			}
			rr := httptest.NewRecorder()
			echo.ServeHTTP(rr, req)
			require.Equal(t, tc.code, rr.Code)
			if tc.body != "" {
				require.Equal(t, tc.body, rr.Body.String())
			}
		})
	}
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  &Config{AppEnv: "development", RateLimitPerMinute: 100},
		Metrics: observability.NewMetrics(),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "odyssey_http_requests_total")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/transfers", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
