package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current actor has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require("rbac require any", normalizePermissions(perms), hasAnyPermission)
}

// RequireAll ensures the current actor has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require("rbac require all", normalizePermissions(perms), hasAllPermissions)
}

func (m Middleware) require(op string, required []string, check func(granted, required []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actorID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
				return
			}
			granted, err := m.Service.EffectivePermissions(r.Context(), actorID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error(op, slog.Int64("actor_id", actorID), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if check(granted, required) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission "+strings.Join(required, ", "))
		})
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
