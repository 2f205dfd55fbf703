// Package rbac gates customer-only routes on the session's bound customer.
package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Keda87/simple-banking-api/internal/platform/httpx"
	"github.com/Keda87/simple-banking-api/internal/shared"
)

// ActorResolver maps a session user id onto the acting customer.
type ActorResolver interface {
	Actor(ctx context.Context, customerID int64) (shared.Actor, error)
}

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Resolver ActorResolver
	Logger   *slog.Logger
}

// RequireCustomer only lets requests through whose session belongs to a live
// customer, and exposes that customer as the request actor.
func (m Middleware) RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := m.currentUserID(r)
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		actor, err := m.Resolver.Actor(r.Context(), customerID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if m.Logger != nil {
				m.Logger.Error("rbac resolve customer", slog.Int64("customer_id", customerID), slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		if m.Logger != nil {
			m.Logger.Error("rbac parse user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}
