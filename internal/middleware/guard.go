package middleware

import (
	"context"
	"net/http"

	"clinic-console/internal/access"
	"clinic-console/internal/model"
)

type authorizer interface {
	Authorize(route access.Route) access.Decision
}

type contextKey string

const decisionContextKey contextKey = "access_decision"

// Guard puts a route behind the access gate. Only a granted decision reaches
// next; the others become a placeholder, a redirect or a refusal.
func Guard(gate authorizer, route access.Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := gate.Authorize(route)

			switch decision.State {
			case access.StateGranted:
				ctx := context.WithValue(r.Context(), decisionContextKey, decision)
				next.ServeHTTP(w, r.WithContext(ctx))
			case access.StateLoading:
				w.Header().Set("Retry-After", "1")
				writeDecision(w, http.StatusServiceUnavailable, decision, &model.APIError{
					Code:    "SESSION_LOADING",
					Message: "session is being restored",
				})
			case access.StateDenied, access.StatePasswordChangeRequired:
				w.Header().Set("Location", string(decision.Redirect))
				writeDecision(w, http.StatusSeeOther, decision, nil)
			default:
				writeDecision(w, http.StatusForbidden, decision, &model.APIError{
					Code:    "FORBIDDEN",
					Message: "route is not available to this identity",
				})
			}
		})
	}
}

func DecisionFromContext(ctx context.Context) (access.Decision, bool) {
	decision, ok := ctx.Value(decisionContextKey).(access.Decision)
	return decision, ok
}

func writeDecision(w http.ResponseWriter, status int, decision access.Decision, apiErr *model.APIError) {
	writeJSON(w, status, model.APIResponse{
		Success: apiErr == nil,
		Data:    decision,
		Error:   apiErr,
	})
}
