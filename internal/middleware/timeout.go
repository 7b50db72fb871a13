package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"clinic-console/internal/model"
)

// Timeout bounds a request, including the clinic API call it may make, since
// the handler context carries the deadline. Not for /ws.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	message, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    "REQUEST_TIMEOUT",
			Message: "request timed out",
			Details: timeout.String(),
		},
	})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(message))
	}
}
