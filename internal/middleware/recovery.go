package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"clinic-console/internal/requestid"
)

// Recovery turns a panic in a handler into a 500. A panic raised before the
// response started is reported to the client; otherwise only logged.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			reqID, _ := requestid.From(r.Context())
			slog.Error("panic recovered",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"error", fmt.Sprintf("%v", recovered),
				"stack", string(debug.Stack()),
			)
			writeFailure(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected server error")
		}()

		next.ServeHTTP(w, r)
	})
}
