package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/menezmethod/cartografia/internal/apierror"
)

// Recover turns a handler panic into a NoApplicableCode service exception.
// The panic value and stack go to the log, never to the client.
func Recover(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.ErrorContext(r.Context(), "panic recovered",
					"err", fmt.Sprint(v),
					"stack", string(debug.Stack()),
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				)
				apierror.Write(w, apierror.Internal("Internal server error."))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
