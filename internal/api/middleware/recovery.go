package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/PxPatel/p2p-swap/internal/api/logger"
	"github.com/PxPatel/p2p-swap/internal/api/models"
)

// Recovery middleware recovers from panics and returns a 500 error
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}

				logger.Error("Panic recovered", map[string]interface{}{
					"request_id": RequestIDFromContext(r.Context()),
					"error":      fmt.Sprintf("%v", err),
					"method":     r.Method,
					"path":       r.URL.Path,
					"stacktrace": string(debug.Stack()),
				})

				models.ErrInternal().Write(w)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
