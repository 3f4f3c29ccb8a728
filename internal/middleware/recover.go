package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/pawpantry/pawpantry-go/internal/apperr"
	"github.com/pawpantry/pawpantry-go/internal/model"
)

// Recoverer turns a panic in a downstream handler into the generic 500 JSON
// body. In development mode the panic value and stack are added as detail.
func Recoverer(devMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := debug.Stack()
				slog.ErrorContext(r.Context(), "panic recovered",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(stack),
				)

				body := model.ErrorResponse{
					Error: "internal server error",
					Code:  apperr.KindInternal.Code(),
				}
				if devMode {
					body.Detail = fmt.Sprintf("%v\n%s", rec, stack)
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(body)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
