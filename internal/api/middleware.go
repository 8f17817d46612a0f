package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// requestLogger logs one line per API call, keyed by route pattern and
// context ID. Stream connections are logged when they end; docs and health
// polling stay at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		var contextID string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
			contextID = rctx.URLParam("context_id")
		}

		attrs := []any{
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if contextID != "" {
			attrs = append(attrs, "context_id", contextID)
		}

		switch {
		case ww.Status() >= http.StatusInternalServerError:
			slog.Warn("api request failed", attrs...)
		case quietRoute(route):
			slog.Debug("api request", attrs...)
		default:
			slog.Info("api request", attrs...)
		}
	})
}

func quietRoute(route string) bool {
	return strings.HasPrefix(route, "/docs") || route == "/openapi.json" || route == "/api/v1/health"
}
