package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/capturewatch/internal/capture"
	"github.com/dgnsrekt/capturewatch/internal/status"
	"github.com/dgnsrekt/capturewatch/internal/translators"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	ListContexts(ctx context.Context) []capture.ContextSummary
	Capture(ctx context.Context, id capture.ContextID) (status.View, error)
	SelectedCapture(ctx context.Context) (status.View, error)
	ListTranslators(ctx context.Context) []translators.Definition
	SubmitFrameEvent(ctx context.Context, kind string, ev capture.FrameEvent) error
	CloseContext(ctx context.Context, id capture.ContextID) error
	Health(ctx context.Context) status.Health
}

type contextIDInput struct {
	ContextID string `path:"context_id" doc:"Browser context (tab) identifier"`
}

type viewOutput struct {
	Body status.View
}

// NewServer builds the HTTP API. broker may be nil, in which case the
// status stream routes are not mounted.
func NewServer(svc Service, broker *status.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("capturewatch API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(statusDocsHTML)); err != nil {
			slog.Debug("status docs response write failed", "error", err)
		}
	})

	if broker != nil {
		router.Get("/api/v1/status/stream", status.SSEHandler(broker))
		router.Get("/api/v1/status/ws", status.WebSocketHandler(broker))
	}

	registerContextHandlers(api, svc)
	registerEventHandlers(api, svc)
	registerMiscHandlers(api, svc, broker)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *capture.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case capture.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case capture.CodeNoActiveContext:
			return huma.Error404NotFound(coded.Message)
		case capture.CodeStaleFrame:
			return huma.Error409Conflict(coded.Message)
		case capture.CodeEngineFailure, capture.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
