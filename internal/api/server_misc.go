package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/capturewatch/internal/status"
	"github.com/dgnsrekt/capturewatch/internal/translators"
)

func registerMiscHandlers(api huma.API, svc Service, broker *status.Broker) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
			status.Health
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/api/v1/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			out.Body.Health = svc.Health(ctx)
			if broker != nil {
				out.Body.Subscribers = broker.ClientCount()
			}
			return out, nil
		})

	type translatorsOutput struct {
		Body struct {
			Translators []translators.Definition `json:"translators"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-translators", Method: http.MethodGet, Path: "/api/v1/translators", Summary: "List catalog translators", Tags: []string{"Translators"}},
		func(ctx context.Context, input *struct{}) (*translatorsOutput, error) {
			out := &translatorsOutput{}
			out.Body.Translators = svc.ListTranslators(ctx)
			return out, nil
		})
}
