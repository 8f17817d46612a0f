package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/capturewatch/internal/capture"
)

type contextSummary struct {
	ID         capture.ContextID `json:"id"`
	TopURL     string            `json:"top_url"`
	FrameCount int               `json:"frame_count"`
	Affordance string            `json:"affordance" enum:"disabled,generic,translatable"`
	Selected   bool              `json:"selected"`
	OpenedAt   time.Time         `json:"opened_at"`
}

func registerContextHandlers(api huma.API, svc Service) {
	type listContextsOutput struct {
		Body struct {
			Contexts []contextSummary `json:"contexts"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-contexts", Method: http.MethodGet, Path: "/api/v1/contexts", Summary: "List tracked browser contexts", Tags: []string{"Contexts"}},
		func(ctx context.Context, input *struct{}) (*listContextsOutput, error) {
			out := &listContextsOutput{}
			out.Body.Contexts = []contextSummary{}
			for _, c := range svc.ListContexts(ctx) {
				out.Body.Contexts = append(out.Body.Contexts, contextSummary{
					ID:         c.ID,
					TopURL:     c.TopURL,
					FrameCount: c.FrameCount,
					Affordance: c.Affordance.String(),
					Selected:   c.Selected,
					OpenedAt:   c.OpenedAt,
				})
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-capture", Method: http.MethodGet, Path: "/api/v1/contexts/{context_id}/capture", Summary: "Get capture state and affordance for a context", Tags: []string{"Capture"}},
		func(ctx context.Context, input *contextIDInput) (*viewOutput, error) {
			v, err := svc.Capture(ctx, capture.ContextID(input.ContextID))
			if err != nil {
				return nil, mapErr(err)
			}
			return &viewOutput{Body: v}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-current-capture", Method: http.MethodGet, Path: "/api/v1/capture/current", Summary: "Get capture state of the selected context", Tags: []string{"Capture"}},
		func(ctx context.Context, input *struct{}) (*viewOutput, error) {
			v, err := svc.SelectedCapture(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &viewOutput{Body: v}, nil
		})

	type closeOutput struct {
		Body struct {
			ContextID string `json:"context_id"`
			Status    string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "close-context", Method: http.MethodDelete, Path: "/api/v1/contexts/{context_id}", Summary: "Close a context and drop its capture state", Tags: []string{"Contexts"}},
		func(ctx context.Context, input *contextIDInput) (*closeOutput, error) {
			if err := svc.CloseContext(ctx, capture.ContextID(input.ContextID)); err != nil {
				return nil, mapErr(err)
			}
			out := &closeOutput{}
			out.Body.ContextID = input.ContextID
			out.Body.Status = "closing"
			return out, nil
		})
}

func registerEventHandlers(api huma.API, svc Service) {
	type eventOutput struct {
		Body struct {
			ContextID string `json:"context_id"`
			Type      string `json:"type"`
			Status    string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "submit-frame-event", Method: http.MethodPost, Path: "/api/v1/contexts/{context_id}/events", Summary: "Submit a page lifecycle event from an extension", Tags: []string{"Events"}, DefaultStatus: http.StatusAccepted},
		func(ctx context.Context, input *struct {
			ContextID string `path:"context_id"`
			Body      struct {
				Type     string `json:"type" enum:"loaded,hidden,updated,selected,closed" doc:"Lifecycle event type"`
				FrameID  string `json:"frame_id,omitempty" doc:"Frame identifier; required for loaded, hidden and updated"`
				ParentID string `json:"parent_id,omitempty" doc:"Parent frame identifier; empty for the top frame"`
				Document string `json:"document,omitempty" doc:"Document identity; generated when omitted on load"`
				URL      string `json:"url,omitempty" doc:"Document URL"`
			}
		}) (*eventOutput, error) {
			ev := capture.FrameEvent{
				ContextID: capture.ContextID(input.ContextID),
				FrameID:   capture.FrameID(input.Body.FrameID),
				ParentID:  capture.FrameID(input.Body.ParentID),
				Document:  input.Body.Document,
				URL:       input.Body.URL,
			}
			if err := svc.SubmitFrameEvent(ctx, input.Body.Type, ev); err != nil {
				return nil, mapErr(err)
			}
			out := &eventOutput{}
			out.Body.ContextID = input.ContextID
			out.Body.Type = input.Body.Type
			out.Body.Status = "queued"
			return out, nil
		})
}
