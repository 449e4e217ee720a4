package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Subhashis360/API-Inspector/internal/controller"
)

func registerCaptureHandlers(api huma.API, svc Service) {
	type captureStatusOutput struct {
		Body controller.Status
	}

	huma.Register(api, huma.Operation{OperationID: "start-capture", Method: http.MethodPost, Path: "/api/v1/capture/start", Summary: "Attach a context or a whole window", Tags: []string{"Capture"}},
		func(ctx context.Context, input *struct {
			Body controller.StartOptions
		}) (*captureStatusOutput, error) {
			st, err := svc.StartCapture(ctx, input.Body)
			if err != nil {
				return nil, mapErr(err)
			}
			return &captureStatusOutput{Body: st}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "stop-capture", Method: http.MethodPost, Path: "/api/v1/capture/stop", Summary: "Detach one context", Tags: []string{"Capture"}},
		func(ctx context.Context, input *struct {
			Body struct {
				ContextID string `json:"context_id" required:"true"`
			}
		}) (*statusOutput, error) {
			if err := svc.StopCapture(ctx, input.Body.ContextID); err != nil {
				return nil, mapErr(err)
			}
			return status(input.Body.ContextID, "detached"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "stop-all-capture", Method: http.MethodPost, Path: "/api/v1/capture/stop-all", Summary: "Detach every context and leave window mode", Tags: []string{"Capture"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			if err := svc.StopAll(ctx); err != nil {
				return nil, mapErr(err)
			}
			return status("", "stopped"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "capture-status", Method: http.MethodGet, Path: "/api/v1/capture/status", Summary: "Recording state and attached sessions", Tags: []string{"Capture"}},
		func(ctx context.Context, input *struct{}) (*captureStatusOutput, error) {
			return &captureStatusOutput{Body: svc.Status(ctx)}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "resume-capture", Method: http.MethodPost, Path: "/api/v1/capture/resume", Summary: "Re-attach what was recorded before a restart", Tags: []string{"Capture"}},
		func(ctx context.Context, input *struct{}) (*struct {
			Body struct {
				Resumed int `json:"resumed"`
			}
		}, error) {
			n, err := svc.Resume(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &struct {
				Body struct {
					Resumed int `json:"resumed"`
				}
			}{}
			out.Body.Resumed = n
			return out, nil
		})
}
