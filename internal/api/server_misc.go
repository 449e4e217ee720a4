package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Subhashis360/API-Inspector/internal/controller"
	"github.com/Subhashis360/API-Inspector/internal/filter"
)

func registerMiscHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-stats", Method: http.MethodGet, Path: "/api/v1/stats", Summary: "Record counts and recording state", Tags: []string{"Stats"}},
		func(ctx context.Context, input *struct{}) (*struct{ Body controller.Stats }, error) {
			return &struct{ Body controller.Stats }{Body: svc.GetStats(ctx)}, nil
		})

	type filterOutput struct {
		Body filter.Config
	}
	huma.Register(api, huma.Operation{OperationID: "get-filters", Method: http.MethodGet, Path: "/api/v1/filters", Summary: "Get the saved filter configuration", Tags: []string{"Filters"}},
		func(ctx context.Context, input *struct{}) (*filterOutput, error) {
			cfg, err := svc.GetFilterConfig(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &filterOutput{Body: cfg}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "save-filters", Method: http.MethodPut, Path: "/api/v1/filters", Summary: "Replace the saved filter configuration", Tags: []string{"Filters"}},
		func(ctx context.Context, input *struct {
			Body filterBody
		}) (*filterOutput, error) {
			cfg, err := svc.SaveFilterConfig(ctx, input.Body.config())
			if err != nil {
				return nil, mapErr(err)
			}
			return &filterOutput{Body: cfg}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "list-presets", Method: http.MethodGet, Path: "/api/v1/filters/presets", Summary: "List configured filter presets", Tags: []string{"Filters"}},
		func(ctx context.Context, input *struct{}) (*struct {
			Body struct {
				Presets []string `json:"presets"`
			}
		}, error) {
			out := &struct {
				Body struct {
					Presets []string `json:"presets"`
				}
			}{}
			out.Body.Presets = svc.Presets()
			return out, nil
		})

	type layoutOutput struct {
		Body map[string]any
	}
	huma.Register(api, huma.Operation{OperationID: "get-ui-layout", Method: http.MethodGet, Path: "/api/v1/settings/ui-layout", Summary: "Get the dashboard layout", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*layoutOutput, error) {
			layout, err := svc.GetUILayout(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &layoutOutput{Body: layout}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "save-ui-layout", Method: http.MethodPut, Path: "/api/v1/settings/ui-layout", Summary: "Replace the dashboard layout", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct {
			Body map[string]any
		}) (*layoutOutput, error) {
			if err := svc.SaveUILayout(ctx, input.Body); err != nil {
				return nil, mapErr(err)
			}
			return &layoutOutput{Body: input.Body}, nil
		})
}
