package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Subhashis360/API-Inspector/internal/filter"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

type requestListOutput struct {
	Body struct {
		Count    int             `json:"count"`
		Requests []types.Request `json:"requests"`
	}
}

func requestList(reqs []types.Request) *requestListOutput {
	out := &requestListOutput{}
	out.Body.Count = len(reqs)
	out.Body.Requests = reqs
	return out
}

// filterBody is filter.Config with every field optional.
type filterBody struct {
	Name               string   `json:"name,omitempty"`
	InScope            []string `json:"in_scope,omitempty" doc:"Host names or globs such as *.example.com"`
	Categories         []string `json:"categories,omitempty" doc:"Static categories to show: js, css, image, font, media"`
	CustomMime         string   `json:"custom_mime,omitempty"`
	ExcludedExtensions []string `json:"excluded_extensions,omitempty" doc:"Omit for the built-in set; an empty list excludes nothing"`
	ExcludedPaths      []string `json:"excluded_paths,omitempty" doc:"Omit for the built-in set; an empty list excludes nothing"`
	URLRegex           string   `json:"url_regex,omitempty"`
}

func (b filterBody) config() filter.Config {
	return filter.Config{
		Name:               b.Name,
		Version:            filter.Version,
		InScope:            b.InScope,
		Categories:         b.Categories,
		CustomMime:         b.CustomMime,
		ExcludedExtensions: b.ExcludedExtensions,
		ExcludedPaths:      b.ExcludedPaths,
		URLRegex:           b.URLRegex,
	}
}

func registerRequestHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "list-requests", Method: http.MethodGet, Path: "/api/v1/requests", Summary: "List requests through the saved filter or a preset", Tags: []string{"Requests"}},
		func(ctx context.Context, input *struct {
			limitInput
			Preset string `query:"preset" default:"saved" doc:"Preset name; \"saved\" uses the persisted filter configuration."`
		}) (*requestListOutput, error) {
			reqs, err := svc.QueryPreset(ctx, strings.TrimSpace(input.Preset), input.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			return requestList(reqs), nil
		})

	huma.Register(api, huma.Operation{OperationID: "query-requests", Method: http.MethodPost, Path: "/api/v1/requests/query", Summary: "Query requests with an ad-hoc filter", Tags: []string{"Requests"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Filter filterBody `json:"filter"`
				Limit  int        `json:"limit,omitempty"`
			}
		}) (*requestListOutput, error) {
			reqs, err := svc.QueryRequests(ctx, input.Body.Filter.config(), input.Body.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			return requestList(reqs), nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-requests", Method: http.MethodPost, Path: "/api/v1/requests/delete", Summary: "Delete requests by id", Tags: []string{"Requests"}},
		func(ctx context.Context, input *struct {
			Body struct {
				IDs []string `json:"ids" minItems:"1"`
			}
		}) (*statusOutput, error) {
			if err := svc.DeleteRequests(ctx, input.Body.IDs); err != nil {
				return nil, mapErr(err)
			}
			return status("", "deleted"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "clear-all", Method: http.MethodDelete, Path: "/api/v1/requests", Summary: "Delete every request and connection", Tags: []string{"Requests"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			if err := svc.ClearAll(ctx); err != nil {
				return nil, mapErr(err)
			}
			return status("", "cleared"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-request", Method: http.MethodGet, Path: "/api/v1/requests/{id}", Summary: "Get one request", Tags: []string{"Requests"}},
		func(ctx context.Context, input *idInput) (*struct{ Body *types.Request }, error) {
			req, err := svc.GetRequest(ctx, input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &struct{ Body *types.Request }{Body: req}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-request", Method: http.MethodDelete, Path: "/api/v1/requests/{id}", Summary: "Delete one request", Tags: []string{"Requests"}},
		func(ctx context.Context, input *idInput) (*statusOutput, error) {
			if err := svc.DeleteRequest(ctx, input.ID); err != nil {
				return nil, mapErr(err)
			}
			return status(input.ID, "deleted"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-highlight", Method: http.MethodPut, Path: "/api/v1/requests/{id}/highlight", Summary: "Tag a request; an empty tag clears it", Tags: []string{"Requests"}},
		func(ctx context.Context, input *struct {
			ID   string `path:"id"`
			Body struct {
				Tag string `json:"tag"`
			}
		}) (*statusOutput, error) {
			if err := svc.SetHighlight(ctx, input.ID, input.Body.Tag); err != nil {
				return nil, mapErr(err)
			}
			return status(input.ID, "highlighted"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-group", Method: http.MethodDelete, Path: "/api/v1/groups/{domain}", Summary: "Delete every request grouped under a source domain", Tags: []string{"Requests"}},
		func(ctx context.Context, input *struct {
			Domain string `path:"domain"`
		}) (*struct {
			Body struct {
				Domain  string `json:"domain"`
				Removed int    `json:"removed"`
			}
		}, error) {
			n, err := svc.DeleteGroup(ctx, input.Domain)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &struct {
				Body struct {
					Domain  string `json:"domain"`
					Removed int    `json:"removed"`
				}
			}{}
			out.Body.Domain = input.Domain
			out.Body.Removed = n
			return out, nil
		})

	type harOutput struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}
	huma.Register(api, huma.Operation{OperationID: "export-har", Method: http.MethodGet, Path: "/api/v1/export/har", Summary: "Export requests as HAR 1.2", Tags: []string{"Export"}},
		func(ctx context.Context, input *struct {
			limitInput
			Preset string `query:"preset" doc:"Preset name; empty uses the saved filter configuration."`
		}) (*harOutput, error) {
			var buf bytes.Buffer
			if _, err := svc.ExportHAR(ctx, &buf, input.Preset, input.Limit); err != nil {
				return nil, mapErr(err)
			}
			return &harOutput{
				ContentType:        "application/json",
				ContentDisposition: `attachment; filename="apiinspector.har"`,
				Body:               buf.Bytes(),
			}, nil
		})
}
