package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Subhashis360/API-Inspector/internal/types"
)

func registerConnectionHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "list-connections", Method: http.MethodGet, Path: "/api/v1/connections", Summary: "List WebSocket connections, newest first", Tags: []string{"Connections"}},
		func(ctx context.Context, input *limitInput) (*struct {
			Body struct {
				Count       int                `json:"count"`
				Connections []types.Connection `json:"connections"`
			}
		}, error) {
			conns, err := svc.ListConnections(ctx, input.Limit)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &struct {
				Body struct {
					Count       int                `json:"count"`
					Connections []types.Connection `json:"connections"`
				}
			}{}
			out.Body.Count = len(conns)
			out.Body.Connections = conns
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-connection", Method: http.MethodGet, Path: "/api/v1/connections/{id}", Summary: "Get one connection with its frames", Tags: []string{"Connections"}},
		func(ctx context.Context, input *idInput) (*struct{ Body *types.Connection }, error) {
			conn, err := svc.GetConnection(ctx, input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &struct{ Body *types.Connection }{Body: conn}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-connection", Method: http.MethodDelete, Path: "/api/v1/connections/{id}", Summary: "Delete a connection; later events for it are ignored", Tags: []string{"Connections"}},
		func(ctx context.Context, input *idInput) (*statusOutput, error) {
			if err := svc.DeleteConnection(ctx, input.ID); err != nil {
				return nil, mapErr(err)
			}
			return status(input.ID, "deleted"), nil
		})

	huma.Register(api, huma.Operation{OperationID: "send-frame", Method: http.MethodPost, Path: "/api/v1/connections/{id}/send", Summary: "Send a text frame on a live connection", Tags: []string{"Connections"}},
		func(ctx context.Context, input *struct {
			ID   string `path:"id"`
			Body struct {
				Payload string `json:"payload" minLength:"1"`
			}
		}) (*statusOutput, error) {
			if err := svc.SendFrame(ctx, input.ID, input.Body.Payload); err != nil {
				return nil, mapErr(err)
			}
			return status(input.ID, "sent"), nil
		})
}
