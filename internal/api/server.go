package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Subhashis360/API-Inspector/internal/controller"
	"github.com/Subhashis360/API-Inspector/internal/filter"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

type Service interface {
	StartCapture(ctx context.Context, opts controller.StartOptions) (controller.Status, error)
	StopCapture(ctx context.Context, contextID string) error
	StopAll(ctx context.Context) error
	Status(ctx context.Context) controller.Status
	Resume(ctx context.Context) (int, error)
	DeleteRequest(ctx context.Context, id string) error
	DeleteRequests(ctx context.Context, ids []string) error
	DeleteConnection(ctx context.Context, id string) error
	DeleteGroup(ctx context.Context, sourceDomain string) (int, error)
	ClearAll(ctx context.Context) error
	QueryRequests(ctx context.Context, cfg filter.Config, limit int) ([]types.Request, error)
	QueryPreset(ctx context.Context, name string, limit int) ([]types.Request, error)
	Presets() []string
	ListConnections(ctx context.Context, limit int) ([]types.Connection, error)
	GetRequest(ctx context.Context, id string) (*types.Request, error)
	GetConnection(ctx context.Context, id string) (*types.Connection, error)
	GetStats(ctx context.Context) controller.Stats
	SetHighlight(ctx context.Context, id, tag string) error
	SendFrame(ctx context.Context, connectionID, payload string) error
	GetFilterConfig(ctx context.Context) (filter.Config, error)
	SaveFilterConfig(ctx context.Context, cfg filter.Config) (filter.Config, error)
	GetUILayout(ctx context.Context) (map[string]any, error)
	SaveUILayout(ctx context.Context, layout map[string]any) error
	ExportHAR(ctx context.Context, w io.Writer, preset string, limit int) (int, error)
}

var _ Service = (*controller.Service)(nil)

// Streams are the long-lived endpoints mounted next to the JSON API. Nil
// handlers are not mounted.
type Streams struct {
	// Changes streams change sets as server-sent events.
	Changes http.Handler
	// Peer accepts sibling processes on the change bus.
	Peer http.Handler
}

type idInput struct {
	ID string `path:"id"`
}

type limitInput struct {
	Limit int `query:"limit" default:"500" minimum:"0" doc:"Maximum records returned, newest first. 0 means the scan limit."`
}

type statusOutput struct {
	Body struct {
		ID     string `json:"id,omitempty"`
		Status string `json:"status"`
	}
}

func status(id, s string) *statusOutput {
	out := &statusOutput{}
	out.Body.ID = id
	out.Body.Status = s
	return out
}

func NewServer(svc Service, streams Streams) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("API Inspector", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if streams.Changes != nil {
		router.Get("/api/v1/changes", streams.Changes.ServeHTTP)
	}
	if streams.Peer != nil {
		router.Get("/api/v1/peer", streams.Peer.ServeHTTP)
	}

	registerCaptureHandlers(api, svc)
	registerRequestHandlers(api, svc)
	registerConnectionHandlers(api, svc)
	registerMiscHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *types.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case types.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case types.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case types.CodeNotAttached:
			return huma.Error409Conflict(coded.Message)
		case types.CodeAttach, types.CodeSendFrame:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
