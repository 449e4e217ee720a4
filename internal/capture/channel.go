package capture

import (
	"context"

	"github.com/Subhashis360/API-Inspector/internal/types"
)

// DefaultBufferSize is the body buffer ceiling requested when enabling
// network observation.
const DefaultBufferSize = 100 * 1024 * 1024

// NetworkOptions configures network observation on an attached context.
type NetworkOptions struct {
	MaxTotalBufferSize    int64
	MaxResourceBufferSize int64
	DisableCache          bool
}

// DefaultNetworkOptions returns generous buffers with the cache bypassed so
// every response produces a body.
func DefaultNetworkOptions() NetworkOptions {
	return NetworkOptions{
		MaxTotalBufferSize:    DefaultBufferSize,
		MaxResourceBufferSize: DefaultBufferSize,
		DisableCache:          true,
	}
}

// Body is a response body as returned by the channel.
type Body struct {
	Data          string
	Base64Encoded bool
}

// Channel is the debugging connection to the browser. Implementations push
// events to Registry.Deliver.
type Channel interface {
	// Describe reports the context's current location without attaching.
	Describe(ctx context.Context, contextID string) (types.ContextInfo, error)
	Attach(ctx context.Context, contextID string) error
	Detach(ctx context.Context, contextID string) error
	EnableNetwork(ctx context.Context, contextID string, opts NetworkOptions) error
	FetchBody(ctx context.Context, contextID, requestID string) (Body, error)
	SendFrame(ctx context.Context, contextID, connectionID, payload string) error
	// ListContexts returns the page contexts of a window; windowID 0 means
	// every window.
	ListContexts(ctx context.Context, windowID int64) ([]types.ContextInfo, error)
}

// Store receives captured records and recording state.
type Store interface {
	PutRequest(r *types.Request)
	// AmendRequest writes r only if the request is still stored.
	AmendRequest(r *types.Request) bool
	PutConnection(c *types.Connection)
	Tombstoned(id string) bool
	SetSetting(ctx context.Context, key string, v any) error
}
