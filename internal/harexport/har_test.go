package harexport

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Subhashis360/API-Inspector/internal/types"
)

func TestBuild(t *testing.T) {
	body := `{"sku":"a1"}`
	reqs := []types.Request{
		{
			ID:             "r1",
			URL:            "https://api.shop.test/cart?id=7&q=a%20b",
			Method:         "POST",
			Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Status:         types.StatusCompleted,
			RequestHeaders: []types.Header{{Name: "Content-Type", Value: "application/json"}},
			RequestBody:    &body,
			DurationMS:     42,
			Highlight:      "red",
			Response: &types.Response{
				StatusCode: 201,
				Headers:    []types.Header{{Name: "content-type", Value: "application/json; charset=utf-8"}},
				Body:       `{"ok":true}`,
			},
		},
		{ID: "r2", URL: "https://api.shop.test/x", Method: "GET", Status: types.StatusFailed, Error: "net::ERR_FAILED"},
	}

	h := Build(reqs)
	require.Equal(t, "1.2", h.Log.Version)
	require.Len(t, h.Log.Entries, 2)

	e := h.Log.Entries[0]
	if e.StartedDateTime != "2026-01-02T03:04:05Z" {
		t.Fatalf("StartedDateTime = %q; want RFC 3339", e.StartedDateTime)
	}
	require.Equal(t, float64(42), e.Time)
	require.Equal(t, "red", e.Comment)
	require.Equal(t, body, e.Request.PostData.Text)
	require.Equal(t, "application/json", e.Request.PostData.MimeType)
	require.Len(t, e.Request.QueryString, 2)
	require.Equal(t, "a b", e.Request.QueryString[1].Value)
	require.Equal(t, int64(201), e.Response.Status)
	require.Equal(t, "Created", e.Response.StatusText)
	require.Equal(t, "application/json", e.Response.Content.MimeType)

	failed := h.Log.Entries[1]
	require.Equal(t, int64(0), failed.Response.Status)
	require.Equal(t, "net::ERR_FAILED", failed.Comment)
}

func TestWriteProducesJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	log, ok := doc["log"].(map[string]any)
	if !ok {
		t.Fatalf("log = %T; want object", doc["log"])
	}
	require.Equal(t, []any{}, log["entries"])
}
