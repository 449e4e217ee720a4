//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestListRequests(t *testing.T) {
	resp := env.GET(t, "/api/v1/requests?limit=20")
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[[]map[string]any](t, resp)
	if len(result) > 20 {
		t.Fatalf("len(requests) = %d, want <= 20", len(result))
	}
}

func TestUnknownPreset(t *testing.T) {
	resp := env.GET(t, "/api/v1/requests?preset=does-not-exist")
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestQueryRequests(t *testing.T) {
	resp := env.POST(t, "/api/v1/requests/query", map[string]any{
		"filter": map[string]any{"in_scope": []string{"*.integration.test"}},
		"limit":  10,
	})
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[[]struct {
		SourceDomain string `json:"source_domain"`
	}](t, resp)
	t.Logf("query matched %d requests", len(result))
}

func TestMissingRequest(t *testing.T) {
	resp := env.GET(t, "/api/v1/requests/does-not-exist")
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestExportHAR(t *testing.T) {
	resp := env.GET(t, "/api/v1/export/har")
	requireStatus(t, resp, http.StatusOK)
	doc := decodeJSON[struct {
		Log struct {
			Version string           `json:"version"`
			Entries []map[string]any `json:"entries"`
		} `json:"log"`
	}](t, resp)
	requireField(t, doc.Log.Version, "1.2", "log.version")
}
