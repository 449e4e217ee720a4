//go:build integration

package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestHealth(t *testing.T) {
	resp := env.GET(t, "/health")
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[struct {
		Status string `json:"status"`
	}](t, resp)
	requireField(t, result.Status, "ok", "status")
}

func TestStats(t *testing.T) {
	resp := env.GET(t, "/api/v1/stats")
	requireStatus(t, resp, http.StatusOK)
	result := decodeJSON[struct {
		Requests    *int `json:"request_count"`
		Connections *int `json:"connection_count"`
	}](t, resp)
	if result.Requests == nil || result.Connections == nil {
		t.Fatal("expected request_count and connection_count")
	}
	t.Logf("stats: requests=%d connections=%d", *result.Requests, *result.Connections)
}

func TestDocs(t *testing.T) {
	resp := env.GET(t, "/docs")
	requireStatus(t, resp, http.StatusOK)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "API Inspector") {
		t.Fatal("docs page missing title")
	}
}
