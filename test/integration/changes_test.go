//go:build integration

package integration

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestChangesFeedReportsSettings(t *testing.T) {
	resp := env.GET(t, "/api/v1/filters")
	requireStatus(t, resp, http.StatusOK)
	original := decodeJSON[filterConfig](t, resp)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.BaseURL+"/api/v1/changes?feeds=changes", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	stream, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/v1/changes: %v", err)
	}
	defer stream.Body.Close()
	requireStatus(t, stream, http.StatusOK)

	lines := bufio.NewScanner(stream.Body)
	if !lines.Scan() || lines.Text() != ": ready" {
		t.Fatalf("first line = %q, want %q", lines.Text(), ": ready")
	}

	resp = env.PUT(t, "/api/v1/filters", original)
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	for lines.Scan() {
		line := lines.Text()
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"settings"`) {
			return
		}
	}
	t.Fatalf("no settings change observed: %v", lines.Err())
}
