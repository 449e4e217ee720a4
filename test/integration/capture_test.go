//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"
)

type captureStatus struct {
	Recording bool `json:"recording"`
	Sessions  []struct {
		ContextID string `json:"context_id"`
	} `json:"sessions"`
}

func TestStartRequiresTarget(t *testing.T) {
	resp := env.POST(t, "/api/v1/capture/start", map[string]any{})
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestCaptureLifecycle(t *testing.T) {
	contextID := requireContext(t)

	resp := env.POST(t, "/api/v1/capture/start", map[string]any{
		"context_id":  contextID,
		"capture_all": true,
	})
	requireStatus(t, resp, http.StatusOK)
	started := decodeJSON[captureStatus](t, resp)
	requireField(t, started.Recording, true, "recording")
	t.Cleanup(func() {
		resp := env.POST(t, "/api/v1/capture/stop-all", nil)
		resp.Body.Close()
	})

	time.Sleep(500 * time.Millisecond)

	resp = env.GET(t, "/api/v1/capture/status")
	requireStatus(t, resp, http.StatusOK)
	st := decodeJSON[captureStatus](t, resp)
	found := false
	for _, s := range st.Sessions {
		if s.ContextID == contextID {
			found = true
		}
	}
	if !found {
		t.Fatalf("session %s not listed in status", contextID)
	}

	resp = env.POST(t, "/api/v1/capture/stop", map[string]any{"context_id": contextID})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestSendFrameUnknownConnection(t *testing.T) {
	resp := env.POST(t, "/api/v1/connections/does-not-exist/send", map[string]any{"payload": "ping"})
	if resp.StatusCode != http.StatusConflict && resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 409 or 404", resp.StatusCode)
	}
	resp.Body.Close()
}
