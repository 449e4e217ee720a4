//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var env *Env

// Env holds shared state for all integration tests.
type Env struct {
	BaseURL   string
	Client    *http.Client
	ContextID string // browsing context to capture; capture tests skip when empty
}

// ping checks that the inspector answers /health.
func (e *Env) ping() error {
	resp, err := e.Client.Get(e.BaseURL + "/health")
	if err != nil {
		return fmt.Errorf("server not reachable at %s: %w", e.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health: status %d", resp.StatusCode)
	}
	return nil
}

func TestMain(m *testing.M) {
	baseURL := os.Getenv("INSPECTOR_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8188"
	}

	env = &Env{
		BaseURL:   baseURL,
		Client:    &http.Client{Timeout: 30 * time.Second},
		ContextID: os.Getenv("INSPECTOR_TEST_CONTEXT"),
	}

	if err := env.ping(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "integration: using inspector at %s\n", env.BaseURL)

	os.Exit(m.Run())
}

// --- HTTP helpers ---

func (e *Env) GET(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.Client.Get(e.BaseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (e *Env) PUT(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPut, path, body)
}

func (e *Env) POST(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return e.do(t, http.MethodPost, path, body)
}

func (e *Env) DELETE(t *testing.T, path string) *http.Response {
	t.Helper()
	return e.do(t, http.MethodDelete, path, nil)
}

func (e *Env) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("%s %s: marshal body: %v", method, path, err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.BaseURL+path, r)
	if err != nil {
		t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func requireField[T comparable](t *testing.T, got, want T, name string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

// requireContext skips the test unless a browsing context to capture was
// provided.
func requireContext(t *testing.T) string {
	t.Helper()
	if env.ContextID == "" {
		t.Skip("INSPECTOR_TEST_CONTEXT not set")
	}
	return env.ContextID
}
