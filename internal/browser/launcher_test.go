package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"Browser":"Chrome/126.0","Protocol-Version":"1.3","webSocketDebuggerUrl":"ws://127.0.0.1/devtools/browser/x"}`))
	}))
	defer srv.Close()

	v, err := Probe(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	require.Equal(t, "Chrome/126.0", v.Browser)
	require.Equal(t, "1.3", v.Protocol)
	require.Equal(t, "ws://127.0.0.1/devtools/browser/x", v.WebSocketURL)
}

func TestProbeRejectsInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := Probe(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	require.Error(t, err)
}

func TestWaitReadyTimesOut(t *testing.T) {
	start := time.Now()
	_, err := WaitReady(context.Background(), "127.0.0.1:1", 300*time.Millisecond)
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestArgs(t *testing.T) {
	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: 9333, ProfileDir: "/tmp/p", Headless: true})
	args := l.args()
	require.Contains(t, args, "--remote-debugging-port=9333")
	require.Contains(t, args, "--user-data-dir=/tmp/p")
	require.Contains(t, args, "--headless=new")
	require.Equal(t, "about:blank", args[len(args)-1])
	require.False(t, l.Running())
}
