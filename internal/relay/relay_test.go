package relay

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Subhashis360/API-Inspector/internal/notify"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

func TestExtractMessageType(t *testing.T) {
	cases := []struct {
		payload string
		field   string
		want    string
	}{
		{`{"type":"ping","id":1}`, "", "ping"},
		{`{"m":"qsd","p":[]}`, "m", "qsd"},
		{`{"m":"qsd","p":[]}`, "type", ""},
		{` {"event":{"name":"join"}}`, "event.name", "join"},
		{`{"op":2}`, "op", "2"},
		{`{"type":{"nested":true}}`, "type", ""},
		{`42["du",{"m":"du"}]`, "m", ""},
		{`{"type":"x"`, "type", ""},
		{`not json`, "type", ""},
	}
	for _, tc := range cases {
		if got := extractMessageType(tc.payload, tc.field); got != tc.want {
			t.Fatalf("extractMessageType(%q, %q) = %q; want %q", tc.payload, tc.field, got, tc.want)
		}
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
feeds:
  - name: quotes
    url_pattern: /socket
    message_types: [qsd]
    direction: received
`))
	require.NoError(t, err)
	require.Len(t, cfg.Feeds, 1)
	require.Equal(t, "received", cfg.Feeds[0].Direction)
	require.Equal(t, DefaultTypeField, cfg.Feeds[0].TypeField)

	cfg, err = ParseConfig([]byte("feeds:\n  - name: a\n    url_pattern: x\n    type_field: event.kind\n"))
	require.NoError(t, err)
	require.Equal(t, "event.kind", cfg.Feeds[0].TypeField)

	_, err = ParseConfig([]byte("feeds:\n  - name: changes\n    url_pattern: x\n"))
	require.Error(t, err)
	_, err = ParseConfig([]byte("feeds:\n  - name: a\n"))
	require.Error(t, err)
}

func TestFrameRelayPublishesNewFrames(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	r := NewFrameRelay(&Config{Feeds: []FeedConfig{{
		Name:         "quotes",
		URLPattern:   "/socket",
		MessageTypes: []string{"qsd"},
		TypeField:    "m",
		Direction:    "received",
	}}}, b)

	conn := types.Connection{ID: "ws1", URL: "wss://chat.test/socket", Status: types.ConnOpen}
	conn.Frames = []types.Frame{
		{Direction: types.FrameReceived, Payload: `{"m":"qsd","n":1}`},
		{Direction: types.FrameSent, Payload: `{"m":"qsd","n":2}`},
	}
	r.ConnectionsCommitted([]types.Connection{conn})

	conn.Frames = append(conn.Frames,
		types.Frame{Direction: types.FrameReceived, Payload: `{"m":"other"}`},
		types.Frame{Direction: types.FrameReceived, Payload: `{"m":"qsd","n":3}`},
	)
	conn.Status = types.ConnClosed
	r.ConnectionsCommitted([]types.Connection{conn, {ID: "ws2", URL: "wss://elsewhere.test/"}})

	var got []string
	for len(ch) > 0 {
		evt := <-ch
		require.Equal(t, "quotes", evt.Feed)
		got = append(got, evt.Payload)
	}
	require.Equal(t, []string{`{"m":"qsd","n":1}`, `{"m":"qsd","n":3}`}, got)
	require.Equal(t, 0, r.Tracked())
}

func TestSSEHandlerStreamsChanges(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(SSEHandler(b))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?feeds=changes", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	b.Publish(Event{Feed: "quotes", Payload: "skipped"})
	b.Observe(notify.ChangeSet{Kind: notify.KindRequests, Op: notify.OpPut, IDs: []string{"r1"}}, false)

	rd := bufio.NewReader(resp.Body)
	var lines []string
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "data: ") {
			lines = append(lines, line)
			break
		}
		if strings.HasPrefix(line, "event: ") {
			lines = append(lines, line)
		}
	}
	require.Equal(t, []string{
		"event: changes",
		`data: {"kind":"requests","op":"put","ids":["r1"],"remote":false}`,
	}, lines)
}
