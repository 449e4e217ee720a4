package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/Subhashis360/API-Inspector/internal/capture"
	"github.com/Subhashis360/API-Inspector/internal/filter"
	"github.com/Subhashis360/API-Inspector/internal/notify"
	"github.com/Subhashis360/API-Inspector/internal/store"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

type attachCall struct {
	contextID   string
	windowID    int64
	scopeDomain string
	captureAll  bool
}

type fakeCapture struct {
	attached   []attachCall
	attachErr  map[string]error
	detached   []string
	detachAll  int
	annotated  map[string]string
	inFlight   map[string]bool
	sent       []string
	sendErr    error
	window     int64
	recording  bool
	sessionLen int
}

func (f *fakeCapture) Attach(_ context.Context, contextID, scopeDomain string, captureAll bool) error {
	if err := f.attachErr[contextID]; err != nil {
		return err
	}
	f.attached = append(f.attached, attachCall{contextID: contextID, scopeDomain: scopeDomain, captureAll: captureAll})
	f.recording = true
	return nil
}

func (f *fakeCapture) AttachWindow(_ context.Context, windowID int64, scopeDomain string, captureAll bool) (int, error) {
	f.attached = append(f.attached, attachCall{windowID: windowID, scopeDomain: scopeDomain, captureAll: captureAll})
	f.window = windowID
	f.recording = true
	return 2, nil
}

func (f *fakeCapture) Detach(_ context.Context, contextID string) error {
	f.detached = append(f.detached, contextID)
	return nil
}

func (f *fakeCapture) DetachAll(context.Context) error {
	f.detachAll++
	f.recording = false
	f.window = 0
	return nil
}

func (f *fakeCapture) Annotate(requestID, tag string) bool {
	if !f.inFlight[requestID] {
		return false
	}
	if f.annotated == nil {
		f.annotated = map[string]string{}
	}
	f.annotated[requestID] = tag
	return true
}

func (f *fakeCapture) SendFrame(_ context.Context, connectionID, payload string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, connectionID+":"+payload)
	return nil
}

func (f *fakeCapture) Recording() bool { return f.recording }

func (f *fakeCapture) Window() (int64, bool) { return f.window, f.window != 0 }

func (f *fakeCapture) Sessions() []capture.SessionInfo {
	out := make([]capture.SessionInfo, f.sessionLen)
	for i := range out {
		out[i] = capture.SessionInfo{ContextID: "ctx", State: "attached"}
	}
	return out
}

func newTestService(t *testing.T, presets map[string]filter.Config) (*Service, *fakeCapture, *store.Store) {
	t.Helper()
	n := notify.New()
	st, err := store.Open(store.Options{
		Fs:          afero.NewMemMapFs(),
		Root:        "/data",
		QuietPeriod: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Notifier:    n,
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close(context.Background()) })
	fc := &fakeCapture{}
	return NewService(fc, st, n, presets), fc, st
}

func put(t *testing.T, st *store.Store, reqs ...types.Request) {
	t.Helper()
	for i := range reqs {
		st.PutRequest(&reqs[i])
	}
	require.NoError(t, st.Flush(context.Background()))
}

func apiRequest(id, url, domain string, at time.Time) types.Request {
	return types.Request{
		ID:           id,
		URL:          url,
		SourceDomain: domain,
		Method:       "GET",
		ResourceType: "Fetch",
		Category:     "api",
		Timestamp:    at,
		Status:       types.StatusCompleted,
		Response:     &types.Response{StatusCode: 200, MimeType: "application/json", Body: `{"ok":true}`},
	}
}

func codeOf(err error) string {
	var coded *types.CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

func TestRequireNonEmpty(t *testing.T) {
	s := &Service{}
	if err := s.requireNonEmpty("r1", "id"); err != nil {
		t.Fatalf("requireNonEmpty() = %v; want nil", err)
	}

	err := s.requireNonEmpty("   ", "id")
	var got *types.CodedError
	if !errors.As(err, &got) {
		t.Fatalf("requireNonEmpty() = %T; want *types.CodedError", err)
	}
	if got.Code != types.CodeValidation {
		t.Fatalf("requireNonEmpty() code = %q; want %q", got.Code, types.CodeValidation)
	}
	if got.Message != "id is required" {
		t.Fatalf("requireNonEmpty() message = %q; want %q", got.Message, "id is required")
	}
}

func TestNormalizeScope(t *testing.T) {
	cases := map[string]string{
		"example.com":                      "example.com",
		"  WWW.Example.com ":               "example.com",
		"https://www.example.com/path?q=1": "example.com",
		"http://api.example.com:8080":      "api.example.com",
		"":                                 "",
	}
	for in, want := range cases {
		if got := normalizeScope(in); got != want {
			t.Fatalf("normalizeScope(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestStartCapture(t *testing.T) {
	s, fc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := s.StartCapture(ctx, StartOptions{})
	require.Equal(t, types.CodeValidation, codeOf(err))

	st, err := s.StartCapture(ctx, StartOptions{ContextID: " tab-1 ", ScopeDomain: "https://www.shop.test/"})
	require.NoError(t, err)
	require.True(t, st.Recording)
	require.Equal(t, attachCall{contextID: "tab-1", scopeDomain: "shop.test"}, fc.attached[0])

	st, err = s.StartCapture(ctx, StartOptions{WindowID: 7, ContextID: "ignored", CaptureAll: true})
	require.NoError(t, err)
	require.Equal(t, int64(7), st.WindowID)
	require.Equal(t, attachCall{windowID: 7, captureAll: true}, fc.attached[1])

	require.Equal(t, types.CodeValidation, codeOf(s.StopCapture(ctx, "")))
	require.NoError(t, s.StopCapture(ctx, "tab-1"))
	require.Equal(t, []string{"tab-1"}, fc.detached)
	require.NoError(t, s.StopAll(ctx))
	require.False(t, s.Status(ctx).Recording)
}

func TestQueryRequestsNewestFirst(t *testing.T) {
	s, _, st := newTestService(t, map[string]filter.Config{
		"shop": {Name: "shop", InScope: []string{"*.shop.test"}},
	})
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	put(t, st,
		apiRequest("r1", "https://api.shop.test/v1/cart", "shop.test", base),
		apiRequest("r2", "https://cdn.other.test/lib", "other.test", base.Add(time.Second)),
		apiRequest("r3", "https://api.shop.test/v1/items", "shop.test", base.Add(2*time.Second)),
		apiRequest("r4", "https://api.shop.test/static/logo.png", "shop.test", base.Add(3*time.Second)),
	)

	got, err := s.QueryRequests(ctx, filter.Config{}, 0)
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	require.Equal(t, []string{"r3", "r2", "r1"}, ids)

	got, err = s.QueryPreset(ctx, "shop", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "r3", got[0].ID)

	_, err = s.QueryPreset(ctx, "missing", 0)
	require.Equal(t, types.CodeNotFound, codeOf(err))

	_, err = s.QueryRequests(ctx, filter.Config{URLRegex: "("}, 0)
	require.Equal(t, types.CodeValidation, codeOf(err))
}

func TestQueryRequestsExplicitEmptyExclusions(t *testing.T) {
	s, _, st := newTestService(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	put(t, st,
		apiRequest("r1", "https://api.shop.test/v1/cart", "shop.test", base),
		apiRequest("r2", "https://api.shop.test/static/logo.png", "shop.test", base.Add(time.Second)),
	)

	got, err := s.QueryRequests(ctx, filter.Config{ExcludedExtensions: []string{}, ExcludedPaths: []string{}}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "r2", got[0].ID)

	// Absent lists still get the built-in exclusions.
	got, err = s.QueryRequests(ctx, filter.Config{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "r1", got[0].ID)

	saved, err := s.SaveFilterConfig(ctx, filter.Config{ExcludedExtensions: []string{}, ExcludedPaths: []string{}})
	require.NoError(t, err)
	require.Empty(t, saved.ExcludedExtensions)
	cfg, err := s.GetFilterConfig(ctx)
	require.NoError(t, err)
	require.Empty(t, cfg.ExcludedExtensions)
	require.Empty(t, cfg.ExcludedPaths)
}

func TestDeleteGroupAndClear(t *testing.T) {
	s, _, st := newTestService(t, nil)
	ctx := context.Background()
	now := time.Now()
	put(t, st,
		apiRequest("a1", "https://a.test/1", "a.test", now),
		apiRequest("a2", "https://a.test/2", "www.a.test", now.Add(time.Millisecond)),
		apiRequest("b1", "https://b.test/1", "b.test", now.Add(2*time.Millisecond)),
	)

	n, err := s.DeleteGroup(ctx, "https://www.a.test")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 1, s.GetStats(ctx).Requests)

	_, err = s.GetRequest(ctx, "a1")
	require.Equal(t, types.CodeNotFound, codeOf(err))

	st.PutConnection(&types.Connection{ID: "ws1", URL: "wss://b.test/ws", CreatedAt: now})
	require.NoError(t, st.Flush(ctx))
	require.NoError(t, s.ClearAll(ctx))
	stats := s.GetStats(ctx)
	require.Equal(t, 0, stats.Requests)
	require.Equal(t, 0, stats.Connections)

	// Late writes for a cleared connection stay deleted.
	st.PutConnection(&types.Connection{ID: "ws1", URL: "wss://b.test/ws", CreatedAt: now})
	require.NoError(t, st.Flush(ctx))
	conns, err := s.ListConnections(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, conns)
}

func TestSetHighlight(t *testing.T) {
	s, fc, st := newTestService(t, nil)
	ctx := context.Background()
	put(t, st, apiRequest("done", "https://a.test/1", "a.test", time.Now()))
	fc.inFlight = map[string]bool{"live": true}

	require.NoError(t, s.SetHighlight(ctx, "live", "red"))
	require.Equal(t, "red", fc.annotated["live"])

	require.NoError(t, s.SetHighlight(ctx, "done", " yellow "))
	got, err := s.GetRequest(ctx, "done")
	require.NoError(t, err)
	require.Equal(t, "yellow", got.Highlight)

	require.Equal(t, types.CodeNotFound, codeOf(s.SetHighlight(ctx, "unknown", "red")))
}

func TestSendFrame(t *testing.T) {
	s, fc, _ := newTestService(t, nil)
	ctx := context.Background()

	require.Equal(t, types.CodeValidation, codeOf(s.SendFrame(ctx, " ", "hi")))
	require.NoError(t, s.SendFrame(ctx, "ws1", "hi"))
	require.Equal(t, []string{"ws1:hi"}, fc.sent)

	fc.sendErr = types.NewError(types.CodeNotAttached, "gone", nil)
	require.Equal(t, types.CodeNotAttached, codeOf(s.SendFrame(ctx, "ws1", "hi")))
}

func TestFilterConfigRoundTrip(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	cfg, err := s.GetFilterConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, filter.Default(), cfg)

	saved, err := s.SaveFilterConfig(ctx, filter.Config{InScope: []string{"api.test"}, Categories: []string{"api"}})
	require.NoError(t, err)
	require.Equal(t, filter.Version, saved.Version)
	require.NotEmpty(t, saved.ExcludedExtensions)

	cfg, err = s.GetFilterConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, saved, cfg)

	_, err = s.SaveFilterConfig(ctx, filter.Config{URLRegex: "["})
	require.Equal(t, types.CodeValidation, codeOf(err))
}

func TestMigrateFiltersRunsOnce(t *testing.T) {
	s, _, st := newTestService(t, nil)
	ctx := context.Background()

	legacy := json.RawMessage(`{"inScope":["shop.test"],"mimeTypes":["application/json"]}`)
	require.NoError(t, st.SetSetting(ctx, store.SettingFilterConfig, legacy))
	require.NoError(t, s.MigrateFilters(ctx))

	cfg, err := s.GetFilterConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"shop.test"}, cfg.InScope)
	require.Equal(t, filter.Version, cfg.Version)

	var done bool
	ok, err := st.GetSetting(ctx, store.SettingFiltersMigrated, &done)
	require.NoError(t, err)
	require.True(t, ok && done)

	// A second legacy write is left alone once the flag is set.
	require.NoError(t, st.SetSetting(ctx, store.SettingFilterConfig, legacy))
	require.NoError(t, s.MigrateFilters(ctx))
	raw, _, err := st.GetSettingRaw(ctx, store.SettingFilterConfig)
	require.NoError(t, err)
	require.JSONEq(t, string(legacy), string(raw))
}

func TestExportHAR(t *testing.T) {
	s, _, st := newTestService(t, nil)
	ctx := context.Background()
	put(t, st, apiRequest("r1", "https://a.test/v1?x=1", "a.test", time.Now()))

	var buf bytes.Buffer
	n, err := s.ExportHAR(ctx, &buf, "", 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var doc struct {
		Log struct {
			Entries []struct {
				Request struct {
					URL string `json:"url"`
				} `json:"request"`
			} `json:"entries"`
		} `json:"log"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Log.Entries, 1)
	require.Equal(t, "https://a.test/v1?x=1", doc.Log.Entries[0].Request.URL)
}

func TestResume(t *testing.T) {
	ctx := context.Background()

	t.Run("sessions", func(t *testing.T) {
		s, fc, st := newTestService(t, nil)
		require.NoError(t, st.SetSetting(ctx, store.SettingRecording, true))
		require.NoError(t, st.SetSetting(ctx, store.SettingWindowID, 0))
		require.NoError(t, st.SetSetting(ctx, store.SettingActiveSessions, []capture.PersistedSession{
			{ContextID: "t1", ScopeDomain: "a.test"},
			{ContextID: "t2", CaptureAll: true},
		}))
		fc.attachErr = map[string]error{"t2": types.NewError(types.CodeAttach, "gone", nil)}

		n, err := s.Resume(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		require.Equal(t, []attachCall{{contextID: "t1", scopeDomain: "a.test"}}, fc.attached)
	})

	t.Run("window", func(t *testing.T) {
		s, fc, st := newTestService(t, nil)
		require.NoError(t, st.SetSetting(ctx, store.SettingRecording, true))
		require.NoError(t, st.SetSetting(ctx, store.SettingWindowID, 42))
		require.NoError(t, st.SetSetting(ctx, store.SettingActiveScope, "a.test"))

		n, err := s.Resume(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, n)
		require.Equal(t, []attachCall{{windowID: 42, scopeDomain: "a.test"}}, fc.attached)
	})

	t.Run("not recording", func(t *testing.T) {
		s, fc, _ := newTestService(t, nil)
		n, err := s.Resume(ctx)
		require.NoError(t, err)
		require.Zero(t, n)
		require.Empty(t, fc.attached)
	})
}

func TestOnChange(t *testing.T) {
	s, _, st := newTestService(t, nil)
	got := make(chan notify.ChangeSet, 4)
	cancel := s.OnChange(func(cs notify.ChangeSet, _ bool) { got <- cs })
	defer cancel()

	put(t, st, apiRequest("r1", "https://a.test/", "a.test", time.Now()))
	select {
	case cs := <-got:
		require.Equal(t, notify.KindRequests, cs.Kind)
		require.Equal(t, []string{"r1"}, cs.IDs)
	case <-time.After(2 * time.Second):
		t.Fatalf("OnChange() observer not called")
	}
}

func TestUILayout(t *testing.T) {
	s, _, _ := newTestService(t, nil)
	ctx := context.Background()

	got, err := s.GetUILayout(ctx)
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, s.SaveUILayout(ctx, map[string]any{"theme": "dark", "columns": []any{"url", "status"}}))
	got, err = s.GetUILayout(ctx)
	require.NoError(t, err)
	require.Equal(t, "dark", got["theme"])
	require.Equal(t, []any{"url", "status"}, got["columns"])

	require.NoError(t, s.SaveUILayout(ctx, nil))
	got, err = s.GetUILayout(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}
