package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/Subhashis360/API-Inspector/internal/capture"
	"github.com/Subhashis360/API-Inspector/internal/filter"
	"github.com/Subhashis360/API-Inspector/internal/harexport"
	"github.com/Subhashis360/API-Inspector/internal/notify"
	"github.com/Subhashis360/API-Inspector/internal/scope"
	"github.com/Subhashis360/API-Inspector/internal/store"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

// Capture is the session side of the service, implemented by
// *capture.Registry.
type Capture interface {
	Attach(ctx context.Context, contextID, scopeDomain string, captureAll bool) error
	AttachWindow(ctx context.Context, windowID int64, scopeDomain string, captureAll bool) (int, error)
	Detach(ctx context.Context, contextID string) error
	DetachAll(ctx context.Context) error
	Annotate(requestID, tag string) bool
	SendFrame(ctx context.Context, connectionID, payload string) error
	Recording() bool
	Window() (int64, bool)
	Sessions() []capture.SessionInfo
}

var _ Capture = (*capture.Registry)(nil)

// StartOptions selects what to capture. WindowID takes precedence over
// ContextID.
type StartOptions struct {
	ContextID   string `json:"context_id,omitempty"`
	WindowID    int64  `json:"window_id,omitempty"`
	ScopeDomain string `json:"scope_domain,omitempty"`
	CaptureAll  bool   `json:"capture_all,omitempty"`
}

// Status is the recording state reported to the dashboard.
type Status struct {
	Recording bool                  `json:"recording"`
	WindowID  int64                 `json:"window_id,omitempty"`
	Sessions  []capture.SessionInfo `json:"sessions"`
}

// Stats combines table sizes with recording state.
type Stats struct {
	store.Stats
	Recording bool `json:"recording"`
	Sessions  int  `json:"sessions"`
	Observers int  `json:"observers"`
}

// Service is the dashboard-facing surface over capture, storage and change
// notification.
type Service struct {
	capture  Capture
	store    *store.Store
	notifier *notify.Notifier
	presets  map[string]filter.Config
}

func NewService(c Capture, st *store.Store, n *notify.Notifier, presets map[string]filter.Config) *Service {
	if presets == nil {
		presets = map[string]filter.Config{}
	}
	return &Service{capture: c, store: st, notifier: n, presets: presets}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return types.NewError(types.CodeValidation, fieldName+" is required", nil)
	}
	return nil
}

// normalizeScope accepts a bare host or a URL and returns its host without
// the www. prefix.
func normalizeScope(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(raw, "://"); i >= 0 {
		raw = raw[i+3:]
	}
	if i := strings.IndexAny(raw, "/?#"); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.LastIndex(raw, ":"); i >= 0 && !strings.Contains(raw[i:], "]") {
		raw = raw[:i]
	}
	return scope.StripWWW(raw)
}

// StartCapture attaches a context, or every page of a window.
func (s *Service) StartCapture(ctx context.Context, opts StartOptions) (Status, error) {
	domain := normalizeScope(opts.ScopeDomain)
	switch {
	case opts.WindowID != 0:
		if _, err := s.capture.AttachWindow(ctx, opts.WindowID, domain, opts.CaptureAll); err != nil {
			return Status{}, err
		}
	case strings.TrimSpace(opts.ContextID) != "":
		if err := s.capture.Attach(ctx, strings.TrimSpace(opts.ContextID), domain, opts.CaptureAll); err != nil {
			return Status{}, err
		}
	default:
		return Status{}, types.NewError(types.CodeValidation, "context_id or window_id is required", nil)
	}
	return s.Status(ctx), nil
}

func (s *Service) StopCapture(ctx context.Context, contextID string) error {
	if err := s.requireNonEmpty(contextID, "context_id"); err != nil {
		return err
	}
	return s.capture.Detach(ctx, strings.TrimSpace(contextID))
}

func (s *Service) StopAll(ctx context.Context) error {
	return s.capture.DetachAll(ctx)
}

// Status reports the current recording state.
func (s *Service) Status(_ context.Context) Status {
	st := Status{
		Recording: s.capture.Recording(),
		Sessions:  s.capture.Sessions(),
	}
	if id, ok := s.capture.Window(); ok {
		st.WindowID = id
	}
	return st
}

func (s *Service) DeleteRequest(ctx context.Context, id string) error {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return err
	}
	return s.store.DeleteRequest(ctx, id)
}

func (s *Service) DeleteRequests(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return types.NewError(types.CodeValidation, "ids is required", nil)
	}
	return s.store.DeleteRequests(ctx, ids)
}

func (s *Service) DeleteConnection(ctx context.Context, id string) error {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return err
	}
	return s.store.DeleteConnection(ctx, id)
}

// DeleteGroup removes every request grouped under sourceDomain and returns
// how many were removed.
func (s *Service) DeleteGroup(ctx context.Context, sourceDomain string) (int, error) {
	domain := normalizeScope(sourceDomain)
	if domain == "" {
		return 0, types.NewError(types.CodeValidation, "source_domain is required", nil)
	}
	n, err := s.store.DeleteRequestsWhere(ctx, func(r types.Request) bool {
		return strings.EqualFold(scope.StripWWW(r.SourceDomain), domain)
	})
	if err != nil {
		return 0, err
	}
	slog.Info("Request group deleted", "source_domain", domain, "removed", n)
	return n, nil
}

// ClearAll removes every request and connection.
func (s *Service) ClearAll(ctx context.Context) error {
	return errors.Join(s.store.ClearRequests(ctx), s.store.ClearConnections(ctx))
}

// QueryRequests scans newest first and returns up to limit requests accepted
// by cfg.
func (s *Service) QueryRequests(ctx context.Context, cfg filter.Config, limit int) ([]types.Request, error) {
	m, err := filter.Compile(cfg.WithDefaults())
	if err != nil {
		return nil, err
	}
	return s.store.ScanFiltered(ctx, m, limit)
}

// QueryPreset runs a named preset. The name "saved" uses the persisted
// filter configuration.
func (s *Service) QueryPreset(ctx context.Context, name string, limit int) ([]types.Request, error) {
	if name == "saved" {
		cfg, err := s.GetFilterConfig(ctx)
		if err != nil {
			return nil, err
		}
		return s.QueryRequests(ctx, cfg, limit)
	}
	cfg, ok := s.presets[name]
	if !ok {
		return nil, types.NewError(types.CodeNotFound, fmt.Sprintf("preset %q not found", name), nil)
	}
	return s.QueryRequests(ctx, cfg, limit)
}

// Presets returns the configured preset names, sorted.
func (s *Service) Presets() []string {
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) ListConnections(ctx context.Context, limit int) ([]types.Connection, error) {
	return s.store.Connections(ctx, limit)
}

func (s *Service) GetRequest(ctx context.Context, id string) (*types.Request, error) {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return nil, err
	}
	return s.store.GetRequest(ctx, id)
}

func (s *Service) GetConnection(ctx context.Context, id string) (*types.Connection, error) {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return nil, err
	}
	return s.store.GetConnection(ctx, id)
}

func (s *Service) GetStats(ctx context.Context) Stats {
	return Stats{
		Stats:     s.store.Stats(ctx),
		Recording: s.capture.Recording(),
		Sessions:  len(s.capture.Sessions()),
		Observers: s.notifier.ObserverCount(),
	}
}

// OnChange registers an observer of committed changes. The returned func
// unregisters it.
func (s *Service) OnChange(fn notify.Observer) func() {
	return s.notifier.Subscribe(fn)
}

// SetHighlight tags a request. Requests still in flight are updated in their
// session so later events keep the tag; an empty tag clears it.
func (s *Service) SetHighlight(ctx context.Context, id, tag string) error {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return err
	}
	tag = strings.TrimSpace(tag)
	if s.capture.Annotate(id, tag) {
		return nil
	}
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	req.Highlight = tag
	s.store.PutRequest(req)
	return nil
}

func (s *Service) SendFrame(ctx context.Context, connectionID, payload string) error {
	if err := s.requireNonEmpty(connectionID, "connection_id"); err != nil {
		return err
	}
	return s.capture.SendFrame(ctx, strings.TrimSpace(connectionID), payload)
}

// GetFilterConfig returns the persisted filter configuration, or the
// built-in default when none was saved.
func (s *Service) GetFilterConfig(ctx context.Context) (filter.Config, error) {
	raw, ok, err := s.store.GetSettingRaw(ctx, store.SettingFilterConfig)
	if err != nil {
		return filter.Config{}, err
	}
	if !ok {
		return filter.Default(), nil
	}
	cfg, _, err := filter.Migrate(raw)
	return cfg, err
}

// SaveFilterConfig validates and persists cfg.
func (s *Service) SaveFilterConfig(ctx context.Context, cfg filter.Config) (filter.Config, error) {
	cfg = cfg.WithDefaults()
	cfg.Version = filter.Version
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if _, err := filter.Compile(cfg); err != nil {
		return filter.Config{}, err
	}
	if err := s.store.SetSetting(ctx, store.SettingFilterConfig, cfg); err != nil {
		return filter.Config{}, err
	}
	return cfg, nil
}

// GetUILayout returns the dashboard's saved layout, or an empty object.
func (s *Service) GetUILayout(ctx context.Context) (map[string]any, error) {
	layout := map[string]any{}
	if _, err := s.store.GetSetting(ctx, store.SettingUILayout, &layout); err != nil {
		return nil, err
	}
	return layout, nil
}

// SaveUILayout replaces the dashboard's layout. A nil layout removes it.
func (s *Service) SaveUILayout(ctx context.Context, layout map[string]any) error {
	if layout == nil {
		return s.store.RemoveSetting(ctx, store.SettingUILayout)
	}
	return s.store.SetSetting(ctx, store.SettingUILayout, layout)
}

// MigrateFilters rewrites a legacy stored filter configuration once. The
// filters_migrated flag makes later calls a no-op.
func (s *Service) MigrateFilters(ctx context.Context) error {
	var done bool
	if _, err := s.store.GetSetting(ctx, store.SettingFiltersMigrated, &done); err != nil {
		return err
	}
	if done {
		return nil
	}
	raw, ok, err := s.store.GetSettingRaw(ctx, store.SettingFilterConfig)
	if err != nil {
		return err
	}
	if ok {
		cfg, changed, err := filter.Migrate(raw)
		if err != nil {
			slog.Warn("Stored filter config unreadable, resetting", "error", err)
			cfg, changed = filter.Default(), true
		}
		if changed {
			if err := s.store.SetSetting(ctx, store.SettingFilterConfig, cfg); err != nil {
				return err
			}
			slog.Info("Filter config migrated", "version", cfg.Version)
		}
	}
	return s.store.SetSetting(ctx, store.SettingFiltersMigrated, true)
}

// ExportHAR writes the requests selected by a preset as a HAR document. An
// empty preset uses the saved filter configuration.
func (s *Service) ExportHAR(ctx context.Context, w io.Writer, preset string, limit int) (int, error) {
	if preset = strings.TrimSpace(preset); preset == "" {
		preset = "saved"
	}
	reqs, err := s.QueryPreset(ctx, preset, limit)
	if err != nil {
		return 0, err
	}
	if err := harexport.Write(w, reqs); err != nil {
		return 0, types.NewError(types.CodeStorage, "write har", err)
	}
	return len(reqs), nil
}

// Resume re-attaches what was being captured before a restart. Individual
// failures are logged and skipped; the number of attached contexts or, in
// window mode, pages is returned.
func (s *Service) Resume(ctx context.Context) (int, error) {
	var recording bool
	if _, err := s.store.GetSetting(ctx, store.SettingRecording, &recording); err != nil {
		return 0, err
	}
	if !recording {
		return 0, nil
	}

	var sessions []capture.PersistedSession
	if _, err := s.store.GetSetting(ctx, store.SettingActiveSessions, &sessions); err != nil {
		return 0, err
	}
	var windowID int64
	if _, err := s.store.GetSetting(ctx, store.SettingWindowID, &windowID); err != nil {
		return 0, err
	}
	if windowID != 0 {
		var scopeDomain string
		if _, err := s.store.GetSetting(ctx, store.SettingActiveScope, &scopeDomain); err != nil {
			return 0, err
		}
		captureAll := len(sessions) > 0 && sessions[0].CaptureAll
		n, err := s.capture.AttachWindow(ctx, windowID, scopeDomain, captureAll)
		if err != nil {
			slog.Warn("Resume window capture failed", "window_id", windowID, "error", err)
			return 0, nil
		}
		slog.Info("Capture resumed", "window_id", windowID, "attached", n)
		return n, nil
	}

	resumed := 0
	for _, ps := range sessions {
		if err := s.capture.Attach(ctx, ps.ContextID, ps.ScopeDomain, ps.CaptureAll); err != nil {
			slog.Warn("Resume capture failed", "context_id", ps.ContextID, "error", err)
			continue
		}
		resumed++
	}
	slog.Info("Capture resumed", "sessions", resumed, "persisted", len(sessions))
	return resumed, nil
}
