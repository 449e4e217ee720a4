package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/Subhashis360/API-Inspector/internal/notify"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

// Settings keys.
const (
	SettingRecording       = "recording"
	SettingActiveScope     = "active_scope"
	SettingActiveSessions  = "active_sessions"
	SettingWindowID        = "window_id"
	SettingFilterConfig    = "filter_config"
	SettingUILayout        = "ui_layout"
	SettingFiltersMigrated = "filters_migrated"
)

type settingsTable struct {
	fs  afero.Fs
	dir string
	mu  sync.RWMutex
}

func openSettings(fs afero.Fs, dir string) (*settingsTable, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	return &settingsTable{fs: fs, dir: dir}, nil
}

func (t *settingsTable) path(key string) string {
	return filepath.Join(t.dir, url.PathEscape(key)+plainExt)
}

// GetSettingRaw returns the stored JSON for key.
func (s *Store) GetSettingRaw(_ context.Context, key string) ([]byte, bool, error) {
	t := s.settings
	t.mu.RLock()
	defer t.mu.RUnlock()

	data, err := afero.ReadFile(t.fs, t.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, types.NewError(types.CodeStorage, "read setting "+key, err)
	}
	return data, true, nil
}

// GetSetting decodes the setting into out and reports whether it existed.
func (s *Store) GetSetting(ctx context.Context, key string, out any) (bool, error) {
	data, ok, err := s.GetSettingRaw(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, types.NewError(types.CodeStorage, "decode setting "+key, err)
	}
	return true, nil
}

// SetSetting writes a setting immediately.
func (s *Store) SetSetting(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return types.NewError(types.CodeValidation, "encode setting "+key, err)
	}

	t := s.settings
	t.mu.Lock()
	err = afero.WriteFile(t.fs, t.path(key), data, 0o644)
	t.mu.Unlock()
	if err != nil {
		return types.NewError(types.CodeStorage, "write setting "+key, err)
	}
	s.notify(notify.ChangeSet{Kind: notify.KindSettings, Op: notify.OpPut, IDs: []string{key}})
	return nil
}

// RemoveSetting deletes a setting. Missing keys are not an error.
func (s *Store) RemoveSetting(_ context.Context, key string) error {
	t := s.settings
	t.mu.Lock()
	err := t.fs.Remove(t.path(key))
	t.mu.Unlock()
	if err != nil && !os.IsNotExist(err) {
		return types.NewError(types.CodeStorage, "remove setting "+key, err)
	}
	s.notify(notify.ChangeSet{Kind: notify.KindSettings, Op: notify.OpDelete, IDs: []string{key}})
	return nil
}
