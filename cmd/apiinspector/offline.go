package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Subhashis360/API-Inspector/internal/capture"
	"github.com/Subhashis360/API-Inspector/internal/controller"
	"github.com/Subhashis360/API-Inspector/internal/notify"
	"github.com/Subhashis360/API-Inspector/internal/store"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

// detached stands in for the capture registry when a command works on the
// data directory without a browser.
type detached struct{}

var _ controller.Capture = detached{}

func errDetached() error {
	return types.NewError(types.CodeNotAttached, "capture needs a running server", nil)
}

func (detached) Attach(context.Context, string, string, bool) error { return errDetached() }
func (detached) AttachWindow(context.Context, int64, string, bool) (int, error) {
	return 0, errDetached()
}
func (detached) Detach(context.Context, string) error { return nil }
func (detached) DetachAll(context.Context) error { return nil }
func (detached) Annotate(string, string) bool { return false }
func (detached) SendFrame(context.Context, string, string) error { return errDetached() }
func (detached) Recording() bool { return false }
func (detached) Window() (int64, bool) { return 0, false }
func (detached) Sessions() []capture.SessionInfo { return nil }

// offline is a service over the data directory. With announce set, local
// changes are published to the configured peers so a running server
// refreshes its dashboard.
type offline struct {
	svc   *controller.Service
	store *store.Store
	bus   *notify.WSBus
}

func openOffline(ctx context.Context, gs *globalState, announce bool) (*offline, error) {
	cfg := gs.cfg
	notifier := notify.New()
	var bus *notify.WSBus
	if announce && len(cfg.Peers) > 0 {
		bus = notify.NewWSBus(notifier.Receive)
		notifier.SetBus(bus)
		dialPeers(ctx, bus, cfg.Peers, "")
	}

	st, err := store.Open(store.Options{
		Fs:          afero.NewOsFs(),
		Root:        cfg.DataDir,
		Compress:    cfg.Compress,
		QuietPeriod: cfg.QuietPeriod,
		MaxWait:     cfg.MaxWait,
		Notifier:    notifier,
	})
	if err != nil {
		if bus != nil {
			_ = bus.Close()
		}
		return nil, fmt.Errorf("open store %s: %w", cfg.DataDir, err)
	}
	return &offline{
		svc:   controller.NewService(detached{}, st, notifier, loadPresets(cfg.PresetsFile)),
		store: st,
		bus:   bus,
	}, nil
}

// Close flushes pending writes before the bus goes away, so their change
// sets are still published.
func (o *offline) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := o.store.Close(ctx); err != nil {
		slog.Error("Store close failed", "error", err)
	}
	if o.bus != nil {
		// Give peers a moment to read the last change sets.
		time.Sleep(100 * time.Millisecond)
		if err := o.bus.Close(); err != nil {
			slog.Debug("Change bus close failed", "error", err)
		}
	}
}

func yamlPrint(w io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not marshal YAML: %w", err)
	}
	_, err = fmt.Fprint(w, string(data))
	return err
}
