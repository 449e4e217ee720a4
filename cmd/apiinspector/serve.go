package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Subhashis360/API-Inspector/internal/api"
	"github.com/Subhashis360/API-Inspector/internal/archive"
	"github.com/Subhashis360/API-Inspector/internal/browser"
	"github.com/Subhashis360/API-Inspector/internal/capture"
	"github.com/Subhashis360/API-Inspector/internal/cdp"
	"github.com/Subhashis360/API-Inspector/internal/config"
	"github.com/Subhashis360/API-Inspector/internal/controller"
	"github.com/Subhashis360/API-Inspector/internal/filter"
	"github.com/Subhashis360/API-Inspector/internal/netutil"
	"github.com/Subhashis360/API-Inspector/internal/notify"
	"github.com/Subhashis360/API-Inspector/internal/relay"
	"github.com/Subhashis360/API-Inspector/internal/store"
)

const shutdownTimeout = 10 * time.Second

type serveCmd struct {
	gs            *globalState
	noResume      bool
	launchBrowser bool
	headless      bool
}

func getCmdServe(gs *globalState) *cobra.Command {
	c := &serveCmd{gs: gs}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture engine and dashboard API",
		Long: `Connect to the browser's DevTools endpoint, re-attach the sessions that
were being captured before the last shutdown and serve the dashboard API.`,
		Args: cobra.NoArgs,
		RunE: c.run,
	}
	flags := cmd.Flags()
	flags.BoolVar(&c.noResume, "no-resume", false, "do not re-attach previously captured sessions")
	flags.BoolVar(&c.launchBrowser, "launch-browser", false, "start a Chromium instance (overrides INSPECTOR_LAUNCH_BROWSER)")
	flags.BoolVar(&c.headless, "headless", false, "run the launched browser headless (overrides CHROMIUM_HEADLESS)")
	return cmd
}

func (c *serveCmd) run(cmd *cobra.Command, _ []string) error {
	cfg := c.gs.cfg
	if cmd.Flags().Changed("launch-browser") {
		cfg.LaunchBrowser = c.launchBrowser
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless = c.headless
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("apiinspector config loaded",
		"version", version,
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"data_dir", cfg.DataDir,
		"compress", cfg.Compress,
		"journal", cfg.JournalEnabled,
		"peers", cfg.Peers,
		"log_level", cfg.LogLevel,
	)

	launcher, err := c.startBrowser(ctx)
	if err != nil {
		return err
	}
	if launcher != nil {
		defer launcher.Stop()
	}

	notifier := notify.New()
	bus := notify.NewWSBus(notifier.Receive)
	notifier.SetBus(bus)
	defer func() {
		if err := bus.Close(); err != nil {
			slog.Debug("Change bus close failed", "error", err)
		}
	}()

	broker := relay.NewBroker()
	hooks := store.Hooks{relay.NewFrameRelay(loadRelayConfig(cfg.RelayFile), broker)}
	if cfg.JournalEnabled {
		journal := archive.New(cfg.JournalDir, cfg.BufferSize, cfg.JournalMaxSizeMB)
		defer func() {
			if err := journal.Close(); err != nil {
				slog.Warn("Journal close failed", "error", err)
			}
		}()
		hooks = append(hooks, journal)
	}

	st, err := store.Open(store.Options{
		Fs:          afero.NewOsFs(),
		Root:        cfg.DataDir,
		Compress:    cfg.Compress,
		QuietPeriod: cfg.QuietPeriod,
		MaxWait:     cfg.MaxWait,
		Notifier:    notifier,
		Hook:        hooks,
	})
	if err != nil {
		return fmt.Errorf("open store %s: %w", cfg.DataDir, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			slog.Error("Store close failed", "error", err)
		}
	}()

	client := cdp.NewClient(cfg.CDPURL(), cdp.NewTabRegistry())
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect CDP %s: %w", cfg.CDPURL(), err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()

	reg := capture.NewRegistry(client, st, capture.Options{
		EvictAfter:    cfg.EvictAfter,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		MaxFrameBytes: cfg.MaxFrameBytes,
		QueueSize:     cfg.BufferSize,
	})
	defer reg.Close()
	client.SetSink(reg.Deliver)

	svc := controller.NewService(reg, st, notifier, loadPresets(cfg.PresetsFile))
	defer svc.OnChange(broker.Observe)()

	if err := svc.MigrateFilters(ctx); err != nil {
		slog.Warn("Filter migration failed", "error", err)
	}
	if !c.noResume {
		if _, err := svc.Resume(ctx); err != nil {
			slog.Warn("Resume failed", "error", err)
		}
	}

	ln, err := netutil.Listen(cfg.BindAddr, cfg.FallbackAddrs, cfg.AutoFallback)
	if err != nil {
		return err
	}
	addr := ln.Addr().String()

	srv := &http.Server{
		Handler: api.NewServer(svc, api.Streams{
			Changes: relay.SSEHandler(broker),
			Peer:    bus.Handler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	dialPeers(ctx, bus, cfg.Peers, addr)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("apiinspector listening", "addr", addr, "docs", "http://"+addr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("apiinspector shutdown failed", "error", err)
	}
	return nil
}

// startBrowser launches a browser when configured to, otherwise waits for an
// externally started one.
func (c *serveCmd) startBrowser(ctx context.Context) (*browser.Launcher, error) {
	cfg := c.gs.cfg
	if !cfg.LaunchBrowser {
		hostPort := net.JoinHostPort(cfg.CDPAddress, strconv.Itoa(cfg.CDPPort))
		v, err := browser.WaitReady(ctx, hostPort, browser.ReadyTimeout)
		if err != nil {
			return nil, fmt.Errorf("browser not reachable: %w", err)
		}
		slog.Info("CDP endpoint ready", "addr", hostPort, "browser", v.Browser, "protocol", v.Protocol)
		return nil, nil
	}

	l := browser.NewLauncher(browser.Config{
		CDPAddress: cfg.CDPAddress,
		CDPPort:    cfg.CDPPort,
		StartURL:   cfg.StartURL,
		ProfileDir: cfg.ProfileDir,
		Binary:     cfg.BrowserBinary,
		Headless:   cfg.Headless,
	})
	if err := l.Launch(ctx); err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return l, nil
}

// dialPeers connects the change bus to every configured sibling except this
// process. Unreachable peers are logged; they can still dial in later.
func dialPeers(ctx context.Context, bus *notify.WSBus, peers []string, self string) {
	for _, p := range peers {
		if netutil.SameAddr(p, self) {
			continue
		}
		url, err := netutil.PeerURL(p)
		if err != nil {
			slog.Warn("Invalid peer address", "peer", p, "error", err)
			continue
		}
		dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := bus.Dial(dialCtx, url); err != nil {
			slog.Warn("Peer unreachable", "peer", url, "error", err)
		}
		cancel()
	}
}

func loadRelayConfig(path string) *relay.Config {
	if path == "" {
		return nil
	}
	cfg, err := relay.LoadConfig(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Relay config ignored", "path", path, "error", err)
		}
		return nil
	}
	return cfg
}

func loadPresets(path string) map[string]filter.Config {
	if path == "" {
		return nil
	}
	presets, err := config.LoadPresets(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Filter presets ignored", "path", path, "error", err)
		}
		return nil
	}
	slog.Info("Filter presets loaded", "path", path, "count", len(presets))
	return presets
}
