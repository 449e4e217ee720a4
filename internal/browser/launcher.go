// Package browser starts a Chromium instance with remote debugging enabled
// and probes its DevTools endpoint.
package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
)

// ReadyTimeout bounds how long Launch waits for the DevTools endpoint.
var ReadyTimeout = 15 * time.Second

// Config holds browser launch configuration.
type Config struct {
	CDPAddress string
	CDPPort    int
	StartURL   string
	ProfileDir string
	// Binary overrides browser detection.
	Binary     string
	WindowSize string
	Headless   bool
}

// Version is the subset of /json/version the inspector logs.
type Version struct {
	Browser      string
	Protocol     string
	UserAgent    string
	WebSocketURL string
}

// Launcher manages the lifecycle of a browser process.
type Launcher struct {
	cfg     Config
	cmd     *exec.Cmd
	running bool
}

// NewLauncher creates a new browser launcher with the given config.
func NewLauncher(cfg Config) *Launcher {
	if cfg.WindowSize == "" {
		cfg.WindowSize = "1440,900"
	}
	if cfg.StartURL == "" {
		cfg.StartURL = "about:blank"
	}
	return &Launcher{cfg: cfg}
}

// detectBrowser finds an available Chrome/Chromium binary.
func detectBrowser(override string) (string, error) {
	if override != "" {
		return exec.LookPath(override)
	}
	candidates := []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried %v)", candidates)
}

func (l *Launcher) hostPort() string {
	return net.JoinHostPort(l.cfg.CDPAddress, strconv.Itoa(l.cfg.CDPPort))
}

// args builds the command line. Background throttling is disabled so
// captured tabs keep producing events while hidden.
func (l *Launcher) args() []string {
	args := []string{
		"--remote-debugging-port=" + strconv.Itoa(l.cfg.CDPPort),
		"--remote-debugging-address=" + l.cfg.CDPAddress,
		"--user-data-dir=" + l.cfg.ProfileDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
		"--disable-breakpad",
		"--disable-background-timer-throttling",
		"--disable-backgrounding-occluded-windows",
		"--disable-renderer-backgrounding",
		"--window-size=" + l.cfg.WindowSize,
	}
	if l.cfg.Headless {
		args = append(args, "--headless=new")
	}
	return append(args, l.cfg.StartURL)
}

// Launch starts the browser process unless a DevTools endpoint already
// answers on the configured port.
func (l *Launcher) Launch(ctx context.Context) error {
	if v, err := Probe(ctx, l.hostPort()); err == nil {
		slog.Info("Browser already running, skipping launch", "addr", l.hostPort(), "browser", v.Browser)
		return nil
	}

	browserPath, err := detectBrowser(l.cfg.Binary)
	if err != nil {
		return err
	}
	slog.Info("Detected browser", "path", browserPath)

	if err := os.MkdirAll(l.cfg.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	l.cmd = exec.Command(browserPath, l.args()...)
	l.cmd.Stdout = io.Discard
	l.cmd.Stderr = os.Stderr

	if err := l.cmd.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	l.running = true
	slog.Info("Browser process started", "pid", l.cmd.Process.Pid)

	v, err := WaitReady(ctx, l.hostPort(), ReadyTimeout)
	if err != nil {
		l.Stop()
		return fmt.Errorf("waiting for CDP: %w", err)
	}
	slog.Info("CDP endpoint ready", "addr", l.hostPort(), "browser", v.Browser, "protocol", v.Protocol)
	return nil
}

// Probe reads the DevTools /json/version document once.
func Probe(ctx context.Context, hostPort string) (Version, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+hostPort+"/json/version", nil)
	if err != nil {
		return Version{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Version{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Version{}, fmt.Errorf("/json/version returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return Version{}, err
	}
	if !gjson.ValidBytes(body) {
		return Version{}, fmt.Errorf("/json/version returned invalid JSON")
	}
	doc := gjson.ParseBytes(body)
	return Version{
		Browser:      doc.Get("Browser").String(),
		Protocol:     doc.Get("Protocol-Version").String(),
		UserAgent:    doc.Get("User-Agent").String(),
		WebSocketURL: doc.Get("webSocketDebuggerUrl").String(),
	}, nil
}

// WaitReady polls Probe until the endpoint answers or timeout elapses.
func WaitReady(ctx context.Context, hostPort string, timeout time.Duration) (Version, error) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		if v, err := Probe(ctx, hostPort); err == nil {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return Version{}, ctx.Err()
		case <-deadline:
			return Version{}, fmt.Errorf("CDP did not become ready within %s at %s", timeout, hostPort)
		case <-ticker.C:
		}
	}
}

// Running reports whether this launcher spawned a browser process.
func (l *Launcher) Running() bool {
	return l.running
}

// Stop terminates the browser process with SIGTERM, falling back to SIGKILL.
func (l *Launcher) Stop() {
	if l.cmd == nil || l.cmd.Process == nil || !l.running {
		return
	}
	slog.Info("Stopping browser", "pid", l.cmd.Process.Pid)
	_ = l.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = l.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Browser stopped gracefully")
	case <-time.After(5 * time.Second):
		slog.Warn("Browser did not exit, sending SIGKILL")
		_ = l.cmd.Process.Kill()
		<-done
	}
	l.running = false
}
