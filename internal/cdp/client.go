package cdp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	cdpproto "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/Subhashis360/API-Inspector/internal/capture"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

const bodyTimeout = 10 * time.Second

var errNotConnected = errors.New("cdp: not connected")

// Client is the capture channel to a Chromium instance reached over the
// DevTools protocol. Events from attached pages are pushed to the sink.
type Client struct {
	cdpURL string
	tabs   *TabRegistry

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	sinkMu sync.RWMutex
	sink   func(capture.Event)

	bg sync.WaitGroup
}

var _ capture.Channel = (*Client)(nil)

func NewClient(cdpURL string, tabs *TabRegistry) *Client {
	if tabs == nil {
		tabs = NewTabRegistry()
	}
	return &Client{cdpURL: cdpURL, tabs: tabs}
}

// SetSink sets the function receiving translated events, usually
// capture.Registry.Deliver.
func (c *Client) SetSink(fn func(capture.Event)) {
	c.sinkMu.Lock()
	c.sink = fn
	c.sinkMu.Unlock()
}

func (c *Client) deliver(ev capture.Event) {
	c.sinkMu.RLock()
	fn := c.sink
	c.sinkMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// Connect opens the browser-level connection and starts target discovery.
func (c *Client) Connect(ctx context.Context) error {
	slog.Info("Connecting to Chromium", "url", c.cdpURL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), c.cdpURL)
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)
	chromedp.ListenBrowser(c.browserCtx, c.onBrowserEvent)

	targets, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		c.browserCancel()
		c.allocCancel()
		c.browserCtx = nil
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	exec, err := c.browserExec(ctx)
	if err != nil {
		return err
	}
	if err := target.SetDiscoverTargets(true).Do(exec); err != nil {
		return fmt.Errorf("failed to enable target discovery: %w", err)
	}

	slog.Info("Found browser targets", "count", len(targets))
	return nil
}

// Close drops every tab and the browser connection. The browser keeps
// running.
func (c *Client) Close() error {
	for _, t := range c.tabs.drain() {
		if t.stopListen != nil {
			t.stopListen()
		}
	}
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	c.bg.Wait()
	slog.Info("CDP client closed")
	return nil
}

func (c *Client) browserExec(ctx context.Context) (context.Context, error) {
	if c.browserCtx == nil {
		return nil, errNotConnected
	}
	cc := chromedp.FromContext(c.browserCtx)
	if cc == nil || cc.Browser == nil {
		return nil, errNotConnected
	}
	return cdpproto.WithExecutor(ctx, cc.Browser), nil
}

func (c *Client) tabExec(ctx context.Context, contextID string) (context.Context, *tab, error) {
	t, ok := c.tabs.get(target.ID(contextID))
	if !ok {
		return nil, nil, fmt.Errorf("cdp: context %s is not attached", contextID)
	}
	cc := chromedp.FromContext(t.ctx)
	if cc == nil || cc.Target == nil {
		return nil, nil, fmt.Errorf("cdp: context %s has no session", contextID)
	}
	return cdpproto.WithExecutor(ctx, cc.Target), t, nil
}

func (c *Client) targets(ctx context.Context) ([]*target.Info, error) {
	exec, err := c.browserExec(ctx)
	if err != nil {
		return nil, err
	}
	return target.GetTargets().Do(exec)
}

func (c *Client) windowOf(ctx context.Context, id target.ID) int64 {
	exec, err := c.browserExec(ctx)
	if err != nil {
		return 0
	}
	wid, _, err := browser.GetWindowForTarget().WithTargetID(id).Do(exec)
	if err != nil {
		slog.Debug("Window lookup failed", "target_id", id, "error", err)
		return 0
	}
	return int64(wid)
}

func (c *Client) info(ctx context.Context, t *target.Info) types.ContextInfo {
	return types.ContextInfo{
		ContextID: string(t.TargetID),
		WindowID:  c.windowOf(ctx, t.TargetID),
		Type:      t.Type,
		URL:       t.URL,
		Title:     t.Title,
	}
}

// Describe reports a target's location without attaching.
func (c *Client) Describe(ctx context.Context, contextID string) (types.ContextInfo, error) {
	list, err := c.targets(ctx)
	if err != nil {
		return types.ContextInfo{}, err
	}
	for _, t := range list {
		if string(t.TargetID) == contextID {
			return c.info(ctx, t), nil
		}
	}
	return types.ContextInfo{}, fmt.Errorf("cdp: no target %s", contextID)
}

// ListContexts returns the page targets of a window, or of every window when
// windowID is 0.
func (c *Client) ListContexts(ctx context.Context, windowID int64) ([]types.ContextInfo, error) {
	list, err := c.targets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.ContextInfo, 0, len(list))
	for _, t := range list {
		if t.Type != "page" {
			continue
		}
		info := c.info(ctx, t)
		if windowID != 0 && info.WindowID != windowID {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// Attach opens a session on the target and starts forwarding its events.
func (c *Client) Attach(ctx context.Context, contextID string) error {
	if c.browserCtx == nil {
		return errNotConnected
	}
	id := target.ID(contextID)
	t, ok := c.tabs.get(id)
	if !ok {
		tabCtx, tabCancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(id))
		if err := chromedp.Run(tabCtx); err != nil {
			tabCancel()
			return fmt.Errorf("failed to attach to target: %w", err)
		}
		t = &tab{id: id, ctx: tabCtx, cancel: tabCancel, sockets: make(map[string]string)}
		if cc := chromedp.FromContext(tabCtx); cc != nil && cc.Target != nil {
			t.session = cc.Target.SessionID
		}
		c.tabs.put(t)
	}
	if c.tabs.isCapturing(t) {
		return nil
	}

	listenCtx, stop := context.WithCancel(t.ctx)
	t.stopListen = stop
	chromedp.ListenTarget(listenCtx, c.handler(t))
	c.tabs.setCapturing(t, true)
	slog.Info("Attached to tab", "target_id", id)
	return nil
}

// EnableNetwork turns on network observation with the given buffers and
// installs the page socket hook used by SendFrame.
func (c *Client) EnableNetwork(ctx context.Context, contextID string, opts capture.NetworkOptions) error {
	exec, _, err := c.tabExec(ctx, contextID)
	if err != nil {
		return err
	}
	enable := network.Enable().
		WithMaxTotalBufferSize(opts.MaxTotalBufferSize).
		WithMaxResourceBufferSize(opts.MaxResourceBufferSize)
	if err := enable.Do(exec); err != nil {
		return fmt.Errorf("failed to enable network domain: %w", err)
	}
	if err := network.SetCacheDisabled(opts.DisableCache).Do(exec); err != nil {
		return fmt.Errorf("failed to set cache mode: %w", err)
	}
	if _, err := page.AddScriptToEvaluateOnNewDocument(socketHook).Do(exec); err != nil {
		slog.Warn("Failed to install socket hook", "target_id", contextID, "error", err)
		return nil
	}
	if _, exc, err := runtime.Evaluate(socketHook).Do(exec); err != nil || exc != nil {
		slog.Debug("Socket hook not applied to current document", "target_id", contextID, "error", err)
	}
	return nil
}

// Detach stops event forwarding and network observation. The page stays
// open.
func (c *Client) Detach(ctx context.Context, contextID string) error {
	t, ok := c.tabs.get(target.ID(contextID))
	if !ok {
		return nil
	}
	if t.stopListen != nil {
		t.stopListen()
	}
	c.tabs.setCapturing(t, false)

	exec, _, err := c.tabExec(ctx, contextID)
	if err != nil {
		return err
	}
	if err := network.Disable().Do(exec); err != nil {
		return fmt.Errorf("failed to disable network domain: %w", err)
	}
	slog.Info("Detached from tab", "target_id", contextID)
	return nil
}

// FetchBody reads a finished response body. Binary bodies are returned
// base64 encoded.
func (c *Client) FetchBody(ctx context.Context, contextID, requestID string) (capture.Body, error) {
	ctx, cancel := context.WithTimeout(ctx, bodyTimeout)
	defer cancel()
	exec, _, err := c.tabExec(ctx, contextID)
	if err != nil {
		return capture.Body{}, err
	}
	body, err := network.GetResponseBody(network.RequestID(requestID)).Do(exec)
	if err != nil {
		return capture.Body{}, err
	}
	if utf8.Valid(body) {
		return capture.Body{Data: string(body)}, nil
	}
	return capture.Body{Data: base64.StdEncoding.EncodeToString(body), Base64Encoded: true}, nil
}

// SendFrame writes payload on the page's open socket for the connection.
func (c *Client) SendFrame(ctx context.Context, contextID, connectionID, payload string) error {
	exec, t, err := c.tabExec(ctx, contextID)
	if err != nil {
		return err
	}
	url, ok := t.socketURL(connectionID)
	if !ok {
		return fmt.Errorf("cdp: unknown socket %s", connectionID)
	}
	expr, err := sendExpression(url, payload)
	if err != nil {
		return err
	}
	res, exc, err := runtime.Evaluate(expr).WithReturnByValue(true).Do(exec)
	if err != nil {
		return err
	}
	if exc != nil {
		return exc
	}
	if res == nil || string(res.Value) != "true" {
		return fmt.Errorf("cdp: no open page socket for %s", url)
	}
	return nil
}

// handler forwards one tab's events. It runs on the chromedp target loop.
func (c *Client) handler(t *tab) func(ev any) {
	contextID := string(t.id)
	return func(ev any) {
		switch e := ev.(type) {
		case *network.EventWebSocketCreated:
			t.rememberSocket(string(e.RequestID), e.URL)
		case *network.EventWebSocketClosed:
			t.forgetSocket(string(e.RequestID))
		}
		if out := translate(contextID, ev); out != nil {
			c.deliver(out)
		}
	}
}

// onBrowserEvent turns target lifecycle events into context events. Window
// lookups need a protocol round trip, so they run off the listener.
func (c *Client) onBrowserEvent(ev any) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo == nil || e.TargetInfo.Type != "page" {
			return
		}
		info := *e.TargetInfo
		c.async(func(ctx context.Context) {
			c.deliver(capture.ContextCreated{
				Meta:     capture.Meta{Context: string(info.TargetID)},
				WindowID: c.windowOf(ctx, info.TargetID),
				Type:     info.Type,
				URL:      info.URL,
			})
		})
	case *target.EventTargetInfoChanged:
		if e.TargetInfo == nil || e.TargetInfo.Type != "page" {
			return
		}
		info := *e.TargetInfo
		c.async(func(ctx context.Context) {
			c.deliver(capture.ContextNavigated{
				Meta:     capture.Meta{Context: string(info.TargetID)},
				WindowID: c.windowOf(ctx, info.TargetID),
				URL:      info.URL,
			})
		})
	case *target.EventTargetDestroyed:
		c.dropTab(e.TargetID)
		c.deliver(capture.ContextClosed{Meta: capture.Meta{Context: string(e.TargetID)}})
	case *target.EventDetachedFromTarget:
		t, ok := c.tabs.bySession(e.SessionID)
		if !ok {
			return
		}
		capturing := c.tabs.isCapturing(t)
		c.dropTab(t.id)
		if capturing {
			c.deliver(capture.ChannelClosed{Meta: capture.Meta{Context: string(t.id)}, Reason: "session detached"})
		}
	}
}

func (c *Client) dropTab(id target.ID) {
	t, ok := c.tabs.remove(id)
	if !ok {
		return
	}
	if t.stopListen != nil {
		t.stopListen()
	}
	// Cancel waits on protocol calls; it must not run on the listener.
	c.async(func(context.Context) { t.cancel() })
}

func (c *Client) async(fn func(ctx context.Context)) {
	ctx := c.browserCtx
	if ctx == nil || ctx.Err() != nil {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn(ctx)
	}()
}
