package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/capturewatch/internal/capture"
	"github.com/dgnsrekt/capturewatch/internal/config"
)

const isolatedWorldName = "capturewatch"

// ErrUnavailable is returned when no browser session backs a context.
var ErrUnavailable = errors.New("cdp session unavailable")

// Sink receives page lifecycle events. watcher.Service implements it.
type Sink interface {
	FrameLoaded(ev capture.FrameEvent)
	FrameHidden(id capture.ContextID, frame capture.FrameID)
	FrameUpdated(ev capture.FrameEvent)
	ContextClosed(id capture.ContextID)
}

// Client attaches to the page targets of a Chromium instance and reports
// their frame lifecycle to a Sink.
type Client struct {
	cfg           *config.Config
	sink          Sink
	tabRegistry   *TabRegistry
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tabs          map[target.ID]*TabContext
	tabsMu        sync.RWMutex
	worlds        *worldCache
	closeOnce     sync.Once
}

type TabContext struct {
	ID     target.ID
	URL    string
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(cfg *config.Config, tabRegistry *TabRegistry) *Client {
	return &Client{
		cfg:         cfg,
		tabRegistry: tabRegistry,
		tabs:        make(map[target.ID]*TabContext),
		worlds:      newWorldCache(),
	}
}

// Connect attaches to every matching page target, reporting to sink, and
// starts following target creation and destruction.
func (c *Client) Connect(ctx context.Context, sink Sink) error {
	c.sink = sink
	cdpURL := c.cfg.CDPURL()
	slog.Info("connecting to chromium", "url", cdpURL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cdpURL)
	c.browserCtx, c.browserCancel = chromedp.NewContext(c.allocCtx)

	if err := chromedp.Run(c.browserCtx); err != nil {
		return &capture.CodedError{Code: capture.CodeCDPUnavailable, Message: "failed to connect to browser", Cause: err}
	}

	chromedp.ListenBrowser(c.browserCtx, c.handleBrowserEvent)
	if err := chromedp.Run(c.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
	})); err != nil {
		slog.Warn("target discovery unavailable, new tabs will not be followed", "error", err)
	}

	targets, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		return &capture.CodedError{Code: capture.CodeCDPUnavailable, Message: "failed to enumerate targets", Cause: err}
	}
	slog.Info("found browser targets", "count", len(targets))

	own := chromedp.FromContext(c.browserCtx).Target
	attached := 0
	for _, t := range targets {
		if own != nil && t.TargetID == own.TargetID {
			continue
		}
		if !c.wantTarget(t) {
			continue
		}
		if err := c.attachToTab(ctx, t.TargetID, t.URL); err != nil {
			slog.Error("failed to attach to tab", "target_id", t.TargetID, "url", truncateURL(t.URL), "error", err)
			continue
		}
		attached++
	}

	slog.Info("attached to tabs", "count", attached, "tab_url_filter", c.cfg.TabURLFilter)
	return nil
}

func (c *Client) wantTarget(t *target.Info) bool {
	if t.Type != "page" {
		return false
	}
	if !c.matchesTabURL(t.URL) {
		slog.Debug("skipping tab (url filter)", "url", truncateURL(t.URL))
		return false
	}
	return true
}

func (c *Client) attachToTab(ctx context.Context, targetID target.ID, url string) error {
	c.tabsMu.Lock()
	if _, ok := c.tabs[targetID]; ok {
		c.tabsMu.Unlock()
		return nil
	}
	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx, chromedp.WithTargetID(targetID))
	tab := &TabContext{ID: targetID, URL: url, ctx: tabCtx, cancel: tabCancel}
	c.tabs[targetID] = tab
	c.tabsMu.Unlock()

	c.tabRegistry.Register(targetID, url)
	chromedp.ListenTarget(tabCtx, c.createEventHandler(targetID))

	var tree *page.FrameTree
	if err := chromedp.Run(tabCtx, page.Enable(), chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(ctx)
		return err
	})); err != nil {
		c.detach(targetID)
		return fmt.Errorf("failed to enable page domain: %w", err)
	}
	if ctx.Err() != nil {
		c.detach(targetID)
		return ctx.Err()
	}

	for _, ev := range c.tabRegistry.Seed(targetID, tree) {
		c.sink.FrameLoaded(ev)
	}
	slog.Info("attached to tab", "target_id", targetID, "url", truncateURL(url))
	return nil
}

func (c *Client) detach(targetID target.ID) bool {
	c.tabsMu.Lock()
	tab, ok := c.tabs[targetID]
	delete(c.tabs, targetID)
	c.tabsMu.Unlock()
	if ok {
		tab.cancel()
	}
	c.worlds.forgetTab(targetID)
	return c.tabRegistry.Remove(targetID) || ok
}

// handleBrowserEvent runs on chromedp's event goroutine and must not block.
func (c *Client) handleBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo == nil || !c.wantTarget(e.TargetInfo) {
			return
		}
		if own := chromedp.FromContext(c.browserCtx).Target; own != nil && own.TargetID == e.TargetInfo.TargetID {
			return
		}
		go func(info *target.Info) {
			if err := c.attachToTab(c.browserCtx, info.TargetID, info.URL); err != nil {
				slog.Warn("failed to attach to new tab", "target_id", info.TargetID, "error", err)
			}
		}(e.TargetInfo)
	case *target.EventTargetDestroyed:
		if c.detach(e.TargetID) {
			slog.Info("tab closed", "target_id", e.TargetID)
			c.sink.ContextClosed(capture.ContextID(e.TargetID))
		}
	}
}

func (c *Client) createEventHandler(tabID target.ID) func(ev interface{}) {
	return func(ev interface{}) {
		c.handlePageEvent(tabID, ev)
	}
}

// handlePageEvent maps one page-domain event of a tab onto the sink.
func (c *Client) handlePageEvent(tabID target.ID, ev interface{}) {
	id := capture.ContextID(tabID)
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		for _, frame := range c.tabRegistry.Navigated(tabID, e.Frame) {
			c.worlds.forgetFrame(tabID, frame)
			c.sink.FrameHidden(id, frame)
		}
		if e.Frame != nil && e.Frame.ParentID == "" {
			slog.Debug("tab navigated", "tab_id", tabID, "url", truncateURL(frameURL(e.Frame)))
		}
	case *page.EventFrameStoppedLoading:
		if fe, ok := c.tabRegistry.StoppedLoading(tabID, e.FrameID); ok {
			c.sink.FrameLoaded(fe)
		}
	case *page.EventLoadEventFired:
		for _, fe := range c.tabRegistry.Pending(tabID) {
			c.sink.FrameLoaded(fe)
		}
	case *page.EventNavigatedWithinDocument:
		if fe, ok := c.tabRegistry.WithinDocument(tabID, e.FrameID, e.URL); ok {
			slog.Debug("frame navigated within document", "tab_id", tabID, "frame_id", e.FrameID, "url", truncateURL(e.URL))
			c.sink.FrameUpdated(fe)
		}
	case *page.EventFrameDetached:
		for _, frame := range c.tabRegistry.Detached(tabID, e.FrameID) {
			c.worlds.forgetFrame(tabID, frame)
			c.sink.FrameHidden(id, frame)
		}
	}
}

// EvaluateInFrame runs expression in an isolated world of the frame and
// returns its value as a string. String results are unquoted. The world is
// created on first use for each frame document and reused afterwards.
func (c *Client) EvaluateInFrame(ctx context.Context, frame capture.FrameRef, expression string) (string, error) {
	c.tabsMu.RLock()
	tab, ok := c.tabs[target.ID(frame.ContextID)]
	c.tabsMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("context %s: %w", frame.ContextID, ErrUnavailable)
	}

	evalCtx, cancel := context.WithTimeout(tab.ctx, c.cfg.EvalTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	key := keyFor(frame)
	var raw []byte
	err := chromedp.Run(evalCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		world, ok := c.worlds.get(key)
		if !ok {
			var err error
			world, err = page.CreateIsolatedWorld(cdp.FrameID(frame.FrameID)).WithWorldName(isolatedWorldName).Do(ctx)
			if err != nil {
				return fmt.Errorf("create isolated world: %w", err)
			}
			c.worlds.put(key, world)
		}
		res, exc, err := runtime.Evaluate(expression).
			WithContextID(world).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			// The context may be gone with its document; create a fresh
			// world next time.
			c.worlds.forget(key)
			return err
		}
		if exc != nil {
			return fmt.Errorf("eval exception: %s", exc.Text)
		}
		if res != nil {
			raw = []byte(res.Value)
		}
		return nil
	}))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return decodeValue(raw), nil
}

func decodeValue(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.tabsMu.Lock()
		for id, tab := range c.tabs {
			tab.cancel()
			delete(c.tabs, id)
		}
		c.tabsMu.Unlock()

		if c.browserCancel != nil {
			c.browserCancel()
		}
		if c.allocCancel != nil {
			c.allocCancel()
		}
		slog.Info("cdp client closed")
	})
	return nil
}

func (c *Client) TabCount() int {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	return len(c.tabs)
}

func (c *Client) matchesTabURL(url string) bool {
	if c.cfg.TabURLFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(c.cfg.TabURLFilter))
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
