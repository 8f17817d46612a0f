package cdp

import (
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/capturewatch/internal/capture"
)

type trackedFrame struct {
	id     cdp.FrameID
	parent cdp.FrameID
	loader cdp.LoaderID
	url    string
	// announced is set once the document has been reported as loaded.
	announced bool
}

// TabInfo is what the registry knows about one attached page target.
type TabInfo struct {
	TargetID target.ID
	URL      string
	frames   map[cdp.FrameID]*trackedFrame
	order    []cdp.FrameID
}

// TabRegistry tracks attached tabs and the frame tree of each, and decides
// which lifecycle events a raw CDP page event turns into.
type TabRegistry struct {
	tabs map[target.ID]*TabInfo
	mu   sync.RWMutex
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[target.ID]*TabInfo)}
}

func (r *TabRegistry) Register(targetID target.ID, url string) *TabInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.tabs[targetID]; ok {
		info.URL = url
		return info
	}
	info := &TabInfo{TargetID: targetID, URL: url, frames: make(map[cdp.FrameID]*trackedFrame)}
	r.tabs[targetID] = info
	return info
}

func (r *TabRegistry) Has(targetID target.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tabs[targetID]
	return ok
}

func (r *TabRegistry) Remove(targetID target.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tabs[targetID]
	delete(r.tabs, targetID)
	return ok
}

func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}

// Seed records the frame tree of a tab that was already loaded when we
// attached and returns its documents as loaded events, parents first.
func (r *TabRegistry) Seed(targetID target.ID, tree *page.FrameTree) []capture.FrameEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.tabs[targetID]
	if !ok || tree == nil {
		return nil
	}
	var out []capture.FrameEvent
	var walk func(t *page.FrameTree)
	walk = func(t *page.FrameTree) {
		if t == nil || t.Frame == nil {
			return
		}
		f := info.put(t.Frame)
		f.announced = true
		out = append(out, f.event(targetID))
		for _, child := range t.ChildFrames {
			walk(child)
		}
	}
	walk(tree)
	return out
}

// Navigated records a committed navigation. Announced frames of the
// replaced document are returned, parents first, so they can be hidden.
func (r *TabRegistry) Navigated(targetID target.ID, frame *cdp.Frame) []capture.FrameID {
	if frame == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return nil
	}
	var hide []capture.FrameID
	if prev, had := info.frames[frame.ID]; had {
		if prev.loader == frame.LoaderID {
			prev.url = frameURL(frame)
			return nil
		}
		hide = info.removeSubtree(frame.ID)
	}
	if frame.ParentID == "" {
		info.URL = frameURL(frame)
	}
	info.put(frame)
	return hide
}

// StoppedLoading returns the loaded event for a frame whose new document
// has finished loading. Subframes usually finish before their parent; the
// capture registry accepts them in that order.
func (r *TabRegistry) StoppedLoading(targetID target.ID, frameID cdp.FrameID) (capture.FrameEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return capture.FrameEvent{}, false
	}
	f, ok := info.frames[frameID]
	if !ok || f.announced {
		return capture.FrameEvent{}, false
	}
	f.announced = true
	return f.event(targetID), true
}

// Pending announces every frame still waiting for its load to finish, in
// the order the navigations were committed.
func (r *TabRegistry) Pending(targetID target.ID) []capture.FrameEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return nil
	}
	var out []capture.FrameEvent
	for _, id := range info.order {
		f := info.frames[id]
		if f == nil || f.announced {
			continue
		}
		f.announced = true
		out = append(out, f.event(targetID))
	}
	return out
}

// WithinDocument returns the updated event for a same-document navigation.
func (r *TabRegistry) WithinDocument(targetID target.ID, frameID cdp.FrameID, url string) (capture.FrameEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return capture.FrameEvent{}, false
	}
	f, ok := info.frames[frameID]
	if !ok {
		return capture.FrameEvent{}, false
	}
	f.url = url
	if f.parent == "" {
		info.URL = url
	}
	return f.event(targetID), f.announced
}

// Detached forgets a frame and its descendants and returns the announced
// ones, parents first.
func (r *TabRegistry) Detached(targetID target.ID, frameID cdp.FrameID) []capture.FrameID {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return nil
	}
	if _, ok := info.frames[frameID]; !ok {
		return nil
	}
	return info.removeSubtree(frameID)
}

func (t *TabInfo) put(frame *cdp.Frame) *trackedFrame {
	f := &trackedFrame{
		id:     frame.ID,
		parent: frame.ParentID,
		loader: frame.LoaderID,
		url:    frameURL(frame),
	}
	if _, ok := t.frames[frame.ID]; !ok {
		t.order = append(t.order, frame.ID)
	}
	t.frames[frame.ID] = f
	return f
}

// removeSubtree drops root and its descendants, returning the announced
// ones in commit order.
func (t *TabInfo) removeSubtree(root cdp.FrameID) []capture.FrameID {
	doomed := t.subtree(root)
	var announced []capture.FrameID
	kept := t.order[:0]
	for _, id := range t.order {
		if !doomed[id] {
			kept = append(kept, id)
			continue
		}
		if f := t.frames[id]; f != nil && f.announced {
			announced = append(announced, capture.FrameID(id))
		}
		delete(t.frames, id)
	}
	t.order = kept
	return announced
}

func (t *TabInfo) subtree(root cdp.FrameID) map[cdp.FrameID]bool {
	doomed := map[cdp.FrameID]bool{root: true}
	for changed := true; changed; {
		changed = false
		for id, f := range t.frames {
			if !doomed[id] && doomed[f.parent] {
				doomed[id] = true
				changed = true
			}
		}
	}
	return doomed
}

func (f *trackedFrame) event(targetID target.ID) capture.FrameEvent {
	return capture.FrameEvent{
		ContextID: capture.ContextID(targetID),
		FrameID:   capture.FrameID(f.id),
		ParentID:  capture.FrameID(f.parent),
		Document:  string(f.loader),
		URL:       f.url,
	}
}

func frameURL(frame *cdp.Frame) string {
	return frame.URL + frame.URLFragment
}
