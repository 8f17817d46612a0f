package cdp

import (
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/capturewatch/internal/capture"
)

type worldKey struct {
	tab      target.ID
	frame    capture.FrameID
	document string
}

// worldCache remembers the isolated world created for each frame document
// so detect expressions share one execution context per document.
type worldCache struct {
	mu     sync.Mutex
	worlds map[worldKey]runtime.ExecutionContextID
}

func newWorldCache() *worldCache {
	return &worldCache{worlds: make(map[worldKey]runtime.ExecutionContextID)}
}

func keyFor(ref capture.FrameRef) worldKey {
	return worldKey{tab: target.ID(ref.ContextID), frame: ref.FrameID, document: ref.Document}
}

func (w *worldCache) get(k worldKey) (runtime.ExecutionContextID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.worlds[k]
	return id, ok
}

func (w *worldCache) put(k worldKey, id runtime.ExecutionContextID) {
	w.mu.Lock()
	w.worlds[k] = id
	w.mu.Unlock()
}

func (w *worldCache) forget(k worldKey) {
	w.mu.Lock()
	delete(w.worlds, k)
	w.mu.Unlock()
}

// forgetFrame drops every document of frame; the worlds died with them.
func (w *worldCache) forgetFrame(tab target.ID, frame capture.FrameID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k := range w.worlds {
		if k.tab == tab && k.frame == frame {
			delete(w.worlds, k)
		}
	}
}

func (w *worldCache) forgetTab(tab target.ID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k := range w.worlds {
		if k.tab == tab {
			delete(w.worlds, k)
		}
	}
}

func (w *worldCache) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.worlds)
}
