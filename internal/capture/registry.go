package capture

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// StatusNotifier is told, after the fact, that the capture state of a context
// changed. Implementations re-query the Registry; they must not block.
type StatusNotifier interface {
	NotifyStatusChanged(id ContextID)
}

// FrameEvent is a frame lifecycle notification from the host browser.
// ParentID is empty for the top frame. Document identifies the frame's
// current document; the Registry assigns one when the notifier has none.
type FrameEvent struct {
	ContextID ContextID `json:"context_id"`
	FrameID   FrameID   `json:"frame_id"`
	ParentID  FrameID   `json:"parent_id,omitempty"`
	Document  string    `json:"document,omitempty"`
	URL       string    `json:"url"`
}

// Outcome reports what OnCandidateTranslators did. Previous and Current are
// snapshot copies.
type Outcome struct {
	Decision Decision
	Previous *CaptureState
	Current  *CaptureState
}

type frameNode struct {
	id       FrameID
	parent   FrameID
	url      string
	document string
	revision int
}

type browsingContext struct {
	id       ContextID
	top      FrameID
	frames   map[FrameID]*frameNode
	state    *CaptureState
	openedAt time.Time
}

// Registry owns every tracked browsing context and its capture state. Writes
// are expected from a single dispatcher; reads may come from any goroutine.
type Registry struct {
	mu       sync.RWMutex
	contexts map[ContextID]*browsingContext
	selected ContextID
	notifier StatusNotifier
	docSeq   int
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		contexts: make(map[ContextID]*browsingContext),
		now:      time.Now,
	}
}

// SetNotifier installs the renderer hook. A nil notifier disables
// notifications.
func (r *Registry) SetNotifier(n StatusNotifier) {
	r.mu.Lock()
	r.notifier = n
	r.mu.Unlock()
}

func (r *Registry) notify(id ContextID) {
	r.mu.RLock()
	n := r.notifier
	r.mu.RUnlock()
	if n != nil {
		n.NotifyStatusChanged(id)
	}
}

// FrameLoaded records a newly loaded document and returns the reference that
// detection results for it must carry. The context is created on its first
// load. A new document in a frame that owned the capture state clears it.
func (r *Registry) FrameLoaded(ev FrameEvent) (FrameRef, error) {
	if err := validateFrameEvent(ev); err != nil {
		return FrameRef{}, err
	}
	ref, cleared := r.frameLoaded(ev)
	if cleared {
		r.notify(ev.ContextID)
	}
	return ref, nil
}

func (r *Registry) frameLoaded(ev FrameEvent) (FrameRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bc, ok := r.contexts[ev.ContextID]
	if !ok {
		bc = &browsingContext{
			id:       ev.ContextID,
			frames:   make(map[FrameID]*frameNode),
			openedAt: r.now(),
		}
		r.contexts[ev.ContextID] = bc
		slog.Debug("browsing context opened", "context_id", ev.ContextID)
	}

	document := ev.Document
	if document == "" {
		r.docSeq++
		document = fmt.Sprintf("%s#%d", ev.FrameID, r.docSeq)
	}

	prev, known := bc.frames[ev.FrameID]
	newTop := ev.ParentID == "" && bc.top != "" && bc.top != ev.FrameID
	if known && prev.document == document && !newTop {
		// Repeated load of the same document keeps its revision, so results
		// made stale by an earlier update stay stale.
		if ev.URL != "" {
			prev.url = ev.URL
		}
		prev.parent = ev.ParentID
		if ev.ParentID == "" {
			bc.top = ev.FrameID
		}
		return prev.ref(bc.id), false
	}

	cleared := false
	if known {
		cleared = bc.dropFrame(ev.FrameID, false)
	}
	if ev.ParentID == "" {
		if bc.top != "" && bc.top != ev.FrameID {
			cleared = bc.dropFrame(bc.top, true) || cleared
		}
		bc.top = ev.FrameID
	}

	node := &frameNode{id: ev.FrameID, parent: ev.ParentID, url: ev.URL, document: document}
	bc.frames[ev.FrameID] = node
	return node.ref(bc.id), cleared
}

// FrameHidden marks a frame and everything below it dead. The capture state
// is cleared when it was produced by one of those frames or when the hidden
// frame is the top frame. It runs before any later detection result is
// applied, so results for the hidden document are rejected as stale.
func (r *Registry) FrameHidden(id ContextID, frame FrameID) error {
	cleared, err := r.frameHidden(id, frame)
	if err != nil {
		return err
	}
	if cleared {
		r.notify(id)
	}
	return nil
}

func (r *Registry) frameHidden(id ContextID, frame FrameID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bc, ok := r.contexts[id]
	if !ok {
		return false, errNoActiveContext(id)
	}
	if _, ok := bc.frames[frame]; !ok {
		return false, nil
	}
	isTop := frame == bc.top
	cleared := bc.dropFrame(frame, isTop)
	if isTop {
		bc.top = ""
	}
	return cleared, nil
}

// FrameUpdated handles an in-place page modification. The frame keeps its
// document but earlier detection results for it become stale, and the state
// is cleared when it belongs to this frame or the top frame. The returned
// reference is used to detect again.
func (r *Registry) FrameUpdated(ev FrameEvent) (FrameRef, error) {
	if ev.ContextID == "" || ev.FrameID == "" {
		return FrameRef{}, NewValidationError("context_id and frame_id are required")
	}
	ref, cleared, err := r.frameUpdated(ev)
	if err != nil {
		return FrameRef{}, err
	}
	if cleared {
		r.notify(ev.ContextID)
	}
	return ref, nil
}

func (r *Registry) frameUpdated(ev FrameEvent) (FrameRef, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bc, ok := r.contexts[ev.ContextID]
	if !ok {
		return FrameRef{}, false, errNoActiveContext(ev.ContextID)
	}
	node, ok := bc.frames[ev.FrameID]
	if !ok || (ev.Document != "" && ev.Document != node.document) {
		return FrameRef{}, false, errStaleFrame(FrameRef{ContextID: ev.ContextID, FrameID: ev.FrameID, Document: ev.Document})
	}
	if ev.URL != "" {
		node.url = ev.URL
	}
	node.revision++

	cleared := false
	if bc.state != nil && (bc.state.Frame.FrameID == ev.FrameID || ev.FrameID == bc.top) {
		bc.state = nil
		cleared = true
	}
	return node.ref(bc.id), cleared, nil
}

// ContextClosed destroys a context. Later results for it are no-ops.
func (r *Registry) ContextClosed(id ContextID) error {
	r.mu.Lock()
	if _, ok := r.contexts[id]; !ok {
		r.mu.Unlock()
		return errNoActiveContext(id)
	}
	delete(r.contexts, id)
	if r.selected == id {
		r.selected = ""
	}
	r.mu.Unlock()

	slog.Debug("browsing context closed", "context_id", id)
	r.notify(id)
	return nil
}

// ContextSelected records which context the user is looking at.
func (r *Registry) ContextSelected(id ContextID) error {
	r.mu.Lock()
	if _, ok := r.contexts[id]; !ok {
		r.mu.Unlock()
		return errNoActiveContext(id)
	}
	r.selected = id
	r.mu.Unlock()

	r.notify(id)
	return nil
}

// OnCandidateTranslators applies the selection policy to a detection result
// for ref. Results for closed contexts or dead frame documents are rejected
// and leave all state untouched.
func (r *Registry) OnCandidateTranslators(ref FrameRef, translators []TranslatorMatch) (Outcome, error) {
	out, err := r.onCandidate(ref, translators)
	if err != nil {
		return Outcome{}, err
	}
	if out.Decision != DecisionKeep {
		r.notify(ref.ContextID)
	}
	return out, nil
}

func (r *Registry) onCandidate(ref FrameRef, translators []TranslatorMatch) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bc, ok := r.contexts[ref.ContextID]
	if !ok {
		return Outcome{}, errNoActiveContext(ref.ContextID)
	}
	node, ok := bc.frames[ref.FrameID]
	if !ok || node.document != ref.Document || node.revision != ref.Revision {
		return Outcome{}, errStaleFrame(ref)
	}

	cand := Candidate{
		Frame:       node.ref(bc.id),
		IsTopFrame:  node.parent == "",
		Translators: sortTranslators(translators),
	}
	var cmp Comparison
	if bc.state != nil {
		cmp.ExistingLive = bc.live(bc.state.Frame)
		cmp.Nested = bc.isDescendant(cand.Frame.FrameID, bc.state.Frame.FrameID)
	}

	decision := Decide(bc.state, cand, cmp)
	out := Outcome{Decision: decision, Previous: bc.state.clone()}
	if decision != DecisionKeep {
		// Old state is dropped and the new one installed under the same
		// lock, so readers never observe a mix of the two.
		bc.state = apply(bc.state, cand, decision, r.now())
	}
	out.Current = bc.state.clone()
	return out, nil
}

// CaptureAffordance returns DISABLED for unknown contexts.
func (r *Registry) CaptureAffordance(id ContextID) Affordance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bc, ok := r.contexts[id]
	if !ok {
		return AffordanceDisabled
	}
	return bc.state.Affordance()
}

func (r *Registry) BestTranslator(id ContextID) (TranslatorMatch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bc, ok := r.contexts[id]
	if !ok {
		return TranslatorMatch{}, false
	}
	return bc.state.Best()
}

// State returns a copy of the context's capture state, or nil when none is
// cached.
func (r *Registry) State(id ContextID) (*CaptureState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bc, ok := r.contexts[id]
	if !ok {
		return nil, errNoActiveContext(id)
	}
	return bc.state.clone(), nil
}

func (r *Registry) Selected() (ContextID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected, r.selected != ""
}

// Contexts lists tracked contexts, oldest first.
func (r *Registry) Contexts() []ContextSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ContextSummary, 0, len(r.contexts))
	for _, bc := range r.contexts {
		s := ContextSummary{
			ID:         bc.id,
			FrameCount: len(bc.frames),
			Affordance: bc.state.Affordance(),
			Selected:   bc.id == r.selected,
			OpenedAt:   bc.openedAt,
		}
		if top, ok := bc.frames[bc.top]; ok {
			s.TopURL = top.url
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}

// Close drops every context. Results that arrive afterwards are no-ops.
func (r *Registry) Close() {
	r.mu.Lock()
	r.contexts = make(map[ContextID]*browsingContext)
	r.selected = ""
	r.mu.Unlock()
}

func (n *frameNode) ref(id ContextID) FrameRef {
	return FrameRef{ContextID: id, FrameID: n.id, Document: n.document, Revision: n.revision, URL: n.url}
}

func (bc *browsingContext) live(ref FrameRef) bool {
	node, ok := bc.frames[ref.FrameID]
	return ok && node.document == ref.Document
}

// isDescendant walks child's parent chain looking for ancestor.
func (bc *browsingContext) isDescendant(child, ancestor FrameID) bool {
	if child == ancestor {
		return false
	}
	cur, ok := bc.frames[child]
	for steps := 0; ok && steps <= len(bc.frames); steps++ {
		if cur.parent == "" {
			return false
		}
		if cur.parent == ancestor {
			return true
		}
		cur, ok = bc.frames[cur.parent]
	}
	return false
}

// dropFrame removes frame (and every frame below it, or the whole tree when
// all is set). It clears the capture state when its frame was removed and
// reports whether it did.
func (bc *browsingContext) dropFrame(frame FrameID, all bool) bool {
	if all {
		bc.frames = make(map[FrameID]*frameNode)
	} else {
		doomed := []FrameID{frame}
		for id := range bc.frames {
			if bc.isDescendant(id, frame) {
				doomed = append(doomed, id)
			}
		}
		for _, id := range doomed {
			delete(bc.frames, id)
		}
	}
	if bc.state != nil && (all || !bc.live(bc.state.Frame)) {
		bc.state = nil
		return true
	}
	return false
}

func validateFrameEvent(ev FrameEvent) error {
	switch {
	case strings.TrimSpace(string(ev.ContextID)) == "":
		return NewValidationError("context_id is required")
	case strings.TrimSpace(string(ev.FrameID)) == "":
		return NewValidationError("frame_id is required")
	case ev.ParentID == ev.FrameID:
		return NewValidationError("frame cannot be its own parent")
	}
	return nil
}
