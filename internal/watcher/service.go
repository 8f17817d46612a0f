package watcher

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/capturewatch/internal/capture"
	"github.com/dgnsrekt/capturewatch/internal/status"
	"github.com/dgnsrekt/capturewatch/internal/translators"
	"golang.org/x/sync/semaphore"
)

const eventQueueSize = 1024

// Detector is the translation engine as seen by the dispatcher.
type Detector interface {
	DetectTranslators(ctx context.Context, frame capture.FrameRef) ([]capture.TranslatorMatch, error)
}

// DecisionRecorder receives every applied policy decision.
type DecisionRecorder interface {
	RecordDecision(ref capture.FrameRef, out capture.Outcome)
}

type eventKind int

const (
	eventLoaded eventKind = iota
	eventHidden
	eventUpdated
	eventSelected
	eventClosed
	eventDetected
)

func (k eventKind) String() string {
	switch k {
	case eventLoaded:
		return "loaded"
	case eventHidden:
		return "hidden"
	case eventUpdated:
		return "updated"
	case eventSelected:
		return "selected"
	case eventClosed:
		return "closed"
	default:
		return "detected"
	}
}

type event struct {
	kind    eventKind
	frame   capture.FrameEvent
	ref     capture.FrameRef
	matches []capture.TranslatorMatch
}

// Options tunes the dispatcher.
type Options struct {
	Filter              *Filter
	Recorder            DecisionRecorder
	Catalog             *translators.Catalog
	DetectTimeout       time.Duration
	MaxConcurrentDetect int64
}

// Service is the single writer of the Registry. Notifier events and
// detection results are queued and applied one at a time by Run; detections
// themselves run concurrently, bounded by a semaphore.
type Service struct {
	reg      *capture.Registry
	detector Detector
	filter   *Filter
	recorder DecisionRecorder
	catalog  *translators.Catalog
	timeout  time.Duration
	sem      *semaphore.Weighted
	maxDet   int64

	events  chan event
	stopped chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
	started time.Time
}

func NewService(reg *capture.Registry, detector Detector, opts Options) *Service {
	if opts.Filter == nil {
		opts.Filter = NewFilter(DefaultDomainBlocklist, DefaultLocationBlocklist)
	}
	if opts.MaxConcurrentDetect < 1 {
		opts.MaxConcurrentDetect = 1
	}
	return &Service{
		reg:      reg,
		detector: detector,
		filter:   opts.Filter,
		recorder: opts.Recorder,
		catalog:  opts.Catalog,
		timeout:  opts.DetectTimeout,
		sem:      semaphore.NewWeighted(opts.MaxConcurrentDetect),
		maxDet:   opts.MaxConcurrentDetect,
		events:   make(chan event, eventQueueSize),
		stopped:  make(chan struct{}),
		started:  time.Now(),
	}
}

// Run applies queued events until ctx is done, then waits for in-flight
// detections to give up.
func (s *Service) Run(ctx context.Context) error {
	defer func() {
		s.stop.Do(func() { close(s.stopped) })
		s.wg.Wait()
		slog.Info("capture dispatcher stopped")
	}()

	slog.Info("capture dispatcher started", "max_concurrent_detect", s.maxDet, "queue_size", cap(s.events))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

// FrameLoaded queues a document load.
func (s *Service) FrameLoaded(ev capture.FrameEvent) {
	s.enqueue(event{kind: eventLoaded, frame: ev})
}

// FrameHidden queues a document hide or frame detach.
func (s *Service) FrameHidden(id capture.ContextID, frame capture.FrameID) {
	s.enqueue(event{kind: eventHidden, frame: capture.FrameEvent{ContextID: id, FrameID: frame}})
}

// FrameUpdated queues an in-place document modification.
func (s *Service) FrameUpdated(ev capture.FrameEvent) {
	s.enqueue(event{kind: eventUpdated, frame: ev})
}

func (s *Service) ContextSelected(id capture.ContextID) {
	s.enqueue(event{kind: eventSelected, frame: capture.FrameEvent{ContextID: id}})
}

func (s *Service) ContextClosed(id capture.ContextID) {
	s.enqueue(event{kind: eventClosed, frame: capture.FrameEvent{ContextID: id}})
}

func (s *Service) enqueue(ev event) {
	select {
	case s.events <- ev:
	case <-s.stopped:
		slog.Debug("dispatcher stopped, dropping event", "kind", ev.kind, "context_id", ev.frame.ContextID)
	}
}

func (s *Service) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventLoaded:
		if ok, reason := s.filter.Allow(ev.frame.URL); !ok {
			slog.Debug("ignoring frame", "context_id", ev.frame.ContextID, "frame_id", ev.frame.FrameID, "reason", reason, "url", truncateURL(ev.frame.URL))
			// The frame left its previous document even though the new one
			// is not tracked.
			if err := s.reg.FrameHidden(ev.frame.ContextID, ev.frame.FrameID); err != nil && !capture.IsNoActiveContext(err) {
				logDropped(ev, err)
			}
			return
		}
		ref, err := s.reg.FrameLoaded(ev.frame)
		if err != nil {
			logDropped(ev, err)
			return
		}
		s.startDetection(ctx, ref)

	case eventHidden:
		if err := s.reg.FrameHidden(ev.frame.ContextID, ev.frame.FrameID); err != nil {
			logDropped(ev, err)
		}

	case eventUpdated:
		ref, err := s.reg.FrameUpdated(ev.frame)
		if err != nil {
			logDropped(ev, err)
			return
		}
		if ok, _ := s.filter.Allow(ref.URL); ok {
			s.startDetection(ctx, ref)
		}

	case eventSelected:
		if err := s.reg.ContextSelected(ev.frame.ContextID); err != nil {
			logDropped(ev, err)
		}

	case eventClosed:
		if err := s.reg.ContextClosed(ev.frame.ContextID); err != nil {
			logDropped(ev, err)
		}

	case eventDetected:
		out, err := s.reg.OnCandidateTranslators(ev.ref, ev.matches)
		if err != nil {
			logDropped(ev, err)
			return
		}
		attrs := []any{"context_id", ev.ref.ContextID, "frame_id", ev.ref.FrameID, "decision", out.Decision, "translators", len(ev.matches)}
		if best, ok := out.Current.Best(); ok {
			attrs = append(attrs, "best", best.Label, "priority", best.Priority)
		}
		slog.Debug("translators applied", attrs...)
		if s.recorder != nil {
			s.recorder.RecordDecision(ev.ref, out)
		}
	}
}

func (s *Service) startDetection(ctx context.Context, ref capture.FrameRef) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer s.sem.Release(1)

		dctx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		matches, err := s.detector.DetectTranslators(dctx, ref)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			// Saving stays available generically when detection fails.
			slog.Warn("translator detection failed", "context_id", ref.ContextID, "frame_id", ref.FrameID, "url", truncateURL(ref.URL), "error", err)
			matches = nil
		}
		s.enqueue(event{kind: eventDetected, ref: ref, matches: matches})
	}()
}

func logDropped(ev event, err error) {
	switch {
	case capture.IsStaleFrame(err):
		slog.Debug("discarding stale frame event", "kind", ev.kind, "context_id", contextOf(ev), "frame_id", frameOf(ev), "error", err)
	case capture.IsNoActiveContext(err):
		slog.Info("event for inactive context ignored", "kind", ev.kind, "context_id", contextOf(ev), "error", err)
	default:
		slog.Warn("capture event rejected", "kind", ev.kind, "context_id", contextOf(ev), "error", err)
	}
}

func contextOf(ev event) capture.ContextID {
	if ev.frame.ContextID != "" {
		return ev.frame.ContextID
	}
	return ev.ref.ContextID
}

func frameOf(ev event) capture.FrameID {
	if ev.frame.FrameID != "" {
		return ev.frame.FrameID
	}
	return ev.ref.FrameID
}

// Query surface.

// Capture returns the renderer view for one context.
func (s *Service) Capture(_ context.Context, id capture.ContextID) (status.View, error) {
	st, err := s.reg.State(id)
	if err != nil {
		return status.View{}, err
	}
	sel, _ := s.reg.Selected()
	return status.BuildView(id, st, sel == id), nil
}

// SelectedCapture returns the view for the selected context.
func (s *Service) SelectedCapture(ctx context.Context) (status.View, error) {
	id, ok := s.reg.Selected()
	if !ok {
		return status.View{}, &capture.CodedError{Code: capture.CodeNoActiveContext, Message: "no context is selected"}
	}
	return s.Capture(ctx, id)
}

func (s *Service) ListContexts(_ context.Context) []capture.ContextSummary {
	return s.reg.Contexts()
}

func (s *Service) ListTranslators(_ context.Context) []translators.Definition {
	if s.catalog == nil {
		return []translators.Definition{}
	}
	return s.catalog.Translators
}

// SubmitFrameEvent accepts a notifier event from an external bridge.
func (s *Service) SubmitFrameEvent(_ context.Context, kind string, ev capture.FrameEvent) error {
	if strings.TrimSpace(string(ev.ContextID)) == "" {
		return capture.NewValidationError("context_id is required")
	}
	switch kind {
	case "loaded", "hidden", "updated":
		if strings.TrimSpace(string(ev.FrameID)) == "" {
			return capture.NewValidationError("frame_id is required")
		}
	}

	switch kind {
	case "loaded":
		s.FrameLoaded(ev)
	case "hidden":
		s.FrameHidden(ev.ContextID, ev.FrameID)
	case "updated":
		s.FrameUpdated(ev)
	case "selected":
		s.ContextSelected(ev.ContextID)
	case "closed":
		s.ContextClosed(ev.ContextID)
	default:
		return capture.NewValidationError("unknown event type " + kind)
	}
	return nil
}

// CloseContext queues a close for a tracked context.
func (s *Service) CloseContext(_ context.Context, id capture.ContextID) error {
	if _, err := s.reg.State(id); err != nil {
		return err
	}
	s.ContextClosed(id)
	return nil
}

// Health summarises dispatcher state.
func (s *Service) Health(_ context.Context) status.Health {
	return status.Health{
		Contexts:    s.reg.Count(),
		Translators: s.catalog.Len(),
		QueueDepth:  len(s.events),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
	}
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
