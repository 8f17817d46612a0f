package journal

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dgnsrekt/capturewatch/internal/capture"
	"github.com/google/uuid"
)

// Best is the top translator of a state at decision time.
type Best struct {
	ID       string `json:"id,omitempty"`
	Label    string `json:"label"`
	Priority int    `json:"priority"`
	ItemType string `json:"item_type"`
}

// Entry is one line of the decision journal.
type Entry struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	ContextID    capture.ContextID `json:"context_id"`
	FrameID      capture.FrameID   `json:"frame_id"`
	Document     string            `json:"document"`
	FrameURL     string            `json:"frame_url"`
	Decision     capture.Decision  `json:"decision"`
	PreviousURL  string            `json:"previous_url,omitempty"`
	PreviousTop  bool              `json:"previous_top_frame,omitempty"`
	PreviousBest *Best             `json:"previous_best,omitempty"`
	CurrentTop   bool              `json:"current_top_frame"`
	CurrentBest  *Best             `json:"current_best,omitempty"`
	CurrentCount int               `json:"current_translators"`
}

// Decisions records every policy decision so tie-break outcomes can be
// reviewed after the fact.
type Decisions struct {
	w   *Writer
	now func() time.Time
}

func NewDecisions(w *Writer) *Decisions {
	return &Decisions{w: w, now: time.Now}
}

// RecordDecision implements watcher.DecisionRecorder.
func (d *Decisions) RecordDecision(ref capture.FrameRef, out capture.Outcome) {
	err := d.w.Write(NewEntry(ref, out, d.now()))
	if errors.Is(err, ErrClosed) {
		slog.Debug("decision journal closed, dropping entry", "context_id", ref.ContextID, "frame_id", ref.FrameID, "decision", out.Decision)
	}
}

func (d *Decisions) Close() error { return d.w.Close() }

// NewEntry builds the journal line for out.
func NewEntry(ref capture.FrameRef, out capture.Outcome, at time.Time) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: at.UTC(),
		ContextID: ref.ContextID,
		FrameID:   ref.FrameID,
		Document:  ref.Document,
		FrameURL:  ref.URL,
		Decision:  out.Decision,
	}
	if out.Previous != nil {
		e.PreviousURL = out.Previous.FrameURL
		e.PreviousTop = out.Previous.IsTopFrame
		e.PreviousBest = bestOf(out.Previous)
	}
	if out.Current != nil {
		e.CurrentTop = out.Current.IsTopFrame
		e.CurrentBest = bestOf(out.Current)
		e.CurrentCount = len(out.Current.Translators)
	}
	return e
}

func bestOf(st *capture.CaptureState) *Best {
	m, ok := st.Best()
	if !ok {
		return nil
	}
	return &Best{ID: m.ID, Label: m.Label, Priority: m.Priority, ItemType: m.ItemType}
}
