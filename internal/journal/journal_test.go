package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/capturewatch/internal/capture"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("unmarshal line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestWriterWritesDatedFileAndFlushesOnClose(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "decisions", 16, 1)
	w.now = func() time.Time { return time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC) }

	for i := 0; i < 3; i++ {
		if err := w.Write(map[string]int{"n": i}); err != nil {
			t.Fatalf("Write(%d) error = %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "2026-03-04", "decisions.jsonl"))
	if got, want := len(lines), 3; got != want {
		t.Fatalf("lines = %d; want %d", got, want)
	}

	if err := w.Write("late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write after Close error = %v; want ErrClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestNewEntryCapturesBothSides(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	ref := capture.FrameRef{ContextID: "tab1", FrameID: "F2", Document: "d2", URL: "https://a.test/embed"}
	out := capture.Outcome{
		Decision: capture.DecisionReplace,
		Previous: &capture.CaptureState{
			FrameURL:    "https://a.test/",
			IsTopFrame:  true,
			Translators: []capture.TranslatorMatch{{ID: "doi", Label: "DOI", Priority: 40, ItemType: "journalArticle"}},
		},
		Current: &capture.CaptureState{
			SaveEnabled: true,
			FrameURL:    "https://a.test/embed",
			Translators: []capture.TranslatorMatch{
				{ID: "hw", Label: "HighWire", Priority: 60, ItemType: "journalArticle"},
				{ID: "doi", Label: "DOI", Priority: 40, ItemType: "journalArticle"},
			},
		},
	}

	e := NewEntry(ref, out, at)
	if e.ID == "" {
		t.Fatal("entry has no id")
	}
	if !e.Timestamp.Equal(at) || e.Timestamp.Location() != time.UTC {
		t.Fatalf("Timestamp = %v; want %v in UTC", e.Timestamp, at)
	}
	if e.PreviousBest == nil || e.PreviousBest.Priority != 40 || !e.PreviousTop {
		t.Fatalf("previous = %+v top=%v", e.PreviousBest, e.PreviousTop)
	}
	if e.CurrentBest == nil || e.CurrentBest.ID != "hw" || e.CurrentCount != 2 {
		t.Fatalf("current = %+v count=%d", e.CurrentBest, e.CurrentCount)
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got, want := m["decision"], "replace"; got != want {
		t.Fatalf("decision = %v; want %v", got, want)
	}
}

func TestDecisionsRecordDecision(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "decisions", 4, 1)
	fixed := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	w.now = func() time.Time { return fixed }
	d := NewDecisions(w)
	d.now = func() time.Time { return fixed }

	d.RecordDecision(capture.FrameRef{ContextID: "tab1", FrameID: "F1", Document: "d1"}, capture.Outcome{
		Decision: capture.DecisionKeep,
	})
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "2026-05-06", "decisions.jsonl"))
	if len(lines) != 1 {
		t.Fatalf("lines = %d; want 1", len(lines))
	}
	if got, want := lines[0]["decision"], "keep"; got != want {
		t.Fatalf("decision = %v; want %v", got, want)
	}
	if _, ok := lines[0]["previous_best"]; ok {
		t.Fatal("previous_best present for empty outcome")
	}
}

func TestDecisionsRecordAfterCloseIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	d := NewDecisions(NewWriter(t.TempDir(), "decisions", 4, 1))
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	d.RecordDecision(capture.FrameRef{ContextID: "tab1", FrameID: "F1"}, capture.Outcome{Decision: capture.DecisionReplace})

	out := buf.String()
	if !strings.Contains(out, "decision journal closed") || !strings.Contains(out, "context_id=tab1") {
		t.Fatalf("log output = %q; want dropped entry line", out)
	}
}
