package translators

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgnsrekt/capturewatch/internal/capture"
)

// Evaluator runs a JavaScript expression inside a frame document and
// returns its string result.
type Evaluator interface {
	EvaluateInFrame(ctx context.Context, frame capture.FrameRef, expression string) (string, error)
}

// Engine detects which catalog translators apply to a frame.
type Engine struct {
	catalog     *Catalog
	eval        Evaluator
	evalTimeout time.Duration
}

// NewEngine builds an engine. eval may be nil, in which case translators
// with a detect expression never match.
func NewEngine(catalog *Catalog, eval Evaluator, evalTimeout time.Duration) *Engine {
	if catalog == nil {
		catalog = &Catalog{}
	}
	return &Engine{catalog: catalog, eval: eval, evalTimeout: evalTimeout}
}

func (e *Engine) Catalog() *Catalog { return e.catalog }

// DetectTranslators returns the matching translators for frame ordered by
// descending priority. An empty result means the page can only be saved
// generically.
func (e *Engine) DetectTranslators(ctx context.Context, frame capture.FrameRef) ([]capture.TranslatorMatch, error) {
	var matches []capture.TranslatorMatch
	for i := range e.catalog.Translators {
		if err := ctx.Err(); err != nil {
			return nil, &capture.CodedError{Code: capture.CodeEngineFailure, Message: "detection interrupted", Cause: err}
		}
		d := &e.catalog.Translators[i]
		if !d.Matches(frame.URL) {
			continue
		}

		itemType := d.ItemType
		if d.Detect != "" {
			detected, ok := e.detect(ctx, frame, d)
			if !ok {
				continue
			}
			itemType = detected
		}

		matches = append(matches, capture.TranslatorMatch{
			ID:       d.ID,
			Priority: d.Priority,
			Label:    d.Label,
			ItemType: itemType,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Priority > matches[j].Priority
	})
	return matches, nil
}

func (e *Engine) detect(ctx context.Context, frame capture.FrameRef, d *Definition) (string, bool) {
	if e.eval == nil {
		return "", false
	}
	evalCtx := ctx
	if e.evalTimeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, e.evalTimeout)
		defer cancel()
	}

	result, err := e.eval.EvaluateInFrame(evalCtx, frame, d.Detect)
	if err != nil {
		slog.Debug("translator detect failed", "translator", d.ID, "frame_id", frame.FrameID, "error", err)
		return "", false
	}
	switch result = strings.TrimSpace(result); result {
	case "", "false", "null", "undefined":
		return "", false
	case "true":
		return d.ItemType, true
	}
	return result, true
}
