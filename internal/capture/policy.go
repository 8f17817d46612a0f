package capture

import (
	"sort"
	"time"
)

// Candidate is a translator set reported for one frame document.
type Candidate struct {
	Frame       FrameRef
	IsTopFrame  bool
	Translators []TranslatorMatch
}

// Comparison holds the facts about the cached state that the policy cannot
// read from the states themselves.
type Comparison struct {
	// ExistingLive is false once the frame document that produced the cached
	// state has navigated, hidden or detached.
	ExistingLive bool
	// Nested is true when the candidate frame sits below the cached state's
	// frame in the frame tree.
	Nested bool
}

// Decide chooses between the cached state and a candidate. It is a pure
// function; the Registry supplies liveness and nesting.
func Decide(existing *CaptureState, cand Candidate, cmp Comparison) Decision {
	if existing == nil || !cmp.ExistingLive {
		return DecisionReplace
	}

	if len(cand.Translators) == 0 {
		// An empty result only drops translators its own frame produced.
		if existing.Frame.FrameID == cand.Frame.FrameID && len(existing.Translators) > 0 {
			return DecisionClear
		}
		return DecisionKeep
	}

	if len(existing.Translators) == 0 {
		return DecisionReplace
	}

	differentTarget := existing.FrameURL != cand.Frame.URL && !cmp.Nested
	if differentTarget && outranks(existing, cand) {
		return DecisionKeep
	}
	return DecisionReplace
}

// outranks reports whether the cached best translator beats the candidate's.
// Equal priorities go to the cached set unless only the candidate targets the
// top frame.
func outranks(existing *CaptureState, cand Candidate) bool {
	oldBest := existing.Translators[0].Priority
	newBest := cand.Translators[0].Priority
	if oldBest != newBest {
		return oldBest > newBest
	}
	return existing.IsTopFrame || !cand.IsTopFrame
}

// apply returns the state that results from decision. Keep returns existing
// unchanged.
func apply(existing *CaptureState, cand Candidate, decision Decision, now time.Time) *CaptureState {
	switch decision {
	case DecisionReplace:
		return &CaptureState{
			SaveEnabled: true,
			Translators: sortTranslators(cand.Translators),
			FrameURL:    cand.Frame.URL,
			IsTopFrame:  cand.IsTopFrame,
			Frame:       cand.Frame,
			UpdatedAt:   now,
		}
	case DecisionClear:
		return &CaptureState{
			SaveEnabled: true,
			Translators: []TranslatorMatch{},
			FrameURL:    existing.FrameURL,
			IsTopFrame:  existing.IsTopFrame,
			Frame:       existing.Frame,
			UpdatedAt:   now,
		}
	default:
		return existing
	}
}

// sortTranslators copies in and orders it by descending priority, keeping the
// engine's order among equals.
func sortTranslators(in []TranslatorMatch) []TranslatorMatch {
	out := make([]TranslatorMatch, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}
