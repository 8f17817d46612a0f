package capture

import "time"

// ContextID identifies a browsing context (a tab). For CDP-backed tabs it is
// the target ID.
type ContextID string

// FrameID identifies a frame within a browsing context.
type FrameID string

// Affordance is the capture capability level exposed to the renderer.
type Affordance int

const (
	AffordanceDisabled Affordance = iota
	AffordanceGeneric
	AffordanceTranslatable
)

func (a Affordance) String() string {
	switch a {
	case AffordanceGeneric:
		return "generic"
	case AffordanceTranslatable:
		return "translatable"
	default:
		return "disabled"
	}
}

func (a Affordance) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// Decision is the outcome of comparing a candidate translator set with the
// cached one.
type Decision int

const (
	DecisionKeep Decision = iota
	DecisionReplace
	DecisionClear
)

func (d Decision) String() string {
	switch d {
	case DecisionReplace:
		return "replace"
	case DecisionClear:
		return "clear"
	default:
		return "keep"
	}
}

func (d Decision) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// TranslatorMatch is one candidate translator reported by the engine.
type TranslatorMatch struct {
	ID       string `json:"id,omitempty"`
	Priority int    `json:"priority"`
	Label    string `json:"label"`
	ItemType string `json:"item_type"`
}

// FrameRef names one document of one frame. Document changes whenever the
// frame navigates and Revision whenever the document is modified in place,
// so a FrameRef taken earlier no longer matches the live frame afterwards.
type FrameRef struct {
	ContextID ContextID `json:"context_id"`
	FrameID   FrameID   `json:"frame_id"`
	Document  string    `json:"document"`
	Revision  int       `json:"revision"`
	URL       string    `json:"url"`
}

// CaptureState is the cached best-known translator set for a browsing
// context.
type CaptureState struct {
	SaveEnabled bool              `json:"save_enabled"`
	Translators []TranslatorMatch `json:"translators"`
	FrameURL    string            `json:"frame_url"`
	IsTopFrame  bool              `json:"is_top_frame"`
	Frame       FrameRef          `json:"frame"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Best returns the highest priority translator, if any.
func (s *CaptureState) Best() (TranslatorMatch, bool) {
	if s == nil || len(s.Translators) == 0 {
		return TranslatorMatch{}, false
	}
	return s.Translators[0], true
}

// Affordance projects the state onto the renderer's capability level.
func (s *CaptureState) Affordance() Affordance {
	if s == nil || !s.SaveEnabled {
		return AffordanceDisabled
	}
	if len(s.Translators) > 0 {
		return AffordanceTranslatable
	}
	return AffordanceGeneric
}

func (s *CaptureState) clone() *CaptureState {
	if s == nil {
		return nil
	}
	out := *s
	out.Translators = append([]TranslatorMatch(nil), s.Translators...)
	return &out
}

// ContextSummary is a read-only view of one tracked browsing context.
type ContextSummary struct {
	ID         ContextID  `json:"id"`
	TopURL     string     `json:"top_url"`
	FrameCount int        `json:"frame_count"`
	Affordance Affordance `json:"affordance"`
	Selected   bool       `json:"selected"`
	OpenedAt   time.Time  `json:"opened_at"`
}
