package status

import (
	"time"

	"github.com/dgnsrekt/capturewatch/internal/capture"
)

const (
	iconWebPage    = "treeitem-webpage"
	iconCollection = "treesource-collection"
	saveLabel      = "Save to Library"

	// CommandNewItemFromPage saves the page as a generic web page item.
	CommandNewItemFromPage = "new-item-from-current-page"
)

// Badge is what a toolbar renderer needs to draw the capture button.
type Badge struct {
	Icon      string `json:"icon"`
	IconHiDPI string `json:"icon_hidpi"`
	Tooltip   string `json:"tooltip"`
	Command   string `json:"command"`
}

// View is the renderer-facing projection of one context's capture state.
type View struct {
	ContextID   capture.ContextID         `json:"context_id"`
	Affordance  string                    `json:"affordance" enum:"disabled,generic,translatable"`
	SaveEnabled bool                      `json:"save_enabled"`
	Best        *capture.TranslatorMatch  `json:"best,omitempty"`
	Translators []capture.TranslatorMatch `json:"translators"`
	FrameURL    string                    `json:"frame_url,omitempty"`
	IsTopFrame  bool                      `json:"is_top_frame"`
	Selected    bool                      `json:"selected"`
	Closed      bool                      `json:"closed,omitempty"`
	UpdatedAt   time.Time                 `json:"updated_at"`
	Badge       Badge                     `json:"badge"`
}

// BuildView projects st (which may be nil) for context id.
func BuildView(id capture.ContextID, st *capture.CaptureState, selected bool) View {
	v := View{
		ContextID:   id,
		Affordance:  st.Affordance().String(),
		Translators: []capture.TranslatorMatch{},
		Selected:    selected,
		Badge:       BadgeFor(st),
	}
	if st == nil {
		return v
	}
	v.SaveEnabled = st.SaveEnabled
	v.Translators = append(v.Translators, st.Translators...)
	v.FrameURL = st.FrameURL
	v.IsTopFrame = st.IsTopFrame
	v.UpdatedAt = st.UpdatedAt
	if best, ok := st.Best(); ok {
		v.Best = &best
	}
	return v
}

// BadgeFor derives icon, tooltip and command from a capture state.
func BadgeFor(st *capture.CaptureState) Badge {
	switch st.Affordance() {
	case capture.AffordanceTranslatable:
		best, _ := st.Best()
		b := Badge{Tooltip: saveLabel}
		if best.ItemType == "multiple" {
			b.Icon = iconCollection
			b.Tooltip += "…"
		} else {
			b.Icon = "itemtype-" + best.ItemType
		}
		b.Tooltip += " (" + best.Label + ")"
		b.IconHiDPI = b.Icon + "@2x"
		return b
	case capture.AffordanceGeneric:
		return Badge{
			Icon:      iconWebPage,
			IconHiDPI: iconWebPage + "@2x",
			Tooltip:   saveLabel + " (Web Page)",
			Command:   CommandNewItemFromPage,
		}
	default:
		return Badge{Icon: iconWebPage, IconHiDPI: iconWebPage + "@2x", Tooltip: saveLabel}
	}
}

// Health is reported by the health endpoint.
type Health struct {
	Contexts    int    `json:"contexts"`
	Translators int    `json:"translators"`
	QueueDepth  int    `json:"queue_depth"`
	Subscribers int    `json:"subscribers"`
	Uptime      string `json:"uptime"`
}
