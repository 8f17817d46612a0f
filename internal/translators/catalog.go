package translators

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition describes one translator the engine can offer for a page.
type Definition struct {
	ID       string `yaml:"id" json:"id"`
	Label    string `yaml:"label" json:"label"`
	Priority int    `yaml:"priority" json:"priority"`
	ItemType string `yaml:"item_type" json:"item_type"`
	// Target is a regular expression matched against the frame URL.
	Target string `yaml:"target" json:"target"`
	// Detect is an optional JavaScript expression evaluated in the frame.
	// It yields the item type found on the page, or an empty string when the
	// page is not one this translator handles.
	Detect string `yaml:"detect,omitempty" json:"detect,omitempty"`

	target *regexp.Regexp
}

// Matches reports whether the translator targets url.
func (d *Definition) Matches(url string) bool {
	return d.target != nil && d.target.MatchString(url)
}

// Catalog is the set of translators loaded from YAML.
type Catalog struct {
	Translators []Definition `yaml:"translators"`
}

// LoadCatalog reads and validates a translator catalog. A missing file is
// reported wrapped around os.ErrNotExist so callers can fall back to an
// empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("translator catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog validates a YAML catalog document and compiles its targets.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("translator catalog: %w", err)
	}

	seen := make(map[string]bool, len(cat.Translators))
	for i := range cat.Translators {
		d := &cat.Translators[i]
		d.ID = strings.TrimSpace(d.ID)
		switch {
		case d.ID == "":
			return nil, fmt.Errorf("translator catalog: translators[%d] missing id", i)
		case seen[d.ID]:
			return nil, fmt.Errorf("translator catalog: duplicate id %q", d.ID)
		case strings.TrimSpace(d.Label) == "":
			return nil, fmt.Errorf("translator catalog: translators[%d] (%s) missing label", i, d.ID)
		case strings.TrimSpace(d.ItemType) == "":
			return nil, fmt.Errorf("translator catalog: translators[%d] (%s) missing item_type", i, d.ID)
		case d.Target == "":
			return nil, fmt.Errorf("translator catalog: translators[%d] (%s) missing target", i, d.ID)
		}
		re, err := regexp.Compile(d.Target)
		if err != nil {
			return nil, fmt.Errorf("translator catalog: translators[%d] (%s) target: %w", i, d.ID, err)
		}
		d.target = re
		seen[d.ID] = true
	}
	return &cat, nil
}

// Len returns the number of translators; nil catalogs are empty.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Translators)
}
