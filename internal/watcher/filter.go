package watcher

import (
	"net/url"
	"strings"
)

// DefaultDomainBlocklist lists ad and tracking hosts whose frames are never
// worth detecting.
var DefaultDomainBlocklist = []string{
	"googlesyndication.com",
	"doubleclick.net",
	"questionmarket.com",
	"atdmt.com",
	"aggregateknowledge.com",
	"ad.yieldmanager.com",
}

// DefaultLocationBlocklist lists browser-internal pages that are never
// captured.
var DefaultLocationBlocklist = []string{
	"chrome://newtab/",
	"chrome://new-tab-page/",
}

// Filter decides which frame documents are tracked at all.
type Filter struct {
	domains   []string
	locations map[string]bool
}

func NewFilter(domains, locations []string) *Filter {
	f := &Filter{locations: make(map[string]bool, len(locations))}
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			f.domains = append(f.domains, d)
		}
	}
	for _, l := range locations {
		if l = strings.TrimSpace(l); l != "" {
			f.locations[l] = true
		}
	}
	return f
}

// Allow reports whether a document at rawURL should be tracked, and why not
// when it should not.
func (f *Filter) Allow(rawURL string) (bool, string) {
	if strings.HasPrefix(rawURL, "about:") {
		return false, "about page"
	}
	if f.locations[rawURL] {
		return false, "blocked location"
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return true, ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" && strings.Contains(rawURL, "tinymce/") {
		return false, "editor popup"
	}
	for _, d := range f.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return false, "blocked domain"
		}
	}
	return true, ""
}
