package translators

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleCatalog = `
translators:
  - id: arxiv
    label: arXiv.org
    priority: 100
    item_type: preprint
    target: '^https?://arxiv\.org/abs/'
  - id: meta
    label: Embedded Metadata
    priority: 10
    item_type: webpage
    target: '^https?://'
    detect: "document.title ? 'webpage' : ''"
`

func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("ParseCatalog() error = %v", err)
	}
	if got, want := cat.Len(), 2; got != want {
		t.Fatalf("Len() = %d; want %d", got, want)
	}
	if !cat.Translators[0].Matches("https://arxiv.org/abs/2101.00001") {
		t.Fatal("arxiv target did not match abs page")
	}
	if cat.Translators[0].Matches("https://example.org/") {
		t.Fatal("arxiv target matched unrelated page")
	}
}

func TestParseCatalogRejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing id", "translators:\n  - label: x\n    item_type: webpage\n    target: x\n", "missing id"},
		{"duplicate id", "translators:\n  - {id: a, label: x, item_type: book, target: x}\n  - {id: a, label: y, item_type: book, target: y}\n", "duplicate id"},
		{"missing label", "translators:\n  - {id: a, item_type: book, target: x}\n", "missing label"},
		{"missing item type", "translators:\n  - {id: a, label: x, target: x}\n", "missing item_type"},
		{"missing target", "translators:\n  - {id: a, label: x, item_type: book}\n", "missing target"},
		{"bad target", "translators:\n  - {id: a, label: x, item_type: book, target: '('}\n", "target"},
		{"bad yaml", "translators: [", "translator catalog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.doc))
			if err == nil {
				t.Fatal("ParseCatalog() = nil; want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %q; want to contain %q", err, tt.want)
			}
		})
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("LoadCatalog() error = %v; want os.ErrNotExist", err)
	}
}

func TestLoadCatalogFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "translators.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatalf("os.WriteFile() failed: %v", err)
	}
	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if cat.Len() != 2 {
		t.Fatalf("Len() = %d; want 2", cat.Len())
	}
}

func TestShippedCatalogParses(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join("..", "..", "config", "translators.yaml"))
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if cat.Len() == 0 {
		t.Fatal("shipped catalog is empty")
	}
}
