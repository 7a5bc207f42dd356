package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSeedFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestOverlayLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeSeedFile(t, dir, "extra.yaml", `
version: "1"
items:
  - id: seed_pause
    advice: "Take a breath before replying."
    triggerTone: alert
    categories: [deescalation]
  - advice: "Name one thing you appreciate about them."
    triggerTone: clear
  - advice: ""
    triggerTone: alert
`)
	writeSeedFile(t, dir, "broken.yaml", "items: [not valid yaml")

	p, err := FromBlobs(nil)
	if err != nil {
		t.Fatal(err)
	}
	loader := NewOverlayLoader(p, dir)
	loaded, err := loader.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll error: %v", err)
	}
	// Two valid items; the empty-advice item and the broken file are skipped.
	if loaded != 2 {
		t.Errorf("loaded = %d, want 2", loaded)
	}

	items := p.TherapyAdvice()
	if len(items) != 2 {
		t.Fatalf("corpus size = %d, want 2", len(items))
	}
	if items[0].ID != "seed_pause" {
		t.Errorf("first item id = %q", items[0].ID)
	}
	if items[1].ID == "" {
		t.Error("missing id should be stamped with a generated one")
	}
}

func TestOverlayDedupeByID(t *testing.T) {
	dir := t.TempDir()
	writeSeedFile(t, dir, "a.yaml", `
items:
  - id: dup
    advice: "First wins."
    triggerTone: clear
`)
	writeSeedFile(t, dir, "b.yaml", `
items:
  - id: dup
    advice: "Second is skipped."
    triggerTone: clear
`)

	p, _ := FromBlobs(nil)
	loader := NewOverlayLoader(p, dir)
	loaded, err := loader.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if loaded != 1 {
		t.Errorf("loaded = %d, want 1 (duplicate id skipped)", loaded)
	}
}
