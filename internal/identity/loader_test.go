package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func writeOverlay(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identities.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write overlay file: %v", err)
	}
	return path
}

func TestLoadOverlayNewIdentity(t *testing.T) {
	r := NewRegistry()
	path := writeOverlay(t, `
identities:
  - key: petalbot
    fragments: ["petalbot"]
    suffixes: ['petalsearch\.com$']
`)

	if err := r.LoadOverlay(path); err != nil {
		t.Fatalf("LoadOverlay failed: %v", err)
	}

	if got := r.Classify("Mozilla/5.0 (compatible; PetalBot;+https://webmaster.petalsearch.com)"); got != Key("petalbot") {
		t.Errorf("Classify = %q, want petalbot", got)
	}

	p := r.Profile(Key("petalbot"))
	if p == nil {
		t.Fatal("petalbot profile not registered")
	}
	if !p.MatchHostname("petalbot-114-119-128-1.petalsearch.com") {
		t.Error("overlay suffix pattern did not match")
	}
	if p.HasRangeSource() {
		t.Error("petalbot should not have range sources")
	}

	found := false
	for _, key := range r.Keys() {
		if key == Key("petalbot") {
			found = true
		}
	}
	if !found {
		t.Error("Keys() does not list the overlay identity")
	}
}

func TestLoadOverlayExtendsExistingIdentity(t *testing.T) {
	r := NewRegistry()
	path := writeOverlay(t, `
identities:
  - key: googlebot
    fragments: ["storebot-google"]
    suffixes: ['geo\.googlebot\.com$']
    range_sources: ["https://example.com/extra-ranges.json"]
`)

	if err := r.LoadOverlay(path); err != nil {
		t.Fatalf("LoadOverlay failed: %v", err)
	}

	if got := r.Classify("Mozilla/5.0 Storebot-Google/1.0"); got != Googlebot {
		t.Errorf("Classify = %q, want %q", got, Googlebot)
	}

	p := r.Profile(Googlebot)
	// Built-in patterns survive alongside the overlay additions.
	if !p.MatchHostname("crawl-66-249-66-1.googlebot.com") {
		t.Error("built-in suffix no longer matches")
	}
	if got := len(p.RangeSources); got != 3 {
		t.Errorf("range sources = %d, want 3", got)
	}

	// Built-in classifier entries still win where they appear first.
	if got := r.Classify("Googlebot/2.1"); got != Googlebot {
		t.Errorf("Classify = %q, want %q", got, Googlebot)
	}
}

func TestLoadOverlayExistingKeyWithoutFragments(t *testing.T) {
	// Built-in keys are already classifiable, so an overlay entry that only
	// adds suffixes is valid.
	r := NewRegistry()
	path := writeOverlay(t, `
identities:
  - key: bingbot
    suffixes: ['bing\.com$']
`)

	if err := r.LoadOverlay(path); err != nil {
		t.Fatalf("LoadOverlay failed: %v", err)
	}
	if !r.Profile(Bingbot).MatchHostname("crawler.bing.com") {
		t.Error("added suffix not matched")
	}
}

func TestLoadOverlayErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing key",
			content: `
identities:
  - fragments: ["x"]
`,
		},
		{
			name: "invalid suffix pattern",
			content: `
identities:
  - key: badbot
    suffixes: ['[unterminated']
`,
		},
		{
			// Such a key could never be reached by Classify.
			name: "new key without fragments",
			content: `
identities:
  - key: ghostbot
    suffixes: ['ghost\.example$']
`,
		},
		{
			name:    "invalid yaml",
			content: "identities: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			path := writeOverlay(t, tt.content)
			if err := r.LoadOverlay(path); err == nil {
				t.Error("LoadOverlay succeeded, want error")
			}
		})
	}
}

func TestLoadOverlayMissingFile(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadOverlay(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadOverlay succeeded on missing file, want error")
	}
}
