package mapping

import (
	"context"
	"path/filepath"
	"testing"
)

func testAssets() *Assets {
	return &Assets{
		SourcePrefix: "modus-",
		TargetPrefix: "modus-wc-",
		Components: map[string]ComponentMapping{
			"modus-alert":  {Target: "modus-wc-alert", Props: []string{"message"}},
			"modus-button": {Target: "modus-wc-button", Props: []string{"size", "variant"}},
			"modus-chip":   {}, // no target equivalent
		},
		Plan:  []string{"Step 1: replace mapped tags"},
		Rules: []string{"No source-library tags may remain"},
	}
}

func TestExtractTags(t *testing.T) {
	code := `<div>
		<modus-alert message="hi"></modus-alert>
		<modus-button size="small"></modus-button>
		<modus-alert message="again"></modus-alert>
		<span class="modus-like"></span>
	</div>`

	tags := ExtractTags(code, "modus-")
	want := []string{"modus-alert", "modus-button"}
	if len(tags) != len(want) {
		t.Fatalf("expected %v, got %v", want, tags)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, tags[i], want[i])
		}
	}
}

func TestExtractTags_NoPrefixMatchesAllCustomElements(t *testing.T) {
	code := `<my-widget></my-widget><div></div><other-thing/>`
	tags := ExtractTags(code, "")
	if len(tags) != 2 || tags[0] != "my-widget" || tags[1] != "other-thing" {
		t.Errorf("expected [my-widget other-thing], got %v", tags)
	}
}

func TestAssets_TargetFor(t *testing.T) {
	a := testAssets()
	if got := a.TargetFor("modus-alert"); got != "modus-wc-alert" {
		t.Errorf("expected modus-wc-alert, got %q", got)
	}
	if got := a.TargetFor("modus-chip"); got != "" {
		t.Errorf("unmapped component should yield empty target, got %q", got)
	}
	if got := a.TargetFor("modus-unknown"); got != "" {
		t.Errorf("unknown component should yield empty target, got %q", got)
	}
}

func TestAssets_KnownTargetTags(t *testing.T) {
	known := testAssets().KnownTargetTags()
	if !known["modus-wc-alert"] || !known["modus-wc-button"] {
		t.Errorf("missing expected targets: %v", known)
	}
	if len(known) != 2 {
		t.Errorf("expected 2 targets, got %v", known)
	}
}

func TestAssets_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.json")
	in := testAssets()
	if err := in.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.SourcePrefix != in.SourcePrefix || out.TargetPrefix != in.TargetPrefix {
		t.Errorf("prefixes lost: %+v", out)
	}
	if out.TargetFor("modus-button") != "modus-wc-button" {
		t.Errorf("component map lost: %+v", out.Components)
	}
	if len(out.Plan) != 1 || len(out.Rules) != 1 {
		t.Errorf("guidance blocks lost: %+v", out)
	}
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	got, err := repo.LoadAssets(ctx)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil assets before store, got %+v", got)
	}

	if err := repo.StoreAssets(ctx, testAssets()); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err = repo.LoadAssets(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.TargetFor("modus-alert") != "modus-wc-alert" {
		t.Errorf("unexpected assets: %+v", got)
	}
}
