package scoring

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinTemplatesValidate(t *testing.T) {
	library, err := LoadLibrary("")
	if err != nil {
		t.Fatalf("load library: %v", err)
	}
	for _, name := range []string{"sales", "support", "collections"} {
		if _, err := library.Get(name); err != nil {
			t.Fatalf("missing builtin template %s: %v", name, err)
		}
	}
}

func TestOverallScoreWeighting(t *testing.T) {
	library, err := LoadLibrary("")
	if err != nil {
		t.Fatalf("load library: %v", err)
	}
	sales, err := library.Get("sales")
	if err != nil {
		t.Fatalf("get sales: %v", err)
	}

	scores := map[string]float64{"CQS": 80, "ECS": 60, "PHS": 100, "DIS": 40, "ROS": 20}
	got := sales.OverallScore(scores)
	want := 80*0.25 + 60*0.25 + 100*0.20 + 40*0.15 + 20*0.15
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %.2f, got %.2f", want, got)
	}
}

func TestLoadLibraryReadsCustomTemplates(t *testing.T) {
	dir := t.TempDir()
	custom := `
name = "retention"

[[pillars]]
code = "SAV"
label = "Save Attempt"
weight = 0.6

[[pillars]]
code = "ALT"
label = "Alternatives Offered"
weight = 0.4
`
	if err := os.WriteFile(filepath.Join(dir, "retention.toml"), []byte(custom), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}

	library, err := LoadLibrary(dir)
	if err != nil {
		t.Fatalf("load library: %v", err)
	}
	tpl, err := library.Get("retention")
	if err != nil {
		t.Fatalf("get retention: %v", err)
	}
	if len(tpl.Pillars) != 2 {
		t.Fatalf("expected 2 pillars, got %d", len(tpl.Pillars))
	}
}

func TestLoadLibraryRejectsBadWeights(t *testing.T) {
	dir := t.TempDir()
	bad := `
name = "broken"

[[pillars]]
code = "A"
label = "A"
weight = 0.5
`
	if err := os.WriteFile(filepath.Join(dir, "broken.toml"), []byte(bad), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if _, err := LoadLibrary(dir); err == nil {
		t.Fatal("weights that do not sum to 1.0 should be rejected")
	}
}

func TestValidateRejectsDuplicatePillars(t *testing.T) {
	tpl := &Template{
		Name: "dup",
		Pillars: []Pillar{
			{Code: "A", Label: "A", Weight: 0.5},
			{Code: "A", Label: "A again", Weight: 0.5},
		},
	}
	if err := tpl.Validate(); err == nil {
		t.Fatal("duplicate pillar codes should be rejected")
	}
}
