package scoring

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Pillar is one weighted dimension of a scoring template.
type Pillar struct {
	Code        string  `toml:"code" json:"code"`
	Label       string  `toml:"label" json:"label"`
	Weight      float64 `toml:"weight" json:"weight"`
	Description string  `toml:"description" json:"description"`
}

// Template defines how calls for one business vertical are evaluated.
type Template struct {
	Name    string   `toml:"name" json:"name"`
	Pillars []Pillar `toml:"pillars" json:"pillars"`
}

// Validate checks that the pillar weights form a proper distribution.
func (t *Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template requires a name")
	}
	if len(t.Pillars) == 0 {
		return fmt.Errorf("template %q has no pillars", t.Name)
	}
	total := 0.0
	seen := make(map[string]bool, len(t.Pillars))
	for _, pillar := range t.Pillars {
		if strings.TrimSpace(pillar.Code) == "" {
			return fmt.Errorf("template %q has a pillar without a code", t.Name)
		}
		if seen[pillar.Code] {
			return fmt.Errorf("template %q repeats pillar %q", t.Name, pillar.Code)
		}
		seen[pillar.Code] = true
		if pillar.Weight <= 0 {
			return fmt.Errorf("template %q pillar %q has non-positive weight", t.Name, pillar.Code)
		}
		total += pillar.Weight
	}
	if total < 0.999 || total > 1.001 {
		return fmt.Errorf("template %q weights sum to %.3f, want 1.0", t.Name, total)
	}
	return nil
}

// OverallScore computes the weighted score from per-pillar values (0-100).
// Pillars missing from scores contribute zero.
func (t *Template) OverallScore(scores map[string]float64) float64 {
	total := 0.0
	for _, pillar := range t.Pillars {
		total += scores[pillar.Code] * pillar.Weight
	}
	return total
}

func builtinTemplates() map[string]*Template {
	return map[string]*Template{
		"sales": {
			Name: "sales",
			Pillars: []Pillar{
				{Code: "CQS", Label: "Call Qualification", Weight: 0.25, Description: "Did the agent qualify the prospect's needs, budget, and authority?"},
				{Code: "ECS", Label: "Engagement & Connection", Weight: 0.25, Description: "Rapport, active listening, and conversational balance."},
				{Code: "PHS", Label: "Product Handling", Weight: 0.20, Description: "Accuracy and relevance of product positioning."},
				{Code: "DIS", Label: "Discovery", Weight: 0.15, Description: "Depth of discovery questions and pain identification."},
				{Code: "ROS", Label: "Resolution & Next Steps", Weight: 0.15, Description: "Clear close and committed next steps."},
			},
		},
		"support": {
			Name: "support",
			Pillars: []Pillar{
				{Code: "FCR", Label: "First Contact Resolution", Weight: 0.30, Description: "Was the issue resolved without requiring a follow-up?"},
				{Code: "EMP", Label: "Empathy", Weight: 0.25, Description: "Acknowledgement of the customer's frustration and situation."},
				{Code: "EFF", Label: "Efficiency", Weight: 0.20, Description: "Time to resolution relative to issue complexity."},
				{Code: "SAT", Label: "Satisfaction Signals", Weight: 0.15, Description: "Customer sentiment at close of call."},
				{Code: "PRK", Label: "Product Knowledge", Weight: 0.10, Description: "Technical accuracy of the assistance given."},
			},
		},
		"collections": {
			Name: "collections",
			Pillars: []Pillar{
				{Code: "CMP", Label: "Compliance", Weight: 0.40, Description: "Required disclosures given and prohibited language avoided."},
				{Code: "NEG", Label: "Negotiation", Weight: 0.25, Description: "Quality of the payment negotiation."},
				{Code: "PTP", Label: "Promise to Pay", Weight: 0.20, Description: "Whether a concrete payment commitment was secured."},
				{Code: "AMT", Label: "Amount Recovered", Weight: 0.15, Description: "Recovered amount relative to balance."},
			},
		},
	}
}

// Library resolves scoring templates by name, merging built-in verticals
// with operator-provided TOML files.
type Library struct {
	templates map[string]*Template
}

// LoadLibrary builds the template library. Files named *.toml under dir
// override or extend the built-in set; dir may be empty.
func LoadLibrary(dir string) (*Library, error) {
	templates := builtinTemplates()

	if dir = strings.TrimSpace(dir); dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read template directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read template %s: %w", path, err)
			}
			var tpl Template
			if err := toml.Unmarshal(raw, &tpl); err != nil {
				return nil, fmt.Errorf("parse template %s: %w", path, err)
			}
			if tpl.Name == "" {
				tpl.Name = strings.TrimSuffix(entry.Name(), ".toml")
			}
			templates[tpl.Name] = &tpl
		}
	}

	for name, tpl := range templates {
		if err := tpl.Validate(); err != nil {
			return nil, fmt.Errorf("template %s: %w", name, err)
		}
	}
	return &Library{templates: templates}, nil
}

// Get returns the named template.
func (l *Library) Get(name string) (*Template, error) {
	tpl, ok := l.templates[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("unknown scoring template %q", name)
	}
	return tpl, nil
}

// Names returns the available template names.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	return names
}
