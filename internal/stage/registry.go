package stage

import (
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"callaudit/internal/config"
)

// Canonical stage names in pipeline order.
const (
	Normalize  = "normalize"
	VAD        = "vad"
	Overlap    = "overlap"
	Diarize    = "diarize"
	Transcribe = "transcribe"
	Emotion    = "emotion"
	Score      = "score"
)

// Definition binds a stage name to its handler and execution policy.
type Definition struct {
	Name      string
	Handler   Handler
	Retryable bool
	// Requires lists predecessor stages whose artifacts must exist before
	// this stage may run.
	Requires []string
	// Timeout bounds a single attempt. Zero means no per-stage limit.
	Timeout time.Duration
}

// Registry is the ordered, immutable set of stages the pipeline runs.
// Order is fixed at construction; the scheduler derives each call's next
// stage from this order minus the call's completed ledger entries.
type Registry struct {
	order []Definition
	index map[string]int
}

// NewRegistry builds a registry from explicit definitions. Definitions run
// in the order given; duplicate names are rejected.
func NewRegistry(defs ...Definition) (*Registry, error) {
	registry := &Registry{index: make(map[string]int, len(defs))}
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("stage definition requires a name")
		}
		if def.Handler == nil {
			return nil, fmt.Errorf("stage %q requires a handler", def.Name)
		}
		if _, exists := registry.index[def.Name]; exists {
			return nil, fmt.Errorf("stage %q registered twice", def.Name)
		}
		for _, required := range def.Requires {
			if _, exists := registry.index[required]; !exists {
				return nil, fmt.Errorf("stage %q requires %q, which is not registered before it", def.Name, required)
			}
		}
		registry.index[def.Name] = len(registry.order)
		registry.order = append(registry.order, def)
	}
	if len(registry.order) == 0 {
		return nil, fmt.Errorf("registry requires at least one stage")
	}
	return registry, nil
}

// Handlers groups the stage implementations used to build the default
// pipeline. Optional stages may be nil when disabled in configuration.
type Handlers struct {
	Normalize  Handler
	VAD        Handler
	Overlap    Handler
	Diarize    Handler
	Transcribe Handler
	Emotion    Handler
	Score      Handler
}

// BuildRegistry assembles the production pipeline from configuration.
// Overlap and emotion are configuration-time optional: when disabled they are
// simply absent from the registry, and every registered stage carries the
// same failure semantics.
func BuildRegistry(cfg *config.Config, handlers Handlers) (*Registry, error) {
	timeout := func(name string) time.Duration {
		return time.Duration(cfg.StageTimeoutSeconds(name)) * time.Second
	}

	defs := []Definition{
		{Name: Normalize, Handler: handlers.Normalize, Retryable: true, Timeout: timeout(Normalize)},
		{Name: VAD, Handler: handlers.VAD, Retryable: true, Requires: []string{Normalize}, Timeout: timeout(VAD)},
	}
	diarizeRequires := []string{Normalize, VAD}
	if cfg.Pipeline.EnableOverlap {
		defs = append(defs, Definition{
			Name: Overlap, Handler: handlers.Overlap, Retryable: true,
			Requires: []string{Normalize, VAD}, Timeout: timeout(Overlap),
		})
		diarizeRequires = append(diarizeRequires, Overlap)
	}
	defs = append(defs,
		Definition{Name: Diarize, Handler: handlers.Diarize, Retryable: true,
			Requires: diarizeRequires, Timeout: timeout(Diarize)},
		Definition{Name: Transcribe, Handler: handlers.Transcribe, Retryable: true,
			Requires: []string{Normalize, Diarize}, Timeout: timeout(Transcribe)},
	)
	scoreRequires := []string{Transcribe}
	if cfg.Pipeline.EnableEmotion {
		defs = append(defs, Definition{
			Name: Emotion, Handler: handlers.Emotion, Retryable: true,
			Requires: []string{Normalize, Transcribe}, Timeout: timeout(Emotion),
		})
		scoreRequires = append(scoreRequires, Emotion)
	}
	defs = append(defs, Definition{
		Name: Score, Handler: handlers.Score, Retryable: true,
		Requires: scoreRequires, Timeout: timeout(Score),
	})
	return NewRegistry(defs...)
}

// Names returns the stage names in pipeline order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	for i, def := range r.order {
		names[i] = def.Name
	}
	return names
}

// Get returns the definition for a stage name.
func (r *Registry) Get(name string) (Definition, bool) {
	i, ok := r.index[name]
	if !ok {
		return Definition{}, false
	}
	return r.order[i], true
}

// Contains reports whether the stage is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Next returns the first stage in pipeline order without a completed ledger
// entry. The second return is false when every stage has completed.
func (r *Registry) Next(completed map[string]bool) (Definition, bool) {
	for _, def := range r.order {
		if !completed[def.Name] {
			return def, true
		}
	}
	return Definition{}, false
}

// Ready reports whether every predecessor artifact the stage requires is
// present, naming the first missing one otherwise.
func (r *Registry) Ready(name string, artifacts Artifacts) (string, bool) {
	def, ok := r.Get(name)
	if !ok {
		return name, false
	}
	for _, required := range def.Requires {
		if !artifacts.Has(required) {
			return required, false
		}
	}
	return "", true
}

var titleCaser = cases.Title(language.English)

// DisplayName renders a stage name for operator-facing output.
func DisplayName(name string) string {
	switch name {
	case VAD:
		return "VAD"
	default:
		return titleCaser.String(name)
	}
}
