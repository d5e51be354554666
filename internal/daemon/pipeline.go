package daemon

import (
	"fmt"
	"log/slog"
	"time"

	"callaudit/internal/config"
	"callaudit/internal/inference"
	"callaudit/internal/ledger"
	"callaudit/internal/normalize"
	"callaudit/internal/scoring"
	"callaudit/internal/stage"
)

// NewPipelineRegistry assembles the production stage registry: normalization,
// the inference sidecars, and scoring, gated by the optional-stage toggles.
func NewPipelineRegistry(cfg *config.Config, store *ledger.Store, logger *slog.Logger) (*stage.Registry, error) {
	client := inference.NewClient(time.Duration(cfg.Inference.RequestTimeout) * time.Second)

	library, err := scoring.LoadLibrary(cfg.Scoring.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("load scoring templates: %w", err)
	}

	handlers := stage.Handlers{
		Normalize:  normalize.New(cfg, store, logger),
		VAD:        inference.NewVAD(cfg, client, logger),
		Diarize:    inference.NewDiarize(cfg, client, logger),
		Transcribe: inference.NewTranscribe(cfg, client, store, logger),
		Score:      scoring.New(cfg, scoring.NewLLMClient(cfg.LLM), library, store, logger),
	}
	if cfg.Pipeline.EnableOverlap {
		handlers.Overlap = inference.NewOverlap(cfg, client, logger)
	}
	if cfg.Pipeline.EnableEmotion {
		handlers.Emotion = inference.NewEmotion(cfg, client, store, logger)
	}

	return stage.BuildRegistry(cfg, handlers)
}
