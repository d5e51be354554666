package inference

import (
	"context"
	"log/slog"

	"callaudit/internal/config"
	"callaudit/internal/logging"
	"callaudit/internal/normalize"
	"callaudit/internal/services"
	"callaudit/internal/stage"
)

// OverlapHandler detects overlapped speech regions so diarization can treat
// them specially.
type OverlapHandler struct {
	cfg    *config.Config
	client *Client
	logger *slog.Logger
}

// NewOverlap builds the overlap detection stage handler.
func NewOverlap(cfg *config.Config, client *Client, logger *slog.Logger) *OverlapHandler {
	return &OverlapHandler{cfg: cfg, client: client, logger: logging.NewComponentLogger(logger, "overlap")}
}

func (h *OverlapHandler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

func (h *OverlapHandler) Execute(ctx context.Context, req *stage.Request) (any, error) {
	var audio normalize.Artifact
	if err := req.Artifacts.Decode(stage.Normalize, &audio); err != nil {
		return nil, services.Wrap(services.ErrValidation, "overlap", "load input", err.Error(), err)
	}
	var speech VADArtifact
	if err := req.Artifacts.Decode(stage.VAD, &speech); err != nil {
		return nil, services.Wrap(services.ErrValidation, "overlap", "load input", err.Error(), err)
	}

	request := struct {
		AudioPath string `json:"audio_path"`
		Segments  []Span `json:"segments"`
	}{AudioPath: audio.Path, Segments: speech.Segments}

	var response struct {
		Regions []Span `json:"regions"`
	}
	if err := h.client.Call(ctx, "overlap", h.cfg.Inference.OverlapURL, request, &response); err != nil {
		return nil, err
	}

	h.logger.Info("overlap regions detected",
		logging.String(logging.FieldEventType, "stage_output"),
		logging.Int("regions", len(response.Regions)),
	)
	return OverlapArtifact{Regions: response.Regions}, nil
}

func (h *OverlapHandler) HealthCheck(ctx context.Context) stage.Health {
	if err := h.client.Ping(ctx, h.cfg.Inference.OverlapURL); err != nil {
		return stage.Unhealthy("overlap", err.Error())
	}
	return stage.Healthy("overlap")
}
