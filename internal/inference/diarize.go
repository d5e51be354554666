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

// DiarizeHandler assigns speaker labels to the speech regions.
type DiarizeHandler struct {
	cfg    *config.Config
	client *Client
	logger *slog.Logger
}

// NewDiarize builds the diarization stage handler.
func NewDiarize(cfg *config.Config, client *Client, logger *slog.Logger) *DiarizeHandler {
	return &DiarizeHandler{cfg: cfg, client: client, logger: logging.NewComponentLogger(logger, "diarize")}
}

func (h *DiarizeHandler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

func (h *DiarizeHandler) Execute(ctx context.Context, req *stage.Request) (any, error) {
	var audio normalize.Artifact
	if err := req.Artifacts.Decode(stage.Normalize, &audio); err != nil {
		return nil, services.Wrap(services.ErrValidation, "diarize", "load input", err.Error(), err)
	}
	var speech VADArtifact
	if err := req.Artifacts.Decode(stage.VAD, &speech); err != nil {
		return nil, services.Wrap(services.ErrValidation, "diarize", "load input", err.Error(), err)
	}

	request := struct {
		AudioPath string `json:"audio_path"`
		Segments  []Span `json:"segments"`
		Overlaps  []Span `json:"overlaps,omitempty"`
	}{AudioPath: audio.Path, Segments: speech.Segments}

	if req.Artifacts.Has(stage.Overlap) {
		var overlaps OverlapArtifact
		if err := req.Artifacts.Decode(stage.Overlap, &overlaps); err != nil {
			return nil, services.Wrap(services.ErrValidation, "diarize", "load input", err.Error(), err)
		}
		request.Overlaps = overlaps.Regions
	}

	var response struct {
		Turns       []Turn `json:"turns"`
		NumSpeakers int    `json:"num_speakers"`
	}
	if err := h.client.Call(ctx, "diarize", h.cfg.Inference.DiarizeURL, request, &response); err != nil {
		return nil, err
	}
	if len(response.Turns) == 0 {
		return nil, services.Wrap(services.ErrStageFailure, "diarize", "analyze audio",
			"Diarization produced no speaker turns", nil)
	}

	h.logger.Info("speakers diarized",
		logging.String(logging.FieldEventType, "stage_output"),
		logging.Int("turns", len(response.Turns)),
		logging.Int("num_speakers", response.NumSpeakers),
	)
	return DiarizeArtifact{Turns: response.Turns, NumSpeakers: response.NumSpeakers}, nil
}

func (h *DiarizeHandler) HealthCheck(ctx context.Context) stage.Health {
	if err := h.client.Ping(ctx, h.cfg.Inference.DiarizeURL); err != nil {
		return stage.Unhealthy("diarize", err.Error())
	}
	return stage.Healthy("diarize")
}
