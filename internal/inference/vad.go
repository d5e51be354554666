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

// VADHandler runs voice activity detection against the normalized audio.
type VADHandler struct {
	cfg    *config.Config
	client *Client
	logger *slog.Logger
}

// NewVAD builds the VAD stage handler.
func NewVAD(cfg *config.Config, client *Client, logger *slog.Logger) *VADHandler {
	return &VADHandler{cfg: cfg, client: client, logger: logging.NewComponentLogger(logger, "vad")}
}

func (h *VADHandler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

func (h *VADHandler) Execute(ctx context.Context, req *stage.Request) (any, error) {
	var audio normalize.Artifact
	if err := req.Artifacts.Decode(stage.Normalize, &audio); err != nil {
		return nil, services.Wrap(services.ErrValidation, "vad", "load input", err.Error(), err)
	}

	request := struct {
		AudioPath string `json:"audio_path"`
	}{AudioPath: audio.Path}

	var response struct {
		Segments    []Span  `json:"segments"`
		SpeechRatio float64 `json:"speech_ratio"`
	}
	if err := h.client.Call(ctx, "vad", h.cfg.Inference.VADURL, request, &response); err != nil {
		return nil, err
	}
	if len(response.Segments) == 0 {
		return nil, services.Wrap(services.ErrStageFailure, "vad", "analyze audio",
			"No speech detected in the call audio", nil)
	}

	h.logger.Info("speech regions detected",
		logging.String(logging.FieldEventType, "stage_output"),
		logging.Int("segments", len(response.Segments)),
		logging.Float64("speech_ratio", response.SpeechRatio),
	)
	return VADArtifact{Segments: response.Segments, SpeechRatio: response.SpeechRatio}, nil
}

func (h *VADHandler) HealthCheck(ctx context.Context) stage.Health {
	if err := h.client.Ping(ctx, h.cfg.Inference.VADURL); err != nil {
		return stage.Unhealthy("vad", err.Error())
	}
	return stage.Healthy("vad")
}
