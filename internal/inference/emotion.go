package inference

import (
	"context"
	"log/slog"

	"callaudit/internal/config"
	"callaudit/internal/ledger"
	"callaudit/internal/logging"
	"callaudit/internal/normalize"
	"callaudit/internal/services"
	"callaudit/internal/stage"
)

// EmotionHandler labels each transcript segment with a dominant emotion and
// writes the labels back onto the transcript rows.
type EmotionHandler struct {
	cfg    *config.Config
	client *Client
	store  *ledger.Store
	logger *slog.Logger
}

// NewEmotion builds the emotion analysis stage handler.
func NewEmotion(cfg *config.Config, client *Client, store *ledger.Store, logger *slog.Logger) *EmotionHandler {
	return &EmotionHandler{
		cfg: cfg, client: client, store: store,
		logger: logging.NewComponentLogger(logger, "emotion"),
	}
}

func (h *EmotionHandler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

func (h *EmotionHandler) Execute(ctx context.Context, req *stage.Request) (any, error) {
	var audio normalize.Artifact
	if err := req.Artifacts.Decode(stage.Normalize, &audio); err != nil {
		return nil, services.Wrap(services.ErrValidation, "emotion", "load input", err.Error(), err)
	}

	transcript, err := h.store.Transcript(ctx, req.Call.ID)
	if err != nil {
		return nil, err
	}
	if len(transcript) == 0 {
		return nil, services.Wrap(services.ErrValidation, "emotion", "load input",
			"Call has no transcript to analyze", nil)
	}

	type segmentRef struct {
		ID    int64   `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	}
	request := struct {
		AudioPath string       `json:"audio_path"`
		Segments  []segmentRef `json:"segments"`
	}{AudioPath: audio.Path}
	for _, seg := range transcript {
		request.Segments = append(request.Segments, segmentRef{
			ID: seg.ID, Start: seg.StartTime, End: seg.EndTime, Text: seg.Text,
		})
	}

	var response struct {
		Labels map[int64]string `json:"labels"`
	}
	if err := h.client.Call(ctx, "emotion", h.cfg.Inference.EmotionURL, request, &response); err != nil {
		return nil, err
	}
	if len(response.Labels) > 0 {
		if err := h.store.UpdateTranscriptEmotions(ctx, response.Labels); err != nil {
			return nil, err
		}
	}

	counts := make(map[string]int, len(response.Labels))
	for _, label := range response.Labels {
		counts[label]++
	}
	h.logger.Info("emotions labeled",
		logging.String(logging.FieldEventType, "stage_output"),
		logging.Int("labeled_segments", len(response.Labels)),
	)
	return EmotionArtifact{Counts: counts}, nil
}

func (h *EmotionHandler) HealthCheck(ctx context.Context) stage.Health {
	if err := h.client.Ping(ctx, h.cfg.Inference.EmotionURL); err != nil {
		return stage.Unhealthy("emotion", err.Error())
	}
	return stage.Healthy("emotion")
}
