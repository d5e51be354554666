package inference

import (
	"context"
	"log/slog"
	"strings"

	"callaudit/internal/config"
	"callaudit/internal/ledger"
	"callaudit/internal/logging"
	"callaudit/internal/normalize"
	"callaudit/internal/services"
	"callaudit/internal/stage"
)

// TranscribeHandler produces the speaker-attributed transcript and persists
// it to the ledger. The artifact carries only a summary; the transcript rows
// are the durable output.
type TranscribeHandler struct {
	cfg    *config.Config
	client *Client
	store  *ledger.Store
	logger *slog.Logger
}

// NewTranscribe builds the transcription stage handler.
func NewTranscribe(cfg *config.Config, client *Client, store *ledger.Store, logger *slog.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		cfg: cfg, client: client, store: store,
		logger: logging.NewComponentLogger(logger, "transcribe"),
	}
}

func (h *TranscribeHandler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

func (h *TranscribeHandler) Execute(ctx context.Context, req *stage.Request) (any, error) {
	var audio normalize.Artifact
	if err := req.Artifacts.Decode(stage.Normalize, &audio); err != nil {
		return nil, services.Wrap(services.ErrValidation, "transcribe", "load input", err.Error(), err)
	}
	var speakers DiarizeArtifact
	if err := req.Artifacts.Decode(stage.Diarize, &speakers); err != nil {
		return nil, services.Wrap(services.ErrValidation, "transcribe", "load input", err.Error(), err)
	}

	request := struct {
		AudioPath string `json:"audio_path"`
		Turns     []Turn `json:"turns"`
	}{AudioPath: audio.Path, Turns: speakers.Turns}

	var response struct {
		Language string `json:"language"`
		Segments []struct {
			Speaker    string  `json:"speaker"`
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
		} `json:"segments"`
	}
	if err := h.client.Call(ctx, "transcribe", h.cfg.Inference.TranscribeURL, request, &response); err != nil {
		return nil, err
	}
	if len(response.Segments) == 0 {
		return nil, services.Wrap(services.ErrStageFailure, "transcribe", "analyze audio",
			"Transcription produced no segments", nil)
	}

	segments := make([]ledger.TranscriptSegment, 0, len(response.Segments))
	wordCount := 0
	for _, seg := range response.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		wordCount += len(strings.Fields(text))
		segments = append(segments, ledger.TranscriptSegment{
			CallID:       req.Call.ID,
			SpeakerLabel: seg.Speaker,
			StartTime:    seg.Start,
			EndTime:      seg.End,
			Text:         text,
			Confidence:   seg.Confidence,
		})
	}
	if err := h.store.ReplaceTranscript(ctx, req.Call.ID, segments); err != nil {
		return nil, err
	}

	h.logger.Info("transcript persisted",
		logging.String(logging.FieldEventType, "stage_output"),
		logging.Int("segments", len(segments)),
		logging.Int("words", wordCount),
		logging.String("language", response.Language),
	)
	return TranscribeArtifact{
		SegmentCount: len(segments),
		Language:     response.Language,
		WordCount:    wordCount,
	}, nil
}

func (h *TranscribeHandler) HealthCheck(ctx context.Context) stage.Health {
	if err := h.client.Ping(ctx, h.cfg.Inference.TranscribeURL); err != nil {
		return stage.Unhealthy("transcribe", err.Error())
	}
	return stage.Healthy("transcribe")
}
