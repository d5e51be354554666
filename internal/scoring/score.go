package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"callaudit/internal/config"
	"callaudit/internal/ledger"
	"callaudit/internal/logging"
	"callaudit/internal/services"
	"callaudit/internal/stage"
)

// Artifact is the score stage output recorded in the ledger.
type Artifact struct {
	OverallScore float64            `json:"overall_score"`
	PillarScores map[string]float64 `json:"pillar_scores"`
	Template     string             `json:"template"`
	Model        string             `json:"model"`
}

// Handler evaluates a transcribed call against its vertical's scoring
// template using an LLM and persists the resulting evaluation.
type Handler struct {
	cfg     *config.Config
	client  *LLMClient
	library *Library
	store   *ledger.Store
	logger  *slog.Logger
}

// New builds the scoring stage handler.
func New(cfg *config.Config, client *LLMClient, library *Library, store *ledger.Store, logger *slog.Logger) *Handler {
	return &Handler{
		cfg: cfg, client: client, library: library, store: store,
		logger: logging.NewComponentLogger(logger, "score"),
	}
}

func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

func (h *Handler) Execute(ctx context.Context, req *stage.Request) (any, error) {
	templateName := strings.TrimSpace(req.Call.TemplateName)
	if templateName == "" {
		templateName = h.cfg.Scoring.DefaultTemplate
	}
	template, err := h.library.Get(templateName)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "score", "resolve template", err.Error(), err)
	}

	transcript, err := h.store.Transcript(ctx, req.Call.ID)
	if err != nil {
		return nil, err
	}
	if len(transcript) == 0 {
		return nil, services.Wrap(services.ErrValidation, "score", "load transcript",
			"Call has no transcript to score", nil)
	}

	raw, err := h.client.Complete(ctx, systemPrompt(template), userPrompt(template, transcript))
	if err != nil {
		return nil, err
	}

	var graded struct {
		Scores  map[string]float64 `json:"scores"`
		Summary string             `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw), &graded); err != nil {
		return nil, services.Wrap(services.ErrStageFailure, "score", "parse grading",
			"LLM grading output is not valid JSON", err)
	}
	for code, value := range graded.Scores {
		if value < 0 || value > 100 {
			return nil, services.Wrap(services.ErrStageFailure, "score", "parse grading",
				fmt.Sprintf("Pillar %s score %.1f is outside 0-100", code, value), nil)
		}
	}
	for _, pillar := range template.Pillars {
		if _, ok := graded.Scores[pillar.Code]; !ok {
			return nil, services.Wrap(services.ErrStageFailure, "score", "parse grading",
				fmt.Sprintf("Grading output is missing pillar %s", pillar.Code), nil)
		}
	}

	overall := template.OverallScore(graded.Scores)
	pillarJSON, err := json.Marshal(graded.Scores)
	if err != nil {
		return nil, fmt.Errorf("encode pillar scores: %w", err)
	}
	if err := h.store.SaveEvaluation(ctx, &ledger.Evaluation{
		CallID:           req.Call.ID,
		OverallScore:     overall,
		PillarScoresJSON: string(pillarJSON),
		Summary:          graded.Summary,
		ModelUsed:        h.cfg.LLM.Model,
		PromptTemplate:   template.Name,
		RawOutputJSON:    raw,
	}); err != nil {
		return nil, err
	}

	h.logger.Info("call scored",
		logging.String(logging.FieldEventType, "stage_output"),
		logging.Float64("overall_score", overall),
		logging.String("template", template.Name),
	)
	return Artifact{
		OverallScore: overall,
		PillarScores: graded.Scores,
		Template:     template.Name,
		Model:        h.cfg.LLM.Model,
	}, nil
}

func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if !h.client.Configured() {
		return stage.Unhealthy("score", "LLM endpoint not configured")
	}
	return stage.Healthy("score")
}

func systemPrompt(template *Template) string {
	var b strings.Builder
	b.WriteString("You are a strict quality analyst grading a recorded customer call.\n")
	b.WriteString("Grade each pillar from 0 to 100. Respond with a JSON object of the form\n")
	b.WriteString(`{"scores": {"<pillar code>": <number>, ...}, "summary": "<two sentences>"}` + "\n\n")
	b.WriteString("Pillars:\n")
	for _, pillar := range template.Pillars {
		fmt.Fprintf(&b, "- %s (%s): %s\n", pillar.Code, pillar.Label, pillar.Description)
	}
	return b.String()
}

func userPrompt(template *Template, transcript []ledger.TranscriptSegment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vertical: %s\n\nTranscript:\n", template.Name)
	for _, segment := range transcript {
		fmt.Fprintf(&b, "[%.1f-%.1f] %s: %s", segment.StartTime, segment.EndTime, segment.SpeakerLabel, segment.Text)
		if segment.Emotion != "" {
			fmt.Fprintf(&b, " (%s)", segment.Emotion)
		}
		b.WriteString("\n")
	}
	return b.String()
}
