package preflight

import (
	"context"

	"callaudit/internal/config"
	"callaudit/internal/inference"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks for optional stages run only when the stage is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results,
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Media directory", cfg.Paths.MediaDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDiskSpace("Staging free space", cfg.Paths.StagingDir, minFreeBytes),
	)

	client := inference.NewClient(0)
	results = append(results,
		CheckSidecar(ctx, client, "VAD service", cfg.Inference.VADURL),
		CheckSidecar(ctx, client, "Diarization service", cfg.Inference.DiarizeURL),
		CheckSidecar(ctx, client, "Transcription service", cfg.Inference.TranscribeURL),
	)
	if cfg.Pipeline.EnableOverlap {
		results = append(results, CheckSidecar(ctx, client, "Overlap service", cfg.Inference.OverlapURL))
	}
	if cfg.Pipeline.EnableEmotion {
		results = append(results, CheckSidecar(ctx, client, "Emotion service", cfg.Inference.EmotionURL))
	}

	results = append(results, CheckLLM(ctx, cfg.LLM))
	return results
}
