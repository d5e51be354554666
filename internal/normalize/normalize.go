package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"callaudit/internal/config"
	"callaudit/internal/fileutil"
	"callaudit/internal/ledger"
	"callaudit/internal/logging"
	"callaudit/internal/media/ffprobe"
	"callaudit/internal/services"
	"callaudit/internal/stage"
)

// Artifact is the normalize stage output recorded in the ledger.
type Artifact struct {
	Path            string  `json:"path"`
	DurationSeconds float64 `json:"duration_seconds"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	SizeBytes       int64   `json:"size_bytes"`
}

// Handler converts uploaded call audio into the canonical analysis format:
// mono 16 kHz signed 16-bit PCM WAV.
type Handler struct {
	cfg    *config.Config
	store  *ledger.Store
	logger *slog.Logger
}

// New builds the normalize stage handler.
func New(cfg *config.Config, store *ledger.Store, logger *slog.Logger) *Handler {
	return &Handler{cfg: cfg, store: store, logger: logging.NewComponentLogger(logger, "normalize")}
}

// SetLogger swaps in a contextual logger for the current attempt.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

func (h *Handler) Execute(ctx context.Context, req *stage.Request) (any, error) {
	source := strings.TrimSpace(req.Call.SourcePath)
	if source == "" {
		return nil, services.Wrap(services.ErrValidation, "normalize", "validate input",
			"Call has no source audio path", nil)
	}
	if _, err := os.Stat(source); err != nil {
		return nil, services.Wrap(services.ErrValidation, "normalize", "validate input",
			fmt.Sprintf("Source audio not found: %s", source), err)
	}

	probe, err := ffprobe.Inspect(ctx, h.cfg.FFprobeBinary(), source)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "normalize", "probe input",
			"ffprobe could not inspect the source audio", err)
	}
	if probe.AudioStreamCount() == 0 {
		return nil, services.Wrap(services.ErrValidation, "normalize", "probe input",
			"Source file contains no audio stream", nil)
	}

	outDir := filepath.Join(h.cfg.Paths.StagingDir, fmt.Sprintf("call-%d", req.Call.ID))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransient, "normalize", "prepare staging",
			"Could not create the staging directory", err)
	}
	outPath := filepath.Join(outDir, "normalized.wav")

	if h.alreadyCanonical(probe) {
		// Input is already in the analysis format. A verified copy avoids a
		// lossy decode/encode round trip.
		if err := fileutil.CopyVerified(source, outPath); err != nil {
			return nil, services.Wrap(services.ErrTransient, "normalize", "stage copy",
				"Could not copy the source audio into staging", err)
		}
		h.logger.Info("audio already canonical, copied without transcoding",
			logging.String(logging.FieldEventType, "stage_output"),
			logging.String("output_path", outPath),
		)
	} else {
		args := []string{
			"-hide_banner", "-nostdin", "-y",
			"-i", source,
			"-ac", strconv.Itoa(h.cfg.Audio.Channels),
			"-ar", strconv.Itoa(h.cfg.Audio.SampleRate),
			"-c:a", h.cfg.Audio.Codec,
			outPath,
		}
		cmd := exec.CommandContext(ctx, h.cfg.FFmpegBinary(), args...)
		if output, err := cmd.CombinedOutput(); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, services.Wrap(services.ErrExternalTool, "normalize", "transcode",
				fmt.Sprintf("ffmpeg failed: %s", lastLine(output)), err)
		}
	}

	normalized, err := ffprobe.Inspect(ctx, h.cfg.FFprobeBinary(), outPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "normalize", "probe output",
			"ffprobe could not inspect the normalized audio", err)
	}
	artifact := Artifact{
		Path:            outPath,
		DurationSeconds: normalized.DurationSeconds(),
		SampleRate:      h.cfg.Audio.SampleRate,
		Channels:        h.cfg.Audio.Channels,
		SizeBytes:       normalized.SizeBytes(),
	}

	if err := h.store.UpdateCallMedia(ctx, req.Call.ID,
		int(artifact.DurationSeconds+0.5), artifact.SizeBytes); err != nil {
		return nil, err
	}

	h.logger.Info("audio normalized",
		logging.String(logging.FieldEventType, "stage_output"),
		logging.String("output_path", outPath),
		logging.Float64("duration_seconds", artifact.DurationSeconds),
	)
	return artifact, nil
}

// alreadyCanonical reports whether the probed source already matches the
// analysis format exactly, making transcoding unnecessary.
func (h *Handler) alreadyCanonical(probe ffprobe.Result) bool {
	if !strings.Contains(strings.ToLower(probe.Format.FormatName), "wav") {
		return false
	}
	audio, ok := probe.AudioStream()
	if !ok {
		return false
	}
	return strings.EqualFold(audio.CodecName, h.cfg.Audio.Codec) &&
		audio.SampleRateHz() == h.cfg.Audio.SampleRate &&
		audio.Channels == h.cfg.Audio.Channels
}

func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	for _, binary := range []string{h.cfg.FFmpegBinary(), h.cfg.FFprobeBinary()} {
		if _, err := exec.LookPath(binary); err != nil {
			return stage.Unhealthy("normalize", fmt.Sprintf("%s not found in PATH", binary))
		}
	}
	return stage.Healthy("normalize")
}

func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
