package normalize_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"callaudit/internal/ledger"
	"callaudit/internal/logging"
	"callaudit/internal/normalize"
	"callaudit/internal/stage"
	"callaudit/internal/testsupport"
)

const probeTemplate = `{
  "streams": [
    {"index": 0, "codec_name": %q, "codec_type": "audio", "sample_rate": %q, "channels": %d}
  ],
  "format": {"format_name": %q, "duration": "4.2", "size": "1024"}
}`

// writeProbeStub installs an ffprobe replacement that always reports the
// given stream shape, and an ffmpeg replacement with the given behavior.
func writeStubs(t *testing.T, codec, sampleRate string, channels int, format, ffmpegScript string) {
	t.Helper()
	binDir := t.TempDir()

	probeJSON := fmt.Sprintf(probeTemplate, codec, sampleRate, channels, format)
	probeScript := "#!/bin/sh\ncat <<'EOF'\n" + probeJSON + "\nEOF\n"
	if err := os.WriteFile(filepath.Join(binDir, "ffprobe"), []byte(probeScript), 0o755); err != nil {
		t.Fatalf("write ffprobe stub: %v", err)
	}
	if err := os.WriteFile(filepath.Join(binDir, "ffmpeg"), []byte(ffmpegScript), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestExecuteTranscodesNonCanonicalAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)

	source := filepath.Join(t.TempDir(), "call.mp3")
	testsupport.WriteFile(t, source, 256)

	// ffmpeg writes its last argument so the output probe has a file to see.
	writeStubs(t, "mp3", "44100", 2, "mp3",
		"#!/bin/sh\nfor out; do :; done\n: > \"$out\"\n")

	call := testsupport.NewQueuedCall(t, store, func(c *ledger.Call) {
		c.SourcePath = source
	})

	handler := normalize.New(cfg, store, logging.NewNop())
	artifact, err := handler.Execute(context.Background(), &stage.Request{Call: call})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	result, ok := artifact.(normalize.Artifact)
	if !ok {
		t.Fatalf("unexpected artifact type %T", artifact)
	}
	if _, err := os.Stat(result.Path); err != nil {
		t.Fatalf("expected normalized output at %s: %v", result.Path, err)
	}
	if result.SampleRate != cfg.Audio.SampleRate || result.Channels != cfg.Audio.Channels {
		t.Fatalf("unexpected artifact: %+v", result)
	}

	refreshed, err := store.GetCall(context.Background(), call.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if refreshed.DurationSeconds != 4 {
		t.Fatalf("expected duration 4, got %d", refreshed.DurationSeconds)
	}
}

func TestExecuteCopiesCanonicalAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)

	source := filepath.Join(t.TempDir(), "call.wav")
	if err := os.WriteFile(source, []byte("canonical audio bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	// ffmpeg must not run when the input already matches the target format.
	writeStubs(t, cfg.Audio.Codec, fmt.Sprintf("%d", cfg.Audio.SampleRate), cfg.Audio.Channels, "wav",
		"#!/bin/sh\nexit 1\n")

	call := testsupport.NewQueuedCall(t, store, func(c *ledger.Call) {
		c.SourcePath = source
	})

	handler := normalize.New(cfg, store, logging.NewNop())
	artifact, err := handler.Execute(context.Background(), &stage.Request{Call: call})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	result := artifact.(normalize.Artifact)
	copied, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(copied) != "canonical audio bytes" {
		t.Fatalf("expected verified copy, got %q", copied)
	}
}

func TestExecuteRejectsMissingSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	call := testsupport.NewQueuedCall(t, store, func(c *ledger.Call) {
		c.SourcePath = filepath.Join(t.TempDir(), "absent.wav")
	})

	handler := normalize.New(cfg, store, logging.NewNop())
	if _, err := handler.Execute(context.Background(), &stage.Request{Call: call}); err == nil {
		t.Fatal("expected error for missing source")
	}
}
