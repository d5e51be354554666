package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"callaudit/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Fatalf("expected default workers, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.StageRetries != 1 {
		t.Fatalf("expected default stage retries, got %d", cfg.Pipeline.StageRetries)
	}
}

func TestLoadParsesAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
staging_dir = "` + filepath.Join(dir, "staging") + `"
media_dir = "` + filepath.Join(dir, "media") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[pipeline]
workers = 2
resource_profile = "gpu"

[pipeline.stage_timeouts.gpu]
score = 123
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Pipeline.Workers != 2 {
		t.Fatalf("expected workers=2, got %d", cfg.Pipeline.Workers)
	}
	if got := cfg.StageTimeoutSeconds("score"); got != 123 {
		t.Fatalf("expected score timeout override 123, got %d", got)
	}
	if got := cfg.StageTimeoutSeconds("vad"); got != 300 {
		t.Fatalf("expected gpu default vad timeout 300, got %d", got)
	}
	if !filepath.IsAbs(cfg.Paths.StagingDir) {
		t.Fatalf("expected absolute staging dir, got %q", cfg.Paths.StagingDir)
	}
}

func TestValidateRejectsBadProfile(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.ResourceProfile = "tpu"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "resource_profile") {
		t.Fatalf("expected resource_profile error, got %v", err)
	}
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.StageTimeouts = map[string]map[string]int{"cpu": {"score": 0}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero timeout")
	}
}

func TestStageTimeoutFallsBackToCPUDefaults(t *testing.T) {
	cfg := config.Default()
	if got := cfg.StageTimeoutSeconds("transcribe"); got != 5400 {
		t.Fatalf("expected cpu transcribe default 5400, got %d", got)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(dir, "staging")
	cfg.Paths.MediaDir = filepath.Join(dir, "media")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, d := range []string{cfg.Paths.StagingDir, cfg.Paths.MediaDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q, err=%v", d, err)
		}
	}
}
