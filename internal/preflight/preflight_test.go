package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"callaudit/internal/config"
	"callaudit/internal/inference"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDiskSpace_OK(t *testing.T) {
	result := CheckDiskSpace("test", t.TempDir(), 1)
	if !result.Passed {
		t.Fatalf("expected pass for 1-byte requirement, got: %s", result.Detail)
	}
}

func TestCheckDiskSpace_BadPath(t *testing.T) {
	result := CheckDiskSpace("test", filepath.Join(t.TempDir(), "nope"), 1)
	if result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckSidecar_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckSidecar(context.Background(), inference.NewClient(0), "test", srv.URL+"/v1/vad")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckSidecar_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	result := CheckSidecar(context.Background(), inference.NewClient(0), "test", srv.URL+"/v1/vad")
	if result.Passed {
		t.Fatal("expected failure for unhealthy sidecar")
	}
}

func TestCheckSidecar_MissingEndpoint(t *testing.T) {
	result := CheckSidecar(context.Background(), inference.NewClient(0), "test", "")
	if result.Passed {
		t.Fatal("expected failure for missing endpoint")
	}
}

func TestCheckLLM_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), config.LLM{BaseURL: srv.URL, APIKey: "good-key", Model: "test"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckLLM_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), config.LLM{BaseURL: srv.URL, APIKey: "bad-key", Model: "test"})
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestCheckLLM_MissingBaseURL(t *testing.T) {
	result := CheckLLM(context.Background(), config.LLM{APIKey: "key"})
	if result.Passed {
		t.Fatal("expected failure for missing base url")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_IncludesOptionalSidecarsWhenEnabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Paths.MediaDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Inference.VADURL = srv.URL + "/v1/vad"
	cfg.Inference.OverlapURL = srv.URL + "/v1/overlap"
	cfg.Inference.DiarizeURL = srv.URL + "/v1/diarize"
	cfg.Inference.TranscribeURL = srv.URL + "/v1/transcribe"
	cfg.Inference.EmotionURL = srv.URL + "/v1/emotion"
	cfg.Pipeline.EnableOverlap = true
	cfg.Pipeline.EnableEmotion = true
	cfg.LLM.BaseURL = srv.URL
	cfg.LLM.APIKey = "test"

	results := RunAll(context.Background(), &cfg)
	names := make(map[string]bool, len(results))
	for _, r := range results {
		names[r.Name] = true
	}
	for _, want := range []string{"Overlap service", "Emotion service", "Scoring LLM"} {
		if !names[want] {
			t.Errorf("expected %q check in results", want)
		}
	}
}

func TestRunAll_SkipsOptionalSidecarsWhenDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Paths.MediaDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Pipeline.EnableOverlap = false
	cfg.Pipeline.EnableEmotion = false

	results := RunAll(context.Background(), &cfg)
	for _, r := range results {
		if r.Name == "Overlap service" || r.Name == "Emotion service" {
			t.Errorf("did not expect %q check when disabled", r.Name)
		}
	}
}
