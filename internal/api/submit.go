package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"callaudit/internal/config"
	"callaudit/internal/ledger"
	"callaudit/internal/logging"
	"callaudit/internal/scoring"
)

// audioExtensions lists the recording formats accepted for submission.
// The normalize stage converts everything else about the audio; only the
// container has to be recognizable here.
var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".m4a":  true,
}

type SubmitRequest struct {
	Config       *config.Config
	Store        *ledger.Store
	Logger       *slog.Logger
	Paths        []string
	UserID       string
	TemplateName string
	AsBatch      bool
}

type SubmitResult struct {
	BatchID string
	Calls   []CallView
}

// SubmitCalls validates the request, expands directories into audio files,
// and enqueues one call per file. More than one file, or an explicit batch
// request, groups the calls under a new batch for aggregate reporting.
func SubmitCalls(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	cfg := req.Config
	if cfg == nil {
		return SubmitResult{}, fmt.Errorf("configuration is required")
	}
	if req.Store == nil {
		return SubmitResult{}, fmt.Errorf("ledger store is required")
	}
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return SubmitResult{}, fmt.Errorf("user id is required")
	}

	template := strings.TrimSpace(req.TemplateName)
	if template == "" {
		template = cfg.Scoring.DefaultTemplate
	}
	library, err := scoring.LoadLibrary(cfg.Scoring.TemplateDir)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("load scoring templates: %w", err)
	}
	if _, err := library.Get(template); err != nil {
		return SubmitResult{}, fmt.Errorf("unknown scoring template %q (known: %s)", template, strings.Join(library.Names(), ", "))
	}

	files, err := expandAudioPaths(req.Paths)
	if err != nil {
		return SubmitResult{}, err
	}
	if len(files) == 0 {
		return SubmitResult{}, fmt.Errorf("no audio files found in the given paths")
	}

	var batchID string
	if req.AsBatch || len(files) > 1 {
		batch, err := req.Store.CreateBatch(ctx, userID, len(files))
		if err != nil {
			return SubmitResult{}, fmt.Errorf("create batch: %w", err)
		}
		batchID = batch.ID
	}

	result := SubmitResult{BatchID: batchID, Calls: make([]CallView, 0, len(files))}
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return result, fmt.Errorf("stat %s: %w", path, err)
		}
		call, err := req.Store.CreateCall(ctx, &ledger.Call{
			UserID:           userID,
			BatchID:          batchID,
			TemplateName:     template,
			SourcePath:       path,
			OriginalFilename: filepath.Base(path),
			FileSizeBytes:    info.Size(),
		})
		if err != nil {
			return result, fmt.Errorf("enqueue %s: %w", path, err)
		}
		logger.Info("call submitted",
			logging.Int64(logging.FieldCallID, call.ID),
			logging.String("source", path),
			logging.String("template", template),
		)
		result.Calls = append(result.Calls, FromCall(call))
	}
	return result, nil
}

// expandAudioPaths resolves each path to absolute form and expands
// directories one level deep into their audio files.
func expandAudioPaths(paths []string) ([]string, error) {
	var files []string
	for _, raw := range paths {
		path := strings.TrimSpace(raw)
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("path %q not found", abs)
			}
			return nil, fmt.Errorf("stat %s: %w", abs, err)
		}
		if !info.IsDir() {
			if !audioExtensions[strings.ToLower(filepath.Ext(abs))] {
				return nil, fmt.Errorf("unsupported audio format %q", filepath.Ext(abs))
			}
			files = append(files, abs)
			continue
		}
		entries, err := os.ReadDir(abs)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", abs, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
				files = append(files, filepath.Join(abs, entry.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}
