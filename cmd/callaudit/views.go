package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"callaudit/internal/api"
)

func buildCallStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func buildCallListRows(calls []api.CallView) [][]string {
	if len(calls) == 0 {
		return nil
	}
	sorted := api.SortCallsNewestFirst(calls)

	rows := make([][]string, 0, len(sorted))
	for _, call := range sorted {
		name := strings.TrimSpace(call.OriginalFilename)
		if name == "" {
			source := strings.TrimSpace(call.SourcePath)
			if source != "" {
				name = filepath.Base(source)
			} else {
				name = "Unknown"
			}
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", call.ID),
			name,
			call.UserID,
			formatStatusLabel(call.Status),
			formatDisplayTime(call.CreatedAt),
			formatBatchID(call.BatchID),
		})
	}
	return rows
}

func buildBatchListRows(batches []api.BatchView) [][]string {
	if len(batches) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(batches))
	for _, batch := range batches {
		rows = append(rows, []string{
			formatBatchID(batch.ID),
			batch.UserID,
			fmt.Sprintf("%d", batch.NumCalls),
			fmt.Sprintf("%d", batch.NumCompleted),
			fmt.Sprintf("%d", batch.NumFailed),
			formatStatusLabel(batch.Status),
			formatDisplayTime(batch.CreatedAt),
		})
	}
	return rows
}

func buildStageRows(stages []api.StageRun) [][]string {
	if len(stages) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(stages))
	for _, run := range stages {
		rows = append(rows, []string{
			run.Stage,
			formatStatusLabel(run.Status),
			run.WorkerID,
			formatDisplayTime(run.StartedAt),
			formatDisplayTime(run.FinishedAt),
			run.ErrorMessage,
		})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t := api.ParseViewTime(value); !t.IsZero() {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func formatBatchID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	if len(value) > 8 {
		return value[:8]
	}
	return value
}
