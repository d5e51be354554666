package main

import (
	"strings"
	"testing"

	"callaudit/internal/api"
)

func TestFormatStatusLabel(t *testing.T) {
	cases := map[string]string{
		"queued":           "Queued",
		"cancel_requested": "Cancel Requested",
		"PROCESSING":       "Processing",
		"  failed  ":       "Failed",
		"":                 "",
	}
	for input, want := range cases {
		if got := formatStatusLabel(input); got != want {
			t.Errorf("formatStatusLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestBuildCallListRowsFallsBackToSourcePath(t *testing.T) {
	rows := buildCallListRows([]api.CallView{
		{ID: 1, SourcePath: "/calls/inbound/morning.wav", Status: "queued"},
	})
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0][1] != "morning.wav" {
		t.Fatalf("expected source basename, got %q", rows[0][1])
	}
}

func TestBuildCallListRowsOrdersNewestFirst(t *testing.T) {
	rows := buildCallListRows([]api.CallView{
		{ID: 1, OriginalFilename: "old.wav", CreatedAt: "2026-01-01T00:00:00.000Z"},
		{ID: 2, OriginalFilename: "new.wav", CreatedAt: "2026-02-01T00:00:00.000Z"},
	})
	if rows[0][1] != "new.wav" || rows[1][1] != "old.wav" {
		t.Fatalf("unexpected ordering: %v", rows)
	}
}

func TestFormatBatchID(t *testing.T) {
	if got := formatBatchID(""); got != "-" {
		t.Fatalf("empty batch id = %q", got)
	}
	long := "0123456789abcdef"
	if got := formatBatchID(long); got != "01234567" {
		t.Fatalf("long batch id = %q", got)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable(
		[]string{"ID", "Status"},
		[][]string{{"1"}},
		[]columnAlignment{alignRight, alignLeft},
	)
	if !strings.Contains(out, "ID") || !strings.Contains(out, "1") {
		t.Fatalf("unexpected table output:\n%s", out)
	}
}
