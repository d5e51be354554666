package ledger

import (
	"context"
	"fmt"
	"os"
)

// Health returns aggregated call counts per lifecycle state.
func (s *Store) Health(ctx context.Context) (*HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM calls GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("summarize calls: %w", err)
	}
	defer rows.Close()

	summary := &HealthSummary{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan health row: %w", err)
		}
		summary.Total += count
		switch Status(status) {
		case StatusQueued:
			summary.Queued = count
		case StatusProcessing:
			summary.Processing = count
		case StatusCompleted:
			summary.Completed = count
		case StatusFailed:
			summary.Failed = count
		case StatusCancelled:
			summary.Cancelled = count
		}
	}
	return summary, rows.Err()
}

// CheckDatabase runs diagnostic checks against the ledger database file.
func (s *Store) CheckDatabase(ctx context.Context) *DatabaseHealth {
	health := &DatabaseHealth{DBPath: s.path}

	info, err := os.Stat(s.path)
	if err != nil {
		health.Error = fmt.Sprintf("database file not accessible: %v", err)
		return health
	}
	health.DatabaseExists = true
	health.DatabaseReadable = info.Mode().Perm()&0o400 != 0

	var tableCount int
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'calls'").Scan(&tableCount)
	if err != nil {
		health.Error = fmt.Sprintf("schema check failed: %v", err)
		return health
	}
	health.TableExists = tableCount > 0

	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = fmt.Sprintf("integrity check failed: %v", err)
		return health
	}
	health.IntegrityCheck = integrity == "ok"

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM calls").Scan(&health.TotalCalls); err != nil {
		health.Error = fmt.Sprintf("count calls failed: %v", err)
	}
	return health
}
