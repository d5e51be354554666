package api

import (
	"encoding/json"
	"slices"
	"time"

	"callaudit/internal/ledger"
	"callaudit/internal/stage"
)

// FromCall converts a ledger call record to its API representation.
func FromCall(call *ledger.Call) CallView {
	if call == nil {
		return CallView{}
	}

	dto := CallView{
		ID:               call.ID,
		UserID:           call.UserID,
		BatchID:          call.BatchID,
		TemplateName:     call.TemplateName,
		SourcePath:       call.SourcePath,
		OriginalFilename: call.OriginalFilename,
		FileSizeBytes:    call.FileSizeBytes,
		DurationSeconds:  call.DurationSeconds,
		Status:           string(call.Status),
		CancelRequested:  call.CancelRequested,
		ErrorMessage:     call.ErrorMessage,
	}
	dto.CreatedAt = FormatTime(call.CreatedAt)
	dto.UpdatedAt = FormatTime(call.UpdatedAt)
	if call.ProcessingStartedAt != nil {
		dto.ProcessingStartedAt = FormatTime(*call.ProcessingStartedAt)
	}
	if call.ProcessingCompletedAt != nil {
		dto.ProcessingCompletedAt = FormatTime(*call.ProcessingCompletedAt)
	}
	if raw := call.MetadataJSON; raw != "" {
		dto.Metadata = json.RawMessage(raw)
	}
	return dto
}

// FromCalls converts a slice of ledger call records into API DTOs.
func FromCalls(calls []*ledger.Call) []CallView {
	if len(calls) == 0 {
		return nil
	}
	out := make([]CallView, 0, len(calls))
	for _, call := range calls {
		out = append(out, FromCall(call))
	}
	return out
}

// FromJob converts a ledger stage attempt to its API representation.
func FromJob(job *ledger.Job) StageRun {
	if job == nil {
		return StageRun{}
	}
	dto := StageRun{
		ID:           job.ID,
		Stage:        job.Stage,
		Status:       string(job.Status),
		WorkerID:     job.WorkerID,
		StartedAt:    FormatTime(job.StartedAt),
		ErrorMessage: job.ErrorMessage,
	}
	if job.FinishedAt != nil {
		dto.FinishedAt = FormatTime(*job.FinishedAt)
	}
	return dto
}

// FromJobs converts a slice of ledger attempts into API DTOs.
func FromJobs(jobs []*ledger.Job) []StageRun {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]StageRun, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromEvaluation converts a scoring output row to its API representation.
func FromEvaluation(eval *ledger.Evaluation) *EvaluationView {
	if eval == nil {
		return nil
	}
	dto := &EvaluationView{
		OverallScore:   eval.OverallScore,
		Summary:        eval.Summary,
		ModelUsed:      eval.ModelUsed,
		PromptTemplate: eval.PromptTemplate,
		CreatedAt:      FormatTime(eval.CreatedAt),
	}
	if raw := eval.PillarScoresJSON; raw != "" {
		dto.PillarScores = json.RawMessage(raw)
	}
	return dto
}

// FromBatch converts a ledger batch record to its API representation.
func FromBatch(batch *ledger.Batch) BatchView {
	if batch == nil {
		return BatchView{}
	}
	dto := BatchView{
		ID:           batch.ID,
		UserID:       batch.UserID,
		NumCalls:     batch.NumCalls,
		NumCompleted: batch.NumCompleted,
		NumFailed:    batch.NumFailed,
		Status:       string(batch.Status),
		CreatedAt:    FormatTime(batch.CreatedAt),
	}
	if batch.CompletedAt != nil {
		dto.CompletedAt = FormatTime(*batch.CompletedAt)
	}
	return dto
}

// FromBatches converts a slice of ledger batches into API DTOs.
func FromBatches(batches []*ledger.Batch) []BatchView {
	if len(batches) == 0 {
		return nil
	}
	out := make([]BatchView, 0, len(batches))
	for _, batch := range batches {
		out = append(out, FromBatch(batch))
	}
	return out
}

// MergeCallStats produces a string-keyed representation of call counts.
func MergeCallStats(summary *ledger.HealthSummary) map[string]int {
	if summary == nil {
		return nil
	}
	return map[string]int{
		string(ledger.StatusQueued):     summary.Queued,
		string(ledger.StatusProcessing): summary.Processing,
		string(ledger.StatusCompleted):  summary.Completed,
		string(ledger.StatusFailed):     summary.Failed,
		string(ledger.StatusCancelled):  summary.Cancelled,
	}
}

// FromHealth combines call counts and database diagnostics into one report.
func FromHealth(summary *ledger.HealthSummary, db *ledger.DatabaseHealth) HealthReport {
	report := HealthReport{}
	if summary != nil {
		report.Calls = CallHealthView{
			Total:      summary.Total,
			Queued:     summary.Queued,
			Processing: summary.Processing,
			Completed:  summary.Completed,
			Failed:     summary.Failed,
			Cancelled:  summary.Cancelled,
		}
	}
	if db != nil {
		report.Database = DatabaseHealthView{
			Path:          db.DBPath,
			Exists:        db.DatabaseExists,
			Readable:      db.DatabaseReadable,
			SchemaPresent: db.TableExists,
			IntegrityOK:   db.IntegrityCheck,
			TotalCalls:    db.TotalCalls,
			Error:         db.Error,
		}
	}
	return report
}

// StageHealthSlice converts a stage health map into a deterministic slice.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
