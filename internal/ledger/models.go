package ledger

import (
	"strings"
	"time"
)

// Status represents the coarse lifecycle of a call.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status permits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// JobStatus represents the lifecycle of one stage attempt.
type JobStatus string

const (
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Failure reasons recorded by the reaper. Ordinary stage failures carry the
// stage's own error text instead.
const (
	ReasonStageTimeout   = "stage_timeout"
	ReasonReapedCrash    = "reaped_crash"
	ReasonRunCeiling     = "max_run_time_exceeded"
	ReasonRetryExhausted = "retries exhausted"
	ReasonCancelled      = "cancelled by request"
)

// Call represents one submitted recording and its end-to-end processing
// record. Status is mutated exclusively through the store's compare-and-set
// transitions, driven by ledger activity.
type Call struct {
	ID                    int64
	UserID                string
	BatchID               string
	TemplateName          string
	SourcePath            string
	OriginalFilename      string
	FileSizeBytes         int64
	DurationSeconds       int
	Status                Status
	CancelRequested       bool
	batchCounted          bool
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	ErrorMessage          string
	MetadataJSON          string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// InBatch reports whether the call belongs to a batch.
func (c *Call) InBatch() bool {
	return c != nil && strings.TrimSpace(c.BatchID) != ""
}

// Job is one ledger entry: a single attempt of a single stage for a call.
type Job struct {
	ID           int64
	CallID       int64
	Stage        string
	Status       JobStatus
	WorkerID     string
	StartedAt    time.Time
	FinishedAt   *time.Time
	ErrorMessage string
	ArtifactJSON string
	CreatedAt    time.Time
}

// Terminal reports whether the entry reached a final state.
func (j *Job) Terminal() bool {
	return j != nil && (j.Status == JobCompleted || j.Status == JobFailed)
}

// Elapsed returns how long the attempt has been (or was) running.
func (j *Job) Elapsed(now time.Time) time.Duration {
	if j == nil {
		return 0
	}
	if j.FinishedAt != nil {
		return j.FinishedAt.Sub(j.StartedAt)
	}
	return now.Sub(j.StartedAt)
}

// BatchStatus represents the rollup state of a batch.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
)

// Batch is a set of calls submitted in one operation, tracked for
// aggregate completion.
type Batch struct {
	ID           string
	UserID       string
	NumCalls     int
	NumCompleted int
	NumFailed    int
	Status       BatchStatus
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// Done reports whether every member call reached a terminal status.
func (b *Batch) Done() bool {
	return b != nil && b.NumCompleted+b.NumFailed >= b.NumCalls
}

// TranscriptSegment is a durable output row written by the transcribe stage.
type TranscriptSegment struct {
	ID           int64
	CallID       int64
	SpeakerLabel string
	StartTime    float64
	EndTime      float64
	Text         string
	Confidence   float64
	Emotion      string
	CreatedAt    time.Time
}

// Evaluation is the durable scoring output row written by the score stage.
type Evaluation struct {
	ID               int64
	CallID           int64
	OverallScore     float64
	PillarScoresJSON string
	Summary          string
	ModelUsed        string
	PromptTemplate   string
	RawOutputJSON    string
	CreatedAt        time.Time
}

// HealthSummary describes aggregated call counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}

// DatabaseHealth captures diagnostic information about the ledger database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalCalls       int
	Error            string
}
