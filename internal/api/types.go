package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// CallView describes a call record in a transport-friendly format.
type CallView struct {
	ID                    int64           `json:"id"`
	UserID                string          `json:"userId"`
	BatchID               string          `json:"batchId,omitempty"`
	TemplateName          string          `json:"templateName"`
	SourcePath            string          `json:"sourcePath"`
	OriginalFilename      string          `json:"originalFilename,omitempty"`
	FileSizeBytes         int64           `json:"fileSizeBytes,omitempty"`
	DurationSeconds       int             `json:"durationSeconds,omitempty"`
	Status                string          `json:"status"`
	CancelRequested       bool            `json:"cancelRequested,omitempty"`
	ErrorMessage          string          `json:"errorMessage,omitempty"`
	CreatedAt             string          `json:"createdAt,omitempty"`
	UpdatedAt             string          `json:"updatedAt,omitempty"`
	ProcessingStartedAt   string          `json:"processingStartedAt,omitempty"`
	ProcessingCompletedAt string          `json:"processingCompletedAt,omitempty"`
	Metadata              json.RawMessage `json:"metadata,omitempty"`
}

// StageRun describes one ledger attempt of one pipeline stage.
type StageRun struct {
	ID           int64  `json:"id"`
	Stage        string `json:"stage"`
	Status       string `json:"status"`
	WorkerID     string `json:"workerId,omitempty"`
	StartedAt    string `json:"startedAt,omitempty"`
	FinishedAt   string `json:"finishedAt,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// EvaluationView describes the scoring output for a completed call.
type EvaluationView struct {
	OverallScore   float64         `json:"overallScore"`
	PillarScores   json.RawMessage `json:"pillarScores,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	ModelUsed      string          `json:"modelUsed,omitempty"`
	PromptTemplate string          `json:"promptTemplate,omitempty"`
	CreatedAt      string          `json:"createdAt,omitempty"`
}

// CallDetail bundles a call with its stage history and evaluation.
type CallDetail struct {
	Call       CallView        `json:"call"`
	Stages     []StageRun      `json:"stages"`
	Evaluation *EvaluationView `json:"evaluation,omitempty"`
}

// BatchView describes an aggregate batch in a transport-friendly format.
type BatchView struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	NumCalls     int    `json:"numCalls"`
	NumCompleted int    `json:"numCompleted"`
	NumFailed    int    `json:"numFailed"`
	Status       string `json:"status"`
	CreatedAt    string `json:"createdAt,omitempty"`
	CompletedAt  string `json:"completedAt,omitempty"`
}

// BatchDetail bundles a batch with its member calls.
type BatchDetail struct {
	Batch BatchView  `json:"batch"`
	Calls []CallView `json:"calls"`
}

// PipelineStatus summarizes pipeline execution state.
type PipelineStatus struct {
	Running     bool           `json:"running"`
	CallStats   map[string]int `json:"callStats"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	LedgerDBPath string             `json:"ledgerDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Pipeline     PipelineStatus     `json:"pipeline"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// HealthReport combines call counts with ledger database diagnostics.
type HealthReport struct {
	Calls    CallHealthView     `json:"calls"`
	Database DatabaseHealthView `json:"database"`
}

// CallHealthView aggregates call counts per lifecycle state.
type CallHealthView struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// DatabaseHealthView reports ledger database diagnostics.
type DatabaseHealthView struct {
	Path          string `json:"path"`
	Exists        bool   `json:"exists"`
	Readable      bool   `json:"readable"`
	SchemaPresent bool   `json:"schemaPresent"`
	IntegrityOK   bool   `json:"integrityOk"`
	TotalCalls    int    `json:"totalCalls"`
	Error         string `json:"error,omitempty"`
}

// CallStatsResponse provides a normalized call stats payload.
type CallStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// CallListResponse wraps a collection of calls for API responses.
type CallListResponse struct {
	Calls []CallView `json:"calls"`
}

// CallDetailResponse wraps a single call with its history.
type CallDetailResponse struct {
	Detail CallDetail `json:"detail"`
}

// BatchListResponse wraps a collection of batches.
type BatchListResponse struct {
	Batches []BatchView `json:"batches"`
}
