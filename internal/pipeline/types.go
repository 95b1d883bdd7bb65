package pipeline

import (
	"time"
)

// Config holds configuration for a batch analysis run
type Config struct {
	WorkerCount int // Number of concurrent workers
	// Force re-analyzes files that already have a stored result.
	Force bool
	// Extensions limits the analyzed files by lower-case extension.
	Extensions []string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		WorkerCount: 2,
	}
}

// FileJobStatus represents the state of a single file analysis job
type FileJobStatus string

const (
	FileStatusQueued    FileJobStatus = "queued"
	FileStatusCompleted FileJobStatus = "completed"
	FileStatusSkipped   FileJobStatus = "skipped"
	FileStatusFailed    FileJobStatus = "failed"
)

// FileJob tracks the analysis of a single file
type FileJob struct {
	FileID       string        `json:"fileId"`
	Name         string        `json:"name"`
	Path         string        `json:"path,omitempty"`
	Status       FileJobStatus `json:"status"`
	ErrorMessage string        `json:"error,omitempty"`
	Duration     time.Duration `json:"durationNs"`
}

// Report summarizes one batch run over a folder
type Report struct {
	FolderID    string     `json:"folderId"`
	Jobs        []*FileJob `json:"jobs"`
	Completed   int        `json:"completed"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt time.Time  `json:"completedAt"`
}
