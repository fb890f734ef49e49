package types

import (
	"time"
)

// DownloadTask is a planned unit of work, consumed exactly once
type DownloadTask struct {
	Entry        RemoteEntry
	RelPath      string
	LocalPath    string
	ExpectedSize int64
}

// ID identifies the task in progress events and logs
func (t DownloadTask) ID() string {
	return t.RelPath
}

// TransferStatus is the outcome of one task
type TransferStatus string

const (
	StatusCompleted TransferStatus = "completed"
	StatusSkipped   TransferStatus = "skipped"
	StatusResumed   TransferStatus = "resumed"
	StatusFailed    TransferStatus = "failed"
	// StatusCancelled marks a task aborted by run cancellation. It is never
	// counted in a RunSummary.
	StatusCancelled TransferStatus = "cancelled"
)

// TransferResult is produced by the downloader for one task
type TransferResult struct {
	Task          DownloadTask
	Status        TransferStatus
	BytesWritten  int64
	Replaced      bool
	RangeFallback bool
	Err           error
	Duration      time.Duration
}

// Failure is one entry of a summary's failure list
type Failure struct {
	Path  string `json:"path"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// RunSummary aggregates the results of a run
type RunSummary struct {
	RunID            string        `json:"runId"`
	Completed        int           `json:"completed"`
	Skipped          int           `json:"skipped"`
	Resumed          int           `json:"resumed"`
	Failed           int           `json:"failed"`
	BytesTransferred int64         `json:"bytesTransferred"`
	Failures         []Failure     `json:"failures"`
	Interrupted      bool          `json:"interrupted"`
	StartedAt        time.Time     `json:"startedAt"`
	Duration         time.Duration `json:"duration"`
}

// Total returns the number of counted tasks
func (s RunSummary) Total() int {
	return s.Completed + s.Skipped + s.Resumed + s.Failed
}

// OK reports whether the run finished without failures
func (s RunSummary) OK() bool {
	return len(s.Failures) == 0
}
