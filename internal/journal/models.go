package journal

import "time"

type Run struct {
	ID               string     `json:"id"`
	DestRoot         string     `json:"destRoot"`
	Selectors        []string   `json:"selectors"`
	StartedAt        time.Time  `json:"startedAt"`
	FinishedAt       *time.Time `json:"finishedAt,omitempty"`
	Completed        int        `json:"completed"`
	Skipped          int        `json:"skipped"`
	Resumed          int        `json:"resumed"`
	Failed           int        `json:"failed"`
	BytesTransferred int64      `json:"bytesTransferred"`
	Interrupted      bool       `json:"interrupted"`
}

type Result struct {
	RunID         string    `json:"runId"`
	RelativePath  string    `json:"path"`
	EntryID       string    `json:"entryId"`
	Status        string    `json:"status"`
	BytesWritten  int64     `json:"bytesWritten"`
	ExpectedSize  int64     `json:"expectedSize"`
	Replaced      bool      `json:"replaced"`
	RangeFallback bool      `json:"rangeFallback"`
	ErrorCode     string    `json:"errorCode,omitempty"`
	ErrorMessage  string    `json:"error,omitempty"`
	DurationMs    int64     `json:"durationMs"`
	RecordedAt    time.Time `json:"recordedAt"`
}
