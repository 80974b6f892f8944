package store

import "context"

// Record is the journal entry written for each staging attempt.
// Fields are chosen for filtering by session, tool and outcome.
type Record struct {
	ID            string `json:"id"`
	ToolName      string `json:"tool_name"`
	FilePath      string `json:"file_path"`
	SessionID     string `json:"session_id,omitempty"`
	Cwd           string `json:"cwd,omitempty"`
	Timestamp     string `json:"timestamp"`
	TimestampUnix int64  `json:"timestamp_unix"`
	Staged        bool   `json:"staged"`
	Error         string `json:"error,omitempty"`
	DurationMS    int64  `json:"duration_ms"`
}

// RecordStore is the storage port for the staging journal.
type RecordStore interface {
	// Index persists a single record. Returns an error if the store
	// is unreachable or the operation fails.
	Index(ctx context.Context, rec Record) error

	// Close releases any resources held by the store.
	Close() error
}
