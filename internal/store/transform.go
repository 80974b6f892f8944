package store

import (
	"time"

	"git-auto-add/internal/hookevt"

	"github.com/google/uuid"
)

// NewRecord builds the journal entry for one staging attempt on path.
// stageErr is the error returned by the stager, nil on success.
func NewRecord(evt hookevt.Event, path string, started time.Time, took time.Duration, stageErr error) Record {
	rec := Record{
		ID:            uuid.New().String(),
		ToolName:      evt.ToolName,
		FilePath:      path,
		SessionID:     evt.SessionID,
		Cwd:           evt.Cwd,
		Timestamp:     started.UTC().Format("2006-01-02T15:04:05.000Z"),
		TimestampUnix: started.Unix(),
		Staged:        stageErr == nil,
		DurationMS:    took.Milliseconds(),
	}
	if stageErr != nil {
		rec.Error = stageErr.Error()
	}
	return rec
}
