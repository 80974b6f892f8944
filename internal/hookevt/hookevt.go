package hookevt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Event matches the JSON document Claude Code writes to a hook's stdin after
// a tool call. Only tool_name and tool_input drive staging; the remaining
// fields are carried into the staging journal when present.
type Event struct {
	ToolName      string                 `json:"tool_name"`
	ToolInput     map[string]interface{} `json:"tool_input"`
	SessionID     string                 `json:"session_id,omitempty"`
	Cwd           string                 `json:"cwd,omitempty"`
	HookEventName string                 `json:"hook_event_name,omitempty"`
}

// ErrEmptyInput is returned by Decode when stdin carried no bytes.
var ErrEmptyInput = errors.New("empty input")

// Decode reads a single event from r. The whole input is read with no size
// or nesting limit; empty or malformed input is an error and the caller
// decides what an error means.
func Decode(r io.Reader) (Event, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return Event{}, fmt.Errorf("read input: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return Event{}, ErrEmptyInput
	}

	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return Event{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return evt, nil
}
