package dispatch

import (
	"errors"

	"git-auto-add/internal/hookevt"
)

var (
	// ErrIgnoredTool means the event came from a tool that doesn't write files.
	ErrIgnoredTool = errors.New("tool not handled")
	// ErrNoPath means tool_input carried no usable file path.
	ErrNoPath = errors.New("no file path in tool_input")
	// ErrInvalidPath means the path field held a non-string value.
	ErrInvalidPath = errors.New("file path is not a string")
)

const multiEdit = "MultiEdit"

// handledTools are the file-writing tools whose targets get staged.
var handledTools = map[string]bool{
	"Edit":    true,
	"Write":   true,
	multiEdit: true,
}

// Handles reports whether events from toolName are staged.
func Handles(toolName string) bool {
	return handledTools[toolName]
}

// ResolvePath returns the file path an event refers to. file_path is always
// checked; path is only a fallback for MultiEdit.
func ResolvePath(evt hookevt.Event) (string, error) {
	if !Handles(evt.ToolName) {
		return "", ErrIgnoredTool
	}

	v := evt.ToolInput["file_path"]
	if !truthy(v) && evt.ToolName == multiEdit {
		v = evt.ToolInput["path"]
	}
	if !truthy(v) {
		return "", ErrNoPath
	}

	p, ok := v.(string)
	if !ok {
		return "", ErrInvalidPath
	}
	return p, nil
}

// truthy reports whether a decoded JSON value counts as set. null, "", false,
// 0 and empty arrays or objects do not.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	default:
		return true
	}
}
