package tools

import "fmt"

// ErrToolUnavailable describes a call to an operation that is not in the
// registry bound to the request.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available in this context", e.ToolName)
}
