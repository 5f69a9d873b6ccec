package contracts

import "fmt"

const (
	ServerName      = "toolhost"
	ProtocolVersion = "2025-06-18"
)

// ToolError is the protocol-safe error returned to clients.
type ToolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e ToolError) Error() string {
	return e.Message
}

const (
	ErrorInvalidArgument = "invalid_argument"
	ErrorNotFound        = "not_found"
	ErrorExecution       = "execution_failed"
	ErrorTimeout         = "timeout"
	ErrorCancelled       = "cancelled"
	ErrorInternal        = "internal"
	ErrorUnavailable     = "unavailable"
)

func NotFound(tool string) ToolError {
	return ToolError{
		Code:    ErrorNotFound,
		Message: fmt.Sprintf("Tool '%s' not found", tool),
		Details: map[string]any{"tool": tool},
	}
}

func InvalidArgument(tool, parameter, reason string) ToolError {
	return ToolError{
		Code:    ErrorInvalidArgument,
		Message: fmt.Sprintf("Invalid parameters for tool '%s': %s", tool, reason),
		Details: map[string]any{"tool": tool, "parameter": parameter},
	}
}

func ExecutionFailed(tool string, err error) ToolError {
	return ToolError{
		Code:    ErrorExecution,
		Message: fmt.Sprintf("Tool '%s' execution failed: %v", tool, err),
		Details: map[string]any{"tool": tool},
	}
}

func TimedOut(tool string, seconds float64) ToolError {
	return ToolError{
		Code:    ErrorTimeout,
		Message: fmt.Sprintf("Operation timed out after %g seconds", seconds),
		Details: map[string]any{"tool": tool},
	}
}

func Cancelled(tool string) ToolError {
	return ToolError{
		Code:    ErrorCancelled,
		Message: fmt.Sprintf("Tool '%s' call was cancelled", tool),
		Details: map[string]any{"tool": tool},
	}
}
