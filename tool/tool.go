// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side effects) with schema
// validated arguments, consistent error handling and rich metadata for LLM guidance.
//
// Implementations in this package satisfy the core.Tool interface. FunctionTool
// wraps plain Go functions, NewHandoffTool produces the tool a model calls to
// transfer a conversation to another agent, and ServerTool bridges to tools
// advertised by external MCP servers.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentrelay/internal/util"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
