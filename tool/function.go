package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds a lightweight JSON-Schema-like parameter specification
//   - Validates model supplied arguments against that schema before execution
//   - Invokes the wrapped function with a *core.ToolContext carrying the
//     conversation, agent and call identifiers
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// Concurrency:
//
//	A FunctionTool has no internal mutable state after construction and is safe
//	for concurrent use by multiple goroutines.
//
// Approval and timeouts:
//
//	Tools that perform sensitive side effects can be marked with WithApproval so
//	the engine pauses execution until a human decision arrives. WithTimeout
//	overrides the engine's default per-tool execution deadline.
type FunctionTool struct {
	name             string
	description      string
	parameters       map[string]any
	requiresApproval bool
	approvalFn       func(toolCtx *core.ToolContext) bool
	timeout          time.Duration
	fn               func(ctx context.Context, toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// FunctionToolOptions configure optional FunctionTool behavior.
type FunctionToolOptions struct {
	// RequiresApproval pauses execution until a human approves the call.
	RequiresApproval bool

	// RequiresApprovalFunc decides per call whether a human decision is
	// needed, based on the call's context. When set it takes precedence
	// over the static RequiresApproval flag.
	RequiresApprovalFunc func(toolCtx *core.ToolContext) bool

	// Timeout overrides the engine's default tool execution timeout.
	// Zero means use the engine default.
	Timeout time.Duration
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	opts := FunctionToolOptions{}
	for _, optFn := range optFns {
		optFn(&opts)
	}
	return &FunctionTool{
		name:             name,
		description:      description,
		parameters:       parameters,
		requiresApproval: opts.RequiresApproval,
		approvalFn:       opts.RequiresApprovalFunc,
		timeout:          opts.Timeout,
		fn:               fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using reflection.
// It is a convenience for simple argument containers and produces a schema equivalent
// to util.CreateSchema(structType).
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := NewFunctionToolFromStruct(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  SumArgs{},
//	  func(ctx context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	schema := util.CreateSchema(structType)
	return NewFunctionTool(name, description, schema, fn, optFns...)
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// InputSchema returns the (minimal) JSON schema describing expected arguments.
func (t *FunctionTool) InputSchema() map[string]any { return t.parameters }

// RequiresApproval reports whether this call needs a human decision first.
func (t *FunctionTool) RequiresApproval(toolCtx *core.ToolContext) bool {
	if t.approvalFn != nil {
		return t.approvalFn(toolCtx)
	}
	return t.requiresApproval
}

// ExecutionTimeout returns the per-call timeout override, zero for the default.
func (t *FunctionTool) ExecutionTimeout() time.Duration { return t.timeout }

// Execute validates the provided args against the declared schema then invokes
// the underlying function. Validation or execution failures are wrapped (or
// passed through) as *ToolError for uniform downstream handling.
//
// Error Semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	validation failure              -> *ToolError{Code: "VALIDATION_ERROR"}
//	other error                     -> *ToolError{Code: "EXECUTION_ERROR"}
func (t *FunctionTool) Execute(ctx context.Context, toolCtx *core.ToolContext, args map[string]any) (any, error) {
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    "VALIDATION_ERROR",
			Details: err,
		}
	}

	result, err := t.fn(ctx, toolCtx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok { // Already a ToolError -> forward
			return nil, toolErr
		}
		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    "EXECUTION_ERROR",
		}
	}

	return result, nil
}
