package harnessports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ToolSpec describes a callable tool exposed to the model.
type ToolSpec struct {
	Name        string // unique logical name
	Description string // concise doc for model selection
	JSONSchema  []byte // JSON schema for args
}

// Tool defines the runtime that executes a tool call.
type Tool interface {
	Name() string
	Description() string
	Schema() []byte
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// SpecOf converts a Tool into the spec handed to providers.
func SpecOf(t Tool) ToolSpec {
	return ToolSpec{Name: t.Name(), Description: t.Description(), JSONSchema: t.Schema()}
}

// ToolErrorKind classifies recoverable tool failures.
type ToolErrorKind string

const (
	ToolForbidden        ToolErrorKind = "Forbidden"
	ToolExecutionFailed  ToolErrorKind = "ExecutionFailed"
	ToolInvalidArguments ToolErrorKind = "InvalidArguments"
)

// ToolError is returned by tools and converted into tool-message content by the loop.
type ToolError struct {
	Kind    ToolErrorKind
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Content is the text the model sees for this failure.
func (e *ToolError) Content() string {
	return "Error: " + e.Error()
}

func Forbidden(format string, args ...any) *ToolError {
	return &ToolError{Kind: ToolForbidden, Message: fmt.Sprintf(format, args...)}
}

func InvalidArguments(format string, args ...any) *ToolError {
	return &ToolError{Kind: ToolInvalidArguments, Message: fmt.Sprintf(format, args...)}
}

// ExecutionFailed keeps the underlying error text visible to the model.
func ExecutionFailed(err error) *ToolError {
	return &ToolError{Kind: ToolExecutionFailed, Message: err.Error(), Err: err}
}

// AsToolError normalizes any error returned by a tool. Untyped errors count as execution failures.
func AsToolError(err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return ExecutionFailed(err)
}
