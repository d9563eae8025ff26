package models

import (
	"time"
)

// ResponseStatus is the outcome of a single command execution.
type ResponseStatus string

const (
	ResponseSuccess   ResponseStatus = "success"
	ResponseError     ResponseStatus = "error"
	ResponsePartial   ResponseStatus = "partial"
	ResponseTimeout   ResponseStatus = "timeout"
	ResponseCancelled ResponseStatus = "cancelled"
)

// Response is the normalized result returned for every command. It is
// created once per execution and immutable afterwards; any transport must
// map onto this shape without loss.
type Response struct {
	Status        ResponseStatus         `json:"status"`
	Command       OperationType          `json:"command"`
	CommandID     string                 `json:"command_id"`
	Data          map[string]interface{} `json:"data,omitempty"`
	ErrorCode     ErrorCode              `json:"error_code,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
	Warnings      []string               `json:"warnings,omitempty"`
	ExecutionTime time.Duration          `json:"execution_time"`
	Timestamp     time.Time              `json:"timestamp"`
}

// NewSuccessResponse builds a success response for a command.
func NewSuccessResponse(cmd *Command, data map[string]interface{}) *Response {
	return &Response{
		Status:    ResponseSuccess,
		Command:   cmd.Type,
		CommandID: cmd.ID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewErrorResponse builds an error response from any error, normalizing it
// to a coded CommandError.
func NewErrorResponse(cmd *Command, err error) *Response {
	ce := AsCommandError(err)
	data := map[string]interface{}{}
	if ce.Parameter != "" {
		data["parameter"] = ce.Parameter
	}
	if ce.Limit != "" {
		data["limit"] = ce.Limit
	}
	if ce.Actual != "" {
		data["actual"] = ce.Actual
	}
	if len(data) == 0 {
		data = nil
	}
	return &Response{
		Status:       ResponseError,
		Command:      cmd.Type,
		CommandID:    cmd.ID,
		Data:         data,
		ErrorCode:    ce.Code,
		ErrorMessage: ce.Message,
		Timestamp:    time.Now(),
	}
}

// NewTimeoutResponse builds a timeout response. The backend call, if already
// sent, is not guaranteed to have stopped.
func NewTimeoutResponse(cmd *Command) *Response {
	return &Response{
		Status:       ResponseTimeout,
		Command:      cmd.Type,
		CommandID:    cmd.ID,
		ErrorCode:    ErrCodeExecutionTimeout,
		ErrorMessage: "command execution timed out",
		Timestamp:    time.Now(),
	}
}

// NewCancelledResponse builds a response for a command cancelled before
// dispatch.
func NewCancelledResponse(cmd *Command, reason string) *Response {
	return &Response{
		Status:       ResponseCancelled,
		Command:      cmd.Type,
		CommandID:    cmd.ID,
		ErrorMessage: reason,
		Timestamp:    time.Now(),
	}
}

// AddWarning records a non-fatal condition observed during execution.
func (r *Response) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// Failed reports whether the command did not complete successfully.
func (r *Response) Failed() bool {
	return r.Status != ResponseSuccess
}
