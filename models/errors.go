package models

import (
	"errors"
	"fmt"
)

// ErrorCode is the closed set of machine-readable failure codes surfaced to
// callers. Responses carry one of these alongside a human-readable message.
type ErrorCode string

const (
	// Validation and safety
	ErrCodePositionOutOfBounds    ErrorCode = "POSITION_OUT_OF_BOUNDS"
	ErrCodeVelocityOutOfBounds    ErrorCode = "VELOCITY_OUT_OF_BOUNDS"
	ErrCodeFeedrateOutOfBounds    ErrorCode = "FEEDRATE_OUT_OF_BOUNDS"
	ErrCodePWMOutOfBounds         ErrorCode = "PWM_OUT_OF_BOUNDS"
	ErrCodeFanSpeedOutOfBounds    ErrorCode = "FAN_SPEED_OUT_OF_BOUNDS"
	ErrCodeTemperatureOutOfBounds ErrorCode = "TEMPERATURE_OUT_OF_BOUNDS"
	ErrCodeMissingParameter       ErrorCode = "MISSING_PARAMETER"
	ErrCodeInvalidParameter       ErrorCode = "INVALID_PARAMETER"
	ErrCodeEmergencyStopActive    ErrorCode = "EMERGENCY_STOP_ACTIVE"
	ErrCodeInvalidLimits          ErrorCode = "INVALID_LIMITS"

	// Translation
	ErrCodeUnknownStrategy  ErrorCode = "UNKNOWN_STRATEGY"
	ErrCodeNotImplemented   ErrorCode = "NOT_IMPLEMENTED"
	ErrCodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeValidatorFailed  ErrorCode = "VALIDATOR_FAILED"

	// Execution
	ErrCodeExecutionError     ErrorCode = "EXECUTION_ERROR"
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeExecutionTimeout   ErrorCode = "EXECUTION_TIMEOUT"

	// Queue
	ErrCodeQueueFull        ErrorCode = "QUEUE_FULL"
	ErrCodeCommandNotFound  ErrorCode = "COMMAND_NOT_FOUND"
	ErrCodeCommandExecuting ErrorCode = "COMMAND_EXECUTING"
	ErrCodeQueueNotDrained  ErrorCode = "QUEUE_NOT_DRAINED"
)

// CommandError is the error type surfaced across the translation pipeline.
// Detail fields identify the offending parameter and the limit it violated.
type CommandError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Parameter string    `json:"parameter,omitempty"`
	Limit     string    `json:"limit,omitempty"`
	Actual    string    `json:"actual,omitempty"`
	err       error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CommandError) Unwrap() error {
	return e.err
}

// NewCommandError creates a bare coded error.
func NewCommandError(code ErrorCode, message string) *CommandError {
	return &CommandError{Code: code, Message: message}
}

// NewBoundsError creates an out-of-bounds error with its required detail
// fields: the offending parameter, the configured limit, and the value seen.
func NewBoundsError(code ErrorCode, parameter string, actual, min, max float64) *CommandError {
	return &CommandError{
		Code:      code,
		Message:   fmt.Sprintf("%s %v out of bounds [%v, %v]", parameter, actual, min, max),
		Parameter: parameter,
		Limit:     fmt.Sprintf("[%v, %v]", min, max),
		Actual:    fmt.Sprintf("%v", actual),
	}
}

// NewMissingParameterError reports a required parameter that was not supplied.
func NewMissingParameterError(parameter string) *CommandError {
	return &CommandError{
		Code:      ErrCodeMissingParameter,
		Message:   fmt.Sprintf("required parameter %q is missing", parameter),
		Parameter: parameter,
	}
}

// WrapCommandError attaches an underlying cause to a coded error.
func WrapCommandError(code ErrorCode, message string, err error) *CommandError {
	return &CommandError{Code: code, Message: message, err: err}
}

// AsCommandError extracts a *CommandError from an error chain. Errors without
// a code collapse to EXECUTION_ERROR so callers always see a stable code.
func AsCommandError(err error) *CommandError {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce
	}
	return &CommandError{Code: ErrCodeExecutionError, Message: err.Error(), err: err}
}
