package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeValidation indicates input validation errors (bad address, undecodable payload)
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeConfig indicates configuration errors
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeEndpointFailure indicates a single endpoint call or probe failed
	ErrCodeEndpointFailure ErrorCode = "ENDPOINT_FAILURE"

	// ErrCodePoolExhausted indicates every endpoint of a chain failed within one operation
	ErrCodePoolExhausted ErrorCode = "POOL_EXHAUSTED"

	// ErrCodeUnknownChain indicates an operation for a chain with no configured pool
	ErrCodeUnknownChain ErrorCode = "UNKNOWN_CHAIN"

	// ErrCodeNotStarted indicates an operation before the manager was started
	ErrCodeNotStarted ErrorCode = "MANAGER_NOT_STARTED"

	// ErrCodeStopped indicates an operation after the manager was stopped
	ErrCodeStopped ErrorCode = "MANAGER_STOPPED"

	// ErrCodeTimeout indicates a deadline or cancellation cut an operation short
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeInternal indicates internal system errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Sentinels for errors.Is checks. Matching is by code only, so a wrapped
// ChainError with any message or chain matches its sentinel.
var (
	ErrPoolExhausted     = &ChainError{Code: ErrCodePoolExhausted}
	ErrUnknownChain      = &ChainError{Code: ErrCodeUnknownChain}
	ErrManagerNotStarted = &ChainError{Code: ErrCodeNotStarted}
	ErrManagerStopped    = &ChainError{Code: ErrCodeStopped}
	ErrValidation        = &ChainError{Code: ErrCodeValidation}
)

// ChainError represents an error specific to a blockchain chain
type ChainError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Chain   string                 `json:"chain,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// NewChainError creates a new ChainError
func NewChainError(code ErrorCode, chain, message string, cause error) *ChainError {
	return &ChainError{
		Code:    code,
		Message: message,
		Chain:   chain,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *ChainError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Chain != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Chain, e.Code, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying cause
func (e *ChainError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a ChainError with the same code.
func (e *ChainError) Is(target error) bool {
	t, ok := target.(*ChainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithContext adds context to the error
func (e *ChainError) WithContext(key string, value interface{}) *ChainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsRetryable returns true if another endpoint may succeed where this one failed
func (e *ChainError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeEndpointFailure, ErrCodeTimeout, ErrCodePoolExhausted:
		return true
	default:
		return false
	}
}

// NewValidationError creates a validation error
func NewValidationError(chain, message string) *ChainError {
	return NewChainError(ErrCodeValidation, chain, message, nil)
}

// NewConfigError creates a configuration error
func NewConfigError(chain, message string) *ChainError {
	return NewChainError(ErrCodeConfig, chain, message, nil)
}

// NewEndpointError records a single endpoint failure
func NewEndpointError(chain, url string, cause error) *ChainError {
	return NewChainError(ErrCodeEndpointFailure, chain, "endpoint "+url+" failed", cause).
		WithContext("url", url)
}

// NewPoolExhaustedError is returned when every endpoint of a pool failed in one operation.
func NewPoolExhaustedError(chain string, tried int, last error) *ChainError {
	return NewChainError(ErrCodePoolExhausted, chain,
		fmt.Sprintf("all %d endpoints failed", tried), last).
		WithContext("endpoints_tried", tried)
}

// NewUnknownChainError creates an unknown chain error
func NewUnknownChainError(chain string) *ChainError {
	return NewChainError(ErrCodeUnknownChain, chain, "chain is not configured", nil)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(chain, message string, cause error) *ChainError {
	return NewChainError(ErrCodeTimeout, chain, message, cause)
}

// NewInternalError creates an internal error
func NewInternalError(chain, message string, cause error) *ChainError {
	return NewChainError(ErrCodeInternal, chain, message, cause)
}
