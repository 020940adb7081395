package errors

import (
	"errors"
	"strings"
)

// Is checks if an error is of a specific type
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// As checks if an error can be assigned to a target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsChainError checks if an error is a ChainError with specific code
func IsChainError(err error, code ErrorCode) bool {
	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		return chainErr.Code == code
	}
	return false
}

// IsValidation reports whether err is a caller mistake rather than an endpoint problem.
func IsValidation(err error) bool {
	return IsChainError(err, ErrCodeValidation)
}

// IsUnavailable reports whether err means "temporarily unavailable for this
// network": the pool is exhausted or the call ran out of time.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrPoolExhausted) || IsChainError(err, ErrCodeTimeout)
}

// IsRetryable reports whether another endpoint, or a later attempt, may
// succeed where err was returned. Untyped errors are matched on transport
// and throttling messages.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		return chainErr.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"too many requests",
		"rate limit",
		"service unavailable",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
