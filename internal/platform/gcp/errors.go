package gcp

import "strings"

// IsRateLimited checks if an error indicates API rate limiting or quota
// exhaustion. These errors are retryable.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "rateLimitExceeded") ||
		strings.Contains(errStr, "quotaExceeded") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests")
}

// IsNotReady checks if an error indicates a freshly created resource whose
// attributes have not propagated yet. These errors are retryable within the
// read-after-write tolerance window.
func IsNotReady(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "resourceNotReady") ||
		strings.Contains(errStr, "is not ready") ||
		strings.Contains(errStr, "still propagating")
}

// IsRetryable reports whether a provider error may succeed on a later
// attempt. Everything else is terminal for the node that hit it.
func IsRetryable(err error) bool {
	return IsRateLimited(err) || IsNotReady(err)
}
