// Package retry provides exponential backoff retry logic for transient failures.
//
// The [Do] function retries an operation with configurable max attempts,
// initial delay, and maximum delay. It is used for Google Cloud API calls
// that fail transiently (rate limiting) and for read-after-write polling of
// freshly created resources.
package retry
