package engine

import "fmt"

// DependencyError marks a node that was not attempted because one of its
// prerequisites failed or was skipped.
type DependencyError struct {
	NodeID string
	Unmet  []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("node %s skipped: unmet prerequisites %v", e.NodeID, e.Unmet)
}

// ProviderError wraps a terminal provider failure for one node. Transient
// provider errors are retried before one of these is produced.
type ProviderError struct {
	NodeID string
	Op     string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("node %s: %s failed: %v", e.NodeID, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ConflictError reports a desired change that needs an operation the
// configuration disallows. It is not retried and does not affect siblings.
type ConflictError struct {
	NodeID string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("node %s: conflict: %s", e.NodeID, e.Reason)
}
