package engine

import (
	"time"

	"github.com/r4rohan/gcevm/internal/stack"
)

// Outcome is the terminal state of one node in a run.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeDestroyed Outcome = "destroyed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// converged reports whether the outcome is terminal and non-failed, i.e.
// dependents may proceed.
func (o Outcome) converged() bool {
	switch o {
	case OutcomeCreated, OutcomeUpdated, OutcomeUnchanged:
		return true
	}
	return false
}

// Result is one node's entry in the run ledger.
type Result struct {
	NodeID  string
	Kind    stack.Kind
	Outcome Outcome
	Reason  string
	Diff    []Change
	Outputs stack.Outputs
	Err     error
}

// RunStatus summarizes a whole run.
type RunStatus string

const (
	// StatusSuccess: every node converged or was destroyed.
	StatusSuccess RunStatus = "success"
	// StatusPartialFailure: some nodes failed or were skipped while others
	// reached a terminal non-failed state.
	StatusPartialFailure RunStatus = "partial-failure"
	// StatusTotalFailure: no node reached a non-initial state.
	StatusTotalFailure RunStatus = "total-failure"
)

// Report is the outcome of one apply or destroy run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Results in node completion order.
	Results []*Result
}

// Result returns the entry for a node, or nil.
func (r *Report) Result(nodeID string) *Result {
	for _, res := range r.Results {
		if res.NodeID == nodeID {
			return res
		}
	}
	return nil
}

// Status derives the overall run status. A failure is never hidden behind
// an aggregate: any failed or skipped node downgrades the run.
func (r *Report) Status() RunStatus {
	ok, bad := 0, 0
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeFailed, OutcomeSkipped:
			bad++
		default:
			ok++
		}
	}
	switch {
	case bad == 0:
		return StatusSuccess
	case ok == 0:
		return StatusTotalFailure
	default:
		return StatusPartialFailure
	}
}
