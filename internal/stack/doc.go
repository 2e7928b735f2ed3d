// Package stack turns a validated configuration into the concrete list of
// resource nodes for one reconciliation run.
//
// Each optional node has its activation predicate evaluated exactly once
// here; the result is a plain node list, not a templated repetition. Nodes
// declare their prerequisites explicitly, and values that only exist after a
// prerequisite has been created (assigned address, created service account
// email, instance network) are patched in through per-node Resolve hooks.
package stack
