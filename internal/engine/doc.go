// Package engine is the reconciliation core: it compares the desired stack
// against recorded and observed state and issues the minimal set of provider
// operations to converge them.
//
// Plan is a dry run computed purely from the state store; Apply executes
// nodes in dependency order, running independent siblings in parallel, and
// reports a terminal outcome for every node. Destroy walks the recorded
// creation sequence in reverse.
package engine
