// Package statestore persists what a reconciliation last provisioned: one
// record per node, keyed by node ID, with the desired payload that was
// applied, the provider-assigned outputs, and the creation sequence number
// used to order destruction.
//
// Two implementations exist: a local JSON file and an S3-compatible object
// store for shared state.
package statestore
