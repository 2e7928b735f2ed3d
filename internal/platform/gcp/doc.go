// Package gcp defines the contract with the Google Cloud APIs used by the
// reconciler: payload and observed-state types per resource kind, the Client
// interface exposing create/read/update/delete per kind, and error
// classification helpers.
//
// The reconciliation engine only ever talks to the [Client] interface; tests
// inject [MockClient]. Authentication and transport are supplied by the
// caller's session and are out of scope here.
package gcp
