// Package naming defines the naming scheme for all stack resources.
//
// Every resource name is derived from the stack name and suffix so that
// resources belonging to one stack are identifiable from the console and
// cleanup can find them without extra bookkeeping.
package naming
