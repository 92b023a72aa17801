// Package status derives a node's liveness and job state from raw ledger
// jobs. Everything here is pure: the reconciler does the lookups and feeds
// the results in.
package status
