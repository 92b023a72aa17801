/*
Package types defines the core data structures used throughout nodewatch.

This package contains the domain model shared by the ledger adapter, the
status deriver, the reconciliation engine, the notifier and the registry
stores. Types here carry no behavior beyond small helpers on enums.

# Core Types

Tracked nodes:
  - TrackedNode: a user's monitored worker address plus last reconciled status
  - Liveness: online, offline, unknown
  - JobState: idle, queued, running

Ledger records (request-scoped, never persisted):
  - JobSummary: one entry of the job enumeration
  - RawLedgerJob: job detail with the associated node and raw phase
  - JobPhase: queued (0), running (1), done/stopped (2)
  - AccountInfo: worker registration and balances

Reconciliation:
  - ReconciliationResult: derived status for one node in one batch
  - BatchReport: per-batch results, updated count and per-unit errors
  - BatchError: serialisable descriptor of one discarded unit
  - StatusUpdate: the fields written back to the registry per node

Notification:
  - NotificationPreference: per-user delivery flags
  - NotificationEvent: one transition, rendered for delivery

# Status Lifecycle

A TrackedNode starts with empty liveness and job state. Every batch writes
Liveness, JobState and LastChecked in one atomic registry update:

	(new) ──batch──▶ online/idle ──▶ online/running ──▶ online/idle
	                     │                                  │
	                     ▼                                  ▼
	                  offline ◀──────── unknown ◀──── ledger unreachable

Unknown is "no information". LastKnownLiveness keeps the last definite
value so that EffectiveLiveness can bridge unknown gaps when detecting
transitions.

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants, except JobPhase which mirrors the
	integer encoding used by the ledger:
	  type Liveness string
	  const (
	      LivenessOnline  Liveness = "online"
	      LivenessOffline Liveness = "offline"
	  )
*/
package types
