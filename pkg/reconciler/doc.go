/*
Package reconciler keeps tracked nodes in step with the ledger.

A reconciliation batch covers one owner's tracked nodes and runs in four
phases:

	┌──────────────┐   ┌───────────────┐   ┌──────────────┐   ┌──────────┐
	│   snapshot   │──▶│  ledger phase │──▶│  write-back  │──▶│  notify  │
	│ ListTracked  │   │ Runner.Run    │   │ UpdateStatus │   │ Notifier │
	│ Nodes(owner) │   │ (bounded)     │   │ per node     │   │ per user │
	└──────────────┘   └───────────────┘   └──────────────┘   └──────────┘

# Ledger Phase

Runner.Run enumerates jobs once per batch (capped by Config.JobLimit),
fetches every job detail, derives each node's status and looks up the
account of every node with no active job. All ledger calls go through one
sized wait group per phase, so at most Config.Concurrency calls are in
flight.

Failures are isolated to their unit of work:

	job detail fails      job skipped, ScopeJob error recorded
	account lookup fails  liveness unknown, ScopeNode error recorded
	job enumeration fails batch aborted, report.Err set, nothing written

# Write-back and Notification

Engine.Refresh writes each node's new status with a single UpdateStatus
call, then runs transition detection against the snapshot taken at batch
start. Events are handed to the notifier once per owner after all writes.
UpdatedCount counts nodes whose liveness or job state changed.

# Overlap

Runs for the same owner never overlap. A new Refresh cancels the one in
flight and waits for it to return before taking its own snapshot, so the
same transition is never detected twice. Cancellation is honoured until
the ledger phase completes; after that the batch finishes its writes and
delivers its events.

# Scheduling

Scheduler refreshes every owner returned by ListOwners on a fixed interval
(30s by default), starting immediately.
*/
package reconciler
