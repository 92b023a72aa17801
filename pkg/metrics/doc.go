/*
Package metrics provides Prometheus metrics and component health for nodewatch.

All collectors are package-level variables registered with the default
Prometheus registry at init and exposed through Handler on /metrics.

# Metrics Catalog

Registry:

	nodewatch_tracked_nodes{liveness}                  gauge, refreshed by Collector

Reconciliation:

	nodewatch_reconciliation_duration_seconds          histogram, one observation per batch
	nodewatch_reconciliation_cycles_total{outcome}     ok | failed | cancelled
	nodewatch_batch_unit_errors_total{scope,kind}      job/node/registry errors inside a batch
	nodewatch_nodes_updated_total                      nodes whose liveness or job state changed

Ledger:

	nodewatch_ledger_requests_total{op,outcome}        op: list_jobs | job_detail | account_info
	nodewatch_ledger_request_duration_seconds{op}

Notifications:

	nodewatch_notifications_total{type,outcome}        outcome: delivered | undelivered | failed

# Timer Helper

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

# Component Health

Components report their state through RegisterComponent/UpdateComponent.
The storage and ledger components are critical: GetReadiness reports
not_ready until both are registered and healthy. The engine flips the
ledger component on every batch depending on whether the job enumeration
succeeded; the Collector flips storage on every scrape of the registry.
*/
package metrics
