/*
Package api serves nodewatch's HTTP interface.

Endpoints:

	POST /nodes/refresh-all-status  run one batch for the X-User-ID owner
	GET  /health                    component health, 503 if any is unhealthy
	GET  /ready                     503 until storage and ledger are healthy
	GET  /metrics                   Prometheus metrics

The refresh response distinguishes a batch that changed nothing from one
that failed:

	200 {"status":"ok","updated":0,"checked":3,"errors":[]}
	502 {"status":"failed","updated":0,"checked":0,"errors":[{"scope":"batch",...}]}

Per-node and per-job errors never fail the request; they are listed in
errors alongside a 200.
*/
package api
