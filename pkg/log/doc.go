/*
Package log provides structured logging for nodewatch using zerolog.

A single package-level Logger is configured once by Init from the loaded
configuration. Components derive child loggers at construction time so every
line carries its origin:

	logger := log.WithComponent("reconciler")
	logger.Warn().
		Str("node_id", node.ID).
		Str("kind", "transient").
		Msg("Account lookup failed")

Levels are debug, info, warn and error. JSON output is meant for production
log shipping; the console writer is the default for interactive use.

Conventions:
  - per-unit failures inside a batch (one job, one account, one delivery)
    log at warn and never abort the batch
  - batch summaries log at info
  - a failed job enumeration logs at error
*/
package log
