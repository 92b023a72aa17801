/*
Package storage persists tracked nodes and notification preferences.

Two implementations satisfy Store:

	BoltStore    <dataDir>/nodewatch.db      (bbolt, default)
	SQLiteStore  <dataDir>/nodewatch.sqlite  (modernc.org/sqlite, pure Go)

Pick one with Open(driver, dataDir).

# Bucket Structure (bolt)

	nodes          node ID          -> JSON TrackedNode
	owner_address  owner\x00address -> node ID
	preferences    owner            -> JSON NotificationPreference

The owner_address index enforces one registration per owner and address,
and a cursor prefix scan over it serves ListTrackedNodes and ListOwners.

# Status Writes

UpdateStatus is the only path that writes liveness and job state. In bolt
it runs as one read-modify-write transaction; in SQLite as one UPDATE
statement. Either way the liveness, job state, last checked and last known
liveness fields commit together or not at all, so a cancelled reconciliation
never leaves a node half updated.

LastKnownLiveness tracks the most recent liveness that was not unknown.
It is what transition detection compares against when the stored liveness
is unknown.

# Errors

ErrNotFound and ErrDuplicate are wrapped with the node ID or address; test
for them with errors.Is.
*/
package storage
