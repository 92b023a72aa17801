package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/nodewatch/pkg/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates <dataDir>/nodewatch.sqlite
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "nodewatch.sqlite")

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection avoids concurrent writers on the same file.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tracked_nodes (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			address TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			liveness TEXT NOT NULL DEFAULT 'unknown',
			job_state TEXT NOT NULL DEFAULT 'idle',
			last_checked INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL DEFAULT 0,
			UNIQUE(owner, address)
		)
	`); err != nil {
		return fmt.Errorf("failed to create tracked_nodes: %w", err)
	}
	for _, stmt := range []string{
		"ALTER TABLE tracked_nodes ADD COLUMN last_known_liveness TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE tracked_nodes ADD COLUMN sol_balance REAL NOT NULL DEFAULT 0",
		"ALTER TABLE tracked_nodes ADD COLUMN nos_balance REAL NOT NULL DEFAULT 0",
		"ALTER TABLE tracked_nodes ADD COLUMN low_balance INTEGER NOT NULL DEFAULT 0",
		"ALTER TABLE tracked_nodes ADD COLUMN balance_checked INTEGER NOT NULL DEFAULT 0",
	} {
		if err := addColumn(db, stmt); err != nil {
			return fmt.Errorf("failed to migrate tracked_nodes: %w", err)
		}
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS preferences (
			owner TEXT PRIMARY KEY,
			notify_offline INTEGER NOT NULL DEFAULT 1,
			notify_online INTEGER NOT NULL DEFAULT 1,
			notify_job_started INTEGER NOT NULL DEFAULT 1,
			notify_job_completed INTEGER NOT NULL DEFAULT 1,
			vibration INTEGER NOT NULL DEFAULT 1,
			sound INTEGER NOT NULL DEFAULT 1
		)
	`); err != nil {
		return fmt.Errorf("failed to create preferences: %w", err)
	}
	if err := addColumn(db, "ALTER TABLE preferences ADD COLUMN notify_low_balance INTEGER NOT NULL DEFAULT 1"); err != nil {
		return fmt.Errorf("failed to migrate preferences: %w", err)
	}
	return nil
}

// addColumn applies an additive migration, ignoring columns that already exist
func addColumn(db *sql.DB, stmt string) error {
	_, err := db.Exec(stmt)
	if err != nil && !strings.Contains(err.Error(), "duplicate column name") {
		return err
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

const nodeColumns = "id, owner, address, name, notes, liveness, job_state, last_checked, last_known_liveness, " +
	"sol_balance, nos_balance, low_balance, balance_checked, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*types.TrackedNode, error) {
	var (
		node                                 types.TrackedNode
		lastChecked, balanceChecked, created int64
	)
	err := row.Scan(&node.ID, &node.Owner, &node.Address, &node.Name, &node.Notes,
		&node.Liveness, &node.JobState, &lastChecked, &node.LastKnownLiveness,
		&node.SOLBalance, &node.NOSBalance, &node.LowBalance, &balanceChecked, &created)
	if err != nil {
		return nil, err
	}
	node.LastChecked = fromUnix(lastChecked)
	node.BalanceCheckedAt = fromUnix(balanceChecked)
	node.CreatedAt = fromUnix(created)
	return &node, nil
}

func (s *SQLiteStore) queryNodes(query string, args ...any) ([]*types.TrackedNode, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*types.TrackedNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (s *SQLiteStore) CreateNode(node *types.TrackedNode) error {
	if err := prepareNode(node); err != nil {
		return err
	}
	_, err := s.db.Exec("INSERT INTO tracked_nodes ("+nodeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		node.ID, node.Owner, node.Address, node.Name, node.Notes,
		string(node.Liveness), string(node.JobState), toUnix(node.LastChecked),
		string(node.LastKnownLiveness), node.SOLBalance, node.NOSBalance, node.LowBalance,
		toUnix(node.BalanceCheckedAt), toUnix(node.CreatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("node %s for %s: %w", node.Address, node.Owner, ErrDuplicate)
	}
	return err
}

func (s *SQLiteStore) GetNode(id string) (*types.TrackedNode, error) {
	node, err := scanNode(s.db.QueryRow("SELECT "+nodeColumns+" FROM tracked_nodes WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return node, err
}

func (s *SQLiteStore) ListNodes() ([]*types.TrackedNode, error) {
	return s.queryNodes("SELECT " + nodeColumns + " FROM tracked_nodes ORDER BY owner, address")
}

// ListTrackedNodes returns owner's nodes ordered by address
func (s *SQLiteStore) ListTrackedNodes(owner string) ([]*types.TrackedNode, error) {
	return s.queryNodes("SELECT "+nodeColumns+" FROM tracked_nodes WHERE owner = ? ORDER BY address", owner)
}

func (s *SQLiteStore) ListOwners() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT owner FROM tracked_nodes ORDER BY owner")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func (s *SQLiteStore) UpdateNodeDetails(id, name, notes string) error {
	res, err := s.db.Exec("UPDATE tracked_nodes SET name = ?, notes = ? WHERE id = ?", name, notes, id)
	return affected(res, err, id)
}

// UpdateStatus is a single statement, so status and balance columns commit
// together. Balance columns keep their value when the update carries none.
func (s *SQLiteStore) UpdateStatus(id string, update types.StatusUpdate) error {
	jobState := update.JobState.OrIdle()
	if err := validateStatus(update.Liveness, jobState); err != nil {
		return err
	}
	var balance types.BalanceUpdate
	hasBalance := update.Balance != nil
	if hasBalance {
		balance = *update.Balance
	}
	res, err := s.db.Exec(`
		UPDATE tracked_nodes SET
			liveness = ?,
			job_state = ?,
			last_checked = ?,
			last_known_liveness = CASE WHEN ? = 'unknown' THEN last_known_liveness ELSE ? END,
			sol_balance = CASE WHEN ? THEN ? ELSE sol_balance END,
			nos_balance = CASE WHEN ? THEN ? ELSE nos_balance END,
			low_balance = CASE WHEN ? THEN ? ELSE low_balance END,
			balance_checked = CASE WHEN ? THEN ? ELSE balance_checked END
		WHERE id = ?`,
		string(update.Liveness), string(jobState), toUnix(update.LastChecked),
		string(update.Liveness), string(update.Liveness),
		hasBalance, balance.SOL,
		hasBalance, balance.NOS,
		hasBalance, balance.Low,
		hasBalance, toUnix(balance.CheckedAt),
		id)
	return affected(res, err, id)
}

func (s *SQLiteStore) DeleteNode(id string) error {
	res, err := s.db.Exec("DELETE FROM tracked_nodes WHERE id = ?", id)
	return affected(res, err, id)
}

func affected(res sql.Result, err error, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) GetPreferences(owner string) (*types.NotificationPreference, error) {
	prefs := types.DefaultNotificationPreference(owner)
	err := scanPreferences(s.db.QueryRow("SELECT "+preferenceColumns+" FROM preferences WHERE owner = ?", owner), prefs)
	if errors.Is(err, sql.ErrNoRows) {
		return prefs, nil
	}
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func (s *SQLiteStore) SetPreferences(prefs *types.NotificationPreference) error {
	if prefs.Owner == "" {
		return fmt.Errorf("preferences owner is required")
	}
	_, err := s.db.Exec(`
		INSERT INTO preferences (`+preferenceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET
			notify_offline = excluded.notify_offline,
			notify_online = excluded.notify_online,
			notify_job_started = excluded.notify_job_started,
			notify_job_completed = excluded.notify_job_completed,
			notify_low_balance = excluded.notify_low_balance,
			vibration = excluded.vibration,
			sound = excluded.sound`,
		prefs.Owner, prefs.NotifyOffline, prefs.NotifyOnline, prefs.NotifyJobStarted,
		prefs.NotifyJobCompleted, prefs.NotifyLowBalance, prefs.Vibration, prefs.Sound)
	return err
}

func (s *SQLiteStore) ListPreferences() ([]*types.NotificationPreference, error) {
	rows, err := s.db.Query("SELECT " + preferenceColumns + " FROM preferences ORDER BY owner")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []*types.NotificationPreference
	for rows.Next() {
		prefs := &types.NotificationPreference{}
		if err := scanPreferences(rows, prefs); err != nil {
			return nil, err
		}
		all = append(all, prefs)
	}
	return all, rows.Err()
}

const preferenceColumns = "owner, notify_offline, notify_online, notify_job_started, notify_job_completed, " +
	"notify_low_balance, vibration, sound"

func scanPreferences(row rowScanner, prefs *types.NotificationPreference) error {
	return row.Scan(&prefs.Owner, &prefs.NotifyOffline, &prefs.NotifyOnline, &prefs.NotifyJobStarted,
		&prefs.NotifyJobCompleted, &prefs.NotifyLowBalance, &prefs.Vibration, &prefs.Sound)
}
