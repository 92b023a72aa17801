package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/nodewatch/pkg/ledger"
	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a node does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an owner registers an address twice
	ErrDuplicate = errors.New("already exists")
)

// Driver names accepted by Open
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
)

// Store defines the interface for the node registry
type Store interface {
	// Tracked nodes
	CreateNode(node *types.TrackedNode) error
	GetNode(id string) (*types.TrackedNode, error)
	ListNodes() ([]*types.TrackedNode, error)
	ListTrackedNodes(owner string) ([]*types.TrackedNode, error)
	ListOwners() ([]string, error)
	UpdateNodeDetails(id, name, notes string) error
	DeleteNode(id string) error

	// UpdateStatus writes liveness, job state, last checked, last known
	// liveness and the balance reading, if any, in one atomic operation.
	// Returns ErrNotFound if the node was deleted.
	UpdateStatus(id string, update types.StatusUpdate) error

	// Preferences. GetPreferences returns defaults for owners that never
	// saved any.
	GetPreferences(owner string) (*types.NotificationPreference, error)
	SetPreferences(prefs *types.NotificationPreference) error
	// ListPreferences returns every saved preference record ordered by
	// owner, including owners that no longer track any node
	ListPreferences() ([]*types.NotificationPreference, error)

	// Utility
	Close() error
}

// Open creates a store for driver under dataDir
func Open(driver, dataDir string) (Store, error) {
	switch driver {
	case DriverBolt, "":
		return NewBoltStore(dataDir)
	case DriverSQLite:
		return NewSQLiteStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// prepareNode validates a new node and fills in its defaults
func prepareNode(node *types.TrackedNode) error {
	node.Owner = strings.TrimSpace(node.Owner)
	if node.Owner == "" {
		return fmt.Errorf("node owner is required")
	}
	addr, err := ledger.NormalizeAddress(node.Address)
	if err != nil {
		return fmt.Errorf("node address %q: %w", node.Address, err)
	}
	node.Address = addr

	if node.ID == "" {
		node.ID = uuid.New().String()
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now()
	}
	if node.Liveness == "" {
		node.Liveness = types.LivenessUnknown
	}
	node.JobState = node.JobState.OrIdle()
	return validateStatus(node.Liveness, node.JobState)
}

func validateStatus(l types.Liveness, s types.JobState) error {
	if !l.Valid() {
		return fmt.Errorf("invalid liveness %q", l)
	}
	if !s.Valid() {
		return fmt.Errorf("invalid job state %q", s)
	}
	return nil
}

// applyStatus copies update onto node. LastKnownLiveness only moves on a
// definite liveness.
func applyStatus(node *types.TrackedNode, update types.StatusUpdate) {
	node.Liveness = update.Liveness
	node.JobState = update.JobState.OrIdle()
	node.LastChecked = update.LastChecked
	if update.Liveness != types.LivenessUnknown {
		node.LastKnownLiveness = update.Liveness
	}
	if b := update.Balance; b != nil {
		node.SOLBalance = b.SOL
		node.NOSBalance = b.NOS
		node.LowBalance = b.Low
		node.BalanceCheckedAt = b.CheckedAt
	}
}
