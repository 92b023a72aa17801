package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cuemby/nodewatch/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketNodes       = []byte("nodes")
	bucketOwnerIndex  = []byte("owner_address")
	bucketPreferences = []byte("preferences")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "nodewatch.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketNodes, bucketOwnerIndex, bucketPreferences} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// ownerKey orders index entries by owner then address
func ownerKey(owner, address string) []byte {
	return []byte(owner + "\x00" + address)
}

func ownerPrefix(owner string) []byte {
	return []byte(owner + "\x00")
}

func getNode(tx *bolt.Tx, id string) (*types.TrackedNode, error) {
	data := tx.Bucket(bucketNodes).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	var node types.TrackedNode
	if err := sonic.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func putNode(tx *bolt.Tx, node *types.TrackedNode) error {
	data, err := sonic.Marshal(node)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketNodes).Put([]byte(node.ID), data)
}

// Node operations
func (s *BoltStore) CreateNode(node *types.TrackedNode) error {
	if err := prepareNode(node); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketOwnerIndex)
		key := ownerKey(node.Owner, node.Address)
		if idx.Get(key) != nil {
			return fmt.Errorf("node %s for %s: %w", node.Address, node.Owner, ErrDuplicate)
		}
		if tx.Bucket(bucketNodes).Get([]byte(node.ID)) != nil {
			return fmt.Errorf("node %s: %w", node.ID, ErrDuplicate)
		}
		if err := idx.Put(key, []byte(node.ID)); err != nil {
			return err
		}
		return putNode(tx, node)
	})
}

func (s *BoltStore) GetNode(id string) (*types.TrackedNode, error) {
	var node *types.TrackedNode
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		node, err = getNode(tx, id)
		return err
	})
	return node, err
}

func (s *BoltStore) ListNodes() ([]*types.TrackedNode, error) {
	var nodes []*types.TrackedNode
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.ForEach(func(k, v []byte) error {
			var node types.TrackedNode
			if err := sonic.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

// ListTrackedNodes returns owner's nodes ordered by address
func (s *BoltStore) ListTrackedNodes(owner string) ([]*types.TrackedNode, error) {
	var nodes []*types.TrackedNode
	err := s.db.View(func(tx *bolt.Tx) error {
		prefix := ownerPrefix(owner)
		c := tx.Bucket(bucketOwnerIndex).Cursor()
		for k, id := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Next() {
			node, err := getNode(tx, string(id))
			if err != nil {
				return err
			}
			nodes = append(nodes, node)
		}
		return nil
	})
	return nodes, err
}

// ListOwners returns every owner with at least one tracked node, sorted
func (s *BoltStore) ListOwners() ([]string, error) {
	var owners []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOwnerIndex).ForEach(func(k, _ []byte) error {
			owner, _, _ := bytes.Cut(k, []byte{0})
			if n := len(owners); n == 0 || owners[n-1] != string(owner) {
				owners = append(owners, string(owner))
			}
			return nil
		})
	})
	return owners, err
}

func (s *BoltStore) UpdateNodeDetails(id, name, notes string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		node, err := getNode(tx, id)
		if err != nil {
			return err
		}
		node.Name = name
		node.Notes = notes
		return putNode(tx, node)
	})
}

func (s *BoltStore) UpdateStatus(id string, update types.StatusUpdate) error {
	if err := validateStatus(update.Liveness, update.JobState.OrIdle()); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		node, err := getNode(tx, id)
		if err != nil {
			return err
		}
		applyStatus(node, update)
		return putNode(tx, node)
	})
}

func (s *BoltStore) DeleteNode(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		node, err := getNode(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketOwnerIndex).Delete(ownerKey(node.Owner, node.Address)); err != nil {
			return err
		}
		return tx.Bucket(bucketNodes).Delete([]byte(id))
	})
}

// Preference operations
func (s *BoltStore) GetPreferences(owner string) (*types.NotificationPreference, error) {
	prefs := types.DefaultNotificationPreference(owner)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPreferences).Get([]byte(owner))
		if data == nil {
			return nil
		}
		return sonic.Unmarshal(data, prefs)
	})
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func (s *BoltStore) SetPreferences(prefs *types.NotificationPreference) error {
	if prefs.Owner == "" {
		return fmt.Errorf("preferences owner is required")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := sonic.Marshal(prefs)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPreferences).Put([]byte(prefs.Owner), data)
	})
}

// ListPreferences walks the preferences bucket, which bolt keeps sorted by owner
func (s *BoltStore) ListPreferences() ([]*types.NotificationPreference, error) {
	var all []*types.NotificationPreference
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPreferences).ForEach(func(k, v []byte) error {
			prefs := types.DefaultNotificationPreference(string(k))
			if err := sonic.Unmarshal(v, prefs); err != nil {
				return fmt.Errorf("preferences for %s: %w", k, err)
			}
			all = append(all, prefs)
			return nil
		})
	})
	return all, err
}
