// Package store persists protector state across restarts.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rustyeddy/riskguard/risk"
)

const stateBucketName = "protector_state"

// Bolt keeps one risk.State per trading context key.
type Bolt struct {
	db *bolt.DB
}

type stateRecord struct {
	Key       string     `json:"key"`
	SavedAt   int64      `json:"saved_at"`
	State     risk.State `json:"state"`
	SchemaVer int        `json:"schema_version"`
}

const schemaVersion = 1

func Open(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir state path: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(stateBucketName))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Save overwrites the state stored under key.
func (b *Bolt) Save(key string, s risk.State) error {
	if key == "" {
		return fmt.Errorf("state key is empty")
	}
	data, err := json.Marshal(stateRecord{
		Key:       key,
		SavedAt:   time.Now().UnixMilli(),
		State:     s,
		SchemaVer: schemaVersion,
	})
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(stateBucketName)).Put([]byte(key), data)
	})
}

// Load returns the state stored under key. ok is false when nothing was
// saved yet.
func (b *Bolt) Load(key string) (s risk.State, ok bool, err error) {
	err = b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(stateBucketName)).Get([]byte(key))
		if len(data) == 0 {
			return nil
		}
		var rec stateRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode state %q: %w", key, err)
		}
		if rec.SchemaVer != schemaVersion {
			return fmt.Errorf("state %q: unsupported schema version %d", key, rec.SchemaVer)
		}
		s, ok = rec.State, true
		return nil
	})
	return s, ok, err
}

func (b *Bolt) Delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(stateBucketName)).Delete([]byte(key))
	})
}

// Keys lists every stored context, sorted.
func (b *Bolt) Keys() ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(stateBucketName)).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	sort.Strings(keys)
	return keys, err
}

// Memory is a process local Store, used when persistence is off.
type Memory struct {
	states map[string]risk.State
}

func NewMemory() *Memory { return &Memory{states: map[string]risk.State{}} }

func (m *Memory) Save(key string, s risk.State) error {
	m.states[key] = s.Clone()
	return nil
}

func (m *Memory) Load(key string) (risk.State, bool, error) {
	s, ok := m.states[key]
	if !ok {
		return risk.State{}, false, nil
	}
	return s.Clone(), true, nil
}

func (m *Memory) Close() error { return nil }

// Store is what the supervisor needs from a state backend.
type Store interface {
	Save(key string, s risk.State) error
	Load(key string) (risk.State, bool, error)
	Close() error
}

var (
	_ Store = (*Bolt)(nil)
	_ Store = (*Memory)(nil)
)
