// Package peerstore provides a BoltDB-backed mirror of the in-memory peer
// registry, so tooling like the status CLI can inspect discovered robots
// without talking to the network. The registry stays authoritative; records
// here are never expired, matching the registry's no-eviction semantics.
package peerstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"impulse/internal/wire"
)

var peersBucket = []byte("peers")

// PeerRecord is a discovered robot plus local bookkeeping.
type PeerRecord struct {
	Agent       wire.AgentMessage `msgpack:"agent"`
	FirstSeen   time.Time         `msgpack:"first_seen"`
	LastSeen    time.Time         `msgpack:"last_seen"`
	PacketCount uint64            `msgpack:"packet_count"`
}

// Store wraps a bbolt database of peer records keyed by UUID.
type Store struct {
	db  *bolt.DB
	mu  sync.RWMutex
	log zerolog.Logger
}

// New opens or creates a BoltDB file at the given path.
func New(path string, log zerolog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(peersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating peers bucket: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or updates a peer record keyed by the agent's UUID,
// last-write-wins on the agent payload.
func (s *Store) Upsert(agent wire.AgentMessage) error {
	if agent.UUID == "" {
		return fmt.Errorf("agent record has no UUID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(peersBucket)
		key := []byte(agent.UUID)

		now := time.Now()
		var record PeerRecord

		existing := b.Get(key)
		if existing != nil {
			if err := msgpack.Unmarshal(existing, &record); err != nil {
				s.log.Warn().Err(err).Str("uuid", agent.UUID).Msg("Failed to unmarshal existing record, overwriting")
				record = PeerRecord{}
			}
			if record.FirstSeen.IsZero() {
				record.FirstSeen = now
			}
			record.Agent = agent
			record.LastSeen = now
			record.PacketCount++
		} else {
			record = PeerRecord{
				Agent:       agent,
				FirstSeen:   now,
				LastSeen:    now,
				PacketCount: 1,
			}
			s.log.Info().
				Str("uuid", agent.UUID).
				Str("name", agent.RobotName).
				Int32("capability", agent.CapabilityIndex).
				Msg("New robot recorded")
		}

		data, err := msgpack.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling peer record: %w", err)
		}
		return b.Put(key, data)
	})
}

// Get returns the record for a UUID if present.
func (s *Store) Get(uuid string) (PeerRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var record PeerRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(peersBucket).Get([]byte(uuid))
		if data == nil {
			return nil
		}
		if err := msgpack.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("unmarshaling record %s: %w", uuid, err)
		}
		found = true
		return nil
	})
	return record, found, err
}

// All returns every peer record.
func (s *Store) All() ([]PeerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []PeerRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(peersBucket)
		return b.ForEach(func(k, v []byte) error {
			var record PeerRecord
			if err := msgpack.Unmarshal(v, &record); err != nil {
				s.log.Warn().Err(err).Str("key", string(k)).Msg("Skipping corrupt record")
				return nil
			}
			records = append(records, record)
			return nil
		})
	})
	return records, err
}
