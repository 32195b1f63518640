package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/absmach/hivemon/pkg/errors"
)

type expiringRecord struct {
	raw       json.RawMessage
	expiresAt time.Time
}

type memStore struct {
	sync.Mutex

	data map[string]map[string]expiringRecord
}

// NewInMemoryStore returns a Store backed by process memory, with per-record
// TTL semantics matching the shared store. Used in tests and local runs.
func NewInMemoryStore() *MemStore {
	return &MemStore{
		memStore: memStore{
			data: make(map[string]map[string]expiringRecord),
		},
	}
}

// MemStore exposes the write side so tests can play the role of peers.
type MemStore struct {
	memStore
}

func (s *MemStore) Publish(key, peerID string, raw json.RawMessage, ttl time.Duration) error {
	if key == "" || peerID == "" {
		return errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[key]; !ok {
		s.data[key] = make(map[string]expiringRecord)
	}
	s.data[key][peerID] = expiringRecord{
		raw:       raw,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

func (s *MemStore) Register(_ context.Context, id string, _ []string) error {
	if id == "" {
		return errors.ErrEmptyKey
	}

	return nil
}

func (s *MemStore) FetchLatest(_ context.Context, key string) (map[string]json.RawMessage, error) {
	if key == "" {
		return nil, errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	records, ok := s.data[key]
	if !ok {
		return nil, nil
	}

	now := time.Now()
	out := make(map[string]json.RawMessage)
	for peerID, rec := range records {
		if now.After(rec.expiresAt) {
			delete(records, peerID)

			continue
		}
		out[peerID] = rec.raw
	}
	if len(out) == 0 {
		return nil, nil
	}

	return out, nil
}
