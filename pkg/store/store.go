package store

import (
	"context"
	"encoding/json"
)

// Store is a read accessor over the collaboration's shared, eventually
// consistent key-value store. Records under a key are written independently
// by peers and expire on their own TTL, so two reads may see different peer
// sets and there is no cross-peer consistency guarantee.
type Store interface {
	// Register announces the monitor to the store so peers can see it among
	// the collaboration's members.
	Register(ctx context.Context, id string, addrs []string) error

	// FetchLatest returns a point-in-time copy of the latest raw record per
	// peer published under key. An absent key yields (nil, nil): no peers
	// have reported yet, which is not an error.
	FetchLatest(ctx context.Context, key string) (map[string]json.RawMessage, error)
}
