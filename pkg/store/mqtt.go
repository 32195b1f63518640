package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/absmach/hivemon/pkg/errors"
	"github.com/absmach/hivemon/pkg/mqtt"
)

var (
	progressWildcardTemplate = "collab/%s/peers/+/progress"
	monitorAliveTemplate     = "collab/%s/monitor/alive"
)

type mqttStore struct {
	pubsub     mqtt.PubSub
	experiment string
	key        string
	ttl        time.Duration

	mu      sync.Mutex
	records map[string]expiringRecord
}

// NewMQTTStore returns a Store fed by the collaboration's MQTT channel.
// Peers publish their progress record on collab/<experiment>/peers/<id>/progress;
// the store keeps the latest record per peer and drops it once the TTL
// elapses without a refresh, so dead peers silently vanish from reads.
func NewMQTTStore(pubsub mqtt.PubSub, experiment, key string, ttl time.Duration) Store {
	return &mqttStore{
		pubsub:     pubsub,
		experiment: experiment,
		key:        key,
		ttl:        ttl,
		records:    make(map[string]expiringRecord),
	}
}

func (s *mqttStore) Register(ctx context.Context, id string, addrs []string) error {
	if id == "" {
		return errors.ErrEmptyKey
	}

	topic := fmt.Sprintf(progressWildcardTemplate, s.experiment)
	if err := s.pubsub.Subscribe(ctx, topic, s.handle); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrStoreUnavailable, err)
	}

	alive := map[string]any{
		"status":     "online",
		"monitor_id": id,
		"addrs":      addrs,
	}

	return s.pubsub.Publish(ctx, fmt.Sprintf(monitorAliveTemplate, s.experiment), alive)
}

func (s *mqttStore) FetchLatest(_ context.Context, key string) (map[string]json.RawMessage, error) {
	if key == "" {
		return nil, errors.ErrEmptyKey
	}
	if key != s.key {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make(map[string]json.RawMessage)
	for peerID, rec := range s.records {
		if now.After(rec.expiresAt) {
			delete(s.records, peerID)

			continue
		}
		out[peerID] = rec.raw
	}
	if len(out) == 0 {
		return nil, nil
	}

	return out, nil
}

func (s *mqttStore) handle(topic string, payload []byte) error {
	peerID := peerFromTopic(topic)
	if peerID == "" {
		return fmt.Errorf("%w: unexpected topic %s", errors.ErrMalformedRecord, topic)
	}

	raw := make(json.RawMessage, len(payload))
	copy(raw, payload)

	s.mu.Lock()
	s.records[peerID] = expiringRecord{
		raw:       raw,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return nil
}

func peerFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[len(parts)-1] != "progress" {
		return ""
	}

	return parts[len(parts)-2]
}
