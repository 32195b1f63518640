package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/absmach/hivemon/pkg/errors"
)

const ctJSON = "application/json"

type storedRecord struct {
	Value          json.RawMessage `json:"value"`
	ExpirationTime float64         `json:"expiration_time"`
}

type httpStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore returns a Store that reads through a DHT gateway over
// HTTP/JSON. The gateway resolves get(key, latest=true) against the
// distributed store and returns each live peer's most recent sub-record.
func NewHTTPStore(baseURL string, timeout time.Duration) Store {
	return &httpStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *httpStore) Register(ctx context.Context, id string, addrs []string) error {
	if id == "" {
		return errors.ErrEmptyKey
	}

	body, err := json.Marshal(map[string]any{
		"monitor_id": id,
		"addrs":      addrs,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/monitors", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", ctJSON)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: gateway returned %d", errors.ErrStoreUnavailable, resp.StatusCode)
	}

	return nil
}

func (s *httpStore) FetchLatest(ctx context.Context, key string) (map[string]json.RawMessage, error) {
	if key == "" {
		return nil, errors.ErrEmptyKey
	}

	u := fmt.Sprintf("%s/keys/%s?latest=true", s.baseURL, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: gateway returned %d", errors.ErrStoreUnavailable, resp.StatusCode)
	}

	var records map[string]storedRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrStoreUnavailable, err)
	}

	now := float64(time.Now().UnixNano()) / 1e9
	out := make(map[string]json.RawMessage, len(records))
	for peerID, rec := range records {
		if rec.ExpirationTime > 0 && rec.ExpirationTime < now {
			continue
		}
		out[peerID] = rec.Value
	}
	if len(out) == 0 {
		return nil, nil
	}

	return out, nil
}
