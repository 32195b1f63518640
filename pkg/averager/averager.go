package averager

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/absmach/hivemon/pkg/errors"
	"github.com/absmach/hivemon/pkg/model"
)

// Service is the external state-averaging collaborator. PullState performs
// an all-peer synchronization to materialize a consistent model+optimizer
// snapshot; it blocks, may legitimately take tens of seconds, and may fail
// or time out. The caller bounds it with the request context.
type Service interface {
	PullState(ctx context.Context) (model.State, error)
}

type httpAverager struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAverager returns a Service backed by an averager sidecar reached
// over HTTP. The snapshot body is CBOR, the averager's wire encoding.
func NewHTTPAverager(baseURL string, timeout time.Duration) Service {
	return &httpAverager{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *httpAverager) PullState(ctx context.Context) (model.State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/state?consistent=true", http.NoBody)
	if err != nil {
		return model.State{}, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return model.State{}, fmt.Errorf("%w: %s", errors.ErrStatePull, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.State{}, fmt.Errorf("%w: averager returned %d", errors.ErrStatePull, resp.StatusCode)
	}

	var st model.State
	if err := cbor.NewDecoder(resp.Body).Decode(&st); err != nil {
		return model.State{}, fmt.Errorf("%w: %s", errors.ErrStatePull, err)
	}

	return st, nil
}
