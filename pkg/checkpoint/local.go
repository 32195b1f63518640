package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	pkgerrors "github.com/absmach/hivemon/pkg/errors"
	"github.com/absmach/hivemon/pkg/model"
)

const (
	defaultDataDir = "./data"
	latestKey      = "checkpoint/latest"
)

// LocalStore keeps a crash-recovery copy of every saved checkpoint on local
// disk, CBOR-encoded in Badger. If the monitor dies between uploads, the
// freshest pulled state survives here.
type LocalStore struct {
	db *badger.DB
}

func NewLocalStore(dataDir string) (*LocalStore, error) {
	if dataDir == "" {
		dataDir = defaultDataDir
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dataDir, "checkpoints.db"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	return &LocalStore{db: db}, nil
}

func (s *LocalStore) Put(_ context.Context, st model.State) error {
	data, err := cbor.Marshal(st)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("checkpoint/%020d", st.Step)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), data); err != nil {
			return err
		}

		return txn.Set([]byte(latestKey), data)
	})
}

func (s *LocalStore) Latest(_ context.Context) (model.State, error) {
	var st model.State
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(latestKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return pkgerrors.ErrNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &st)
		})
	})
	if err != nil {
		return model.State{}, err
	}

	return st, nil
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}
