package store

import (
	"fmt"
	"sync"

	"github.com/veilmint/veilmint/db"
	"github.com/veilmint/veilmint/jsonx"
	"github.com/veilmint/veilmint/logx"
)

// Promise is a blind signature the mint has issued, keyed by the blinded
// point it signed. Looking a promise up by B_ detects repeated signing
// requests and backs wallet restore from seed.
type Promise struct {
	B         string `json:"b_"`
	Amount    uint64 `json:"amount"`
	C         string `json:"c_"`
	E         string `json:"e,omitempty"`
	S         string `json:"s,omitempty"`
	KeysetID  string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

type PromiseStore interface {
	StoreBatch(promises []Promise) error
	Get(b string) (*Promise, error)
	GetBatch(bs []string) (map[string]*Promise, error)
	MustClose()
}

type GenericPromiseStore struct {
	mu         sync.RWMutex
	dbProvider db.DatabaseProvider
}

func NewGenericPromiseStore(dbProvider db.DatabaseProvider) (*GenericPromiseStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericPromiseStore{
		dbProvider: dbProvider,
	}, nil
}

func (ps *GenericPromiseStore) StoreBatch(promises []Promise) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	batch := ps.dbProvider.Batch()
	defer batch.Close()
	for i := range promises {
		data, err := jsonx.Marshal(&promises[i])
		if err != nil {
			return fmt.Errorf("failed to marshal promise: %w", err)
		}
		batch.Put(ps.getDbKey(promises[i].B), data)
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to write batch of promises to database: %w", err)
	}

	logx.Info("PROMISE_STORE", fmt.Sprintf("Stored %d promises", len(promises)))
	return nil
}

// Get returns the promise for a blinded point, both nil if never signed.
func (ps *GenericPromiseStore) Get(b string) (*Promise, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	data, err := ps.dbProvider.Get(ps.getDbKey(b))
	if err != nil {
		return nil, fmt.Errorf("could not get promise from db: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var promise Promise
	if err := jsonx.Unmarshal(data, &promise); err != nil {
		return nil, fmt.Errorf("failed to unmarshal promise: %w", err)
	}
	return &promise, nil
}

// GetBatch retrieves promises for multiple blinded points. Unknown points are
// absent from the result map rather than reported as errors.
func (ps *GenericPromiseStore) GetBatch(bs []string) (map[string]*Promise, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	keys := make([][]byte, 0, len(bs))
	for _, b := range bs {
		if b == "" {
			continue
		}
		keys = append(keys, ps.getDbKey(b))
	}

	values, err := ps.dbProvider.GetBatch(keys)
	if err != nil {
		return nil, fmt.Errorf("could not get batch of promises from db: %w", err)
	}

	result := make(map[string]*Promise, len(values))
	for key, data := range values {
		if data == nil {
			continue
		}
		var promise Promise
		if err := jsonx.Unmarshal(data, &promise); err != nil {
			logx.Warn("PROMISE_STORE", fmt.Sprintf("Skipping malformed promise at %s: %v", key, err))
			continue
		}
		result[promise.B] = &promise
	}
	return result, nil
}

func (ps *GenericPromiseStore) MustClose() {
	err := ps.dbProvider.Close()
	if err != nil {
		logx.Error("PROMISE_STORE", "Failed to close db provider:", err.Error())
	}
}

func (ps *GenericPromiseStore) getDbKey(b string) []byte {
	return []byte(PrefixPromise + b)
}
