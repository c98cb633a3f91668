package store

import (
	"fmt"
	"sync"

	"github.com/veilmint/veilmint/db"
	"github.com/veilmint/veilmint/jsonx"
	"github.com/veilmint/veilmint/logx"
)

// KeysetRecord describes a keyset the mint has derived at some point. Only
// derivation metadata is stored; private keys are re-derived from the seed at
// startup and never touch disk.
type KeysetRecord struct {
	ID             string `json:"id"`
	Unit           string `json:"unit"`
	Active         bool   `json:"active"`
	DerivationPath string `json:"derivation_path"`
	MaxOrder       int    `json:"max_order"`
	InputFeePPK    uint64 `json:"input_fee_ppk"`
	CreatedAt      int64  `json:"created_at"`
}

type KeysetStore interface {
	Store(record *KeysetRecord) error
	Get(id string) (*KeysetRecord, error)
	List() ([]*KeysetRecord, error)
	MustClose()
}

type GenericKeysetStore struct {
	mu         sync.RWMutex
	dbProvider db.DatabaseProvider
}

func NewGenericKeysetStore(dbProvider db.DatabaseProvider) (*GenericKeysetStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericKeysetStore{
		dbProvider: dbProvider,
	}, nil
}

func (ks *GenericKeysetStore) Store(record *KeysetRecord) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	data, err := jsonx.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal keyset record: %w", err)
	}

	if err := ks.dbProvider.Put(ks.getDbKey(record.ID), data); err != nil {
		return fmt.Errorf("failed to write keyset record to database: %w", err)
	}

	logx.Info("KEYSET_STORE", fmt.Sprintf("Stored keyset %s (active=%t)", record.ID, record.Active))
	return nil
}

// Get returns the record for a keyset id, both nil if unknown.
func (ks *GenericKeysetStore) Get(id string) (*KeysetRecord, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	data, err := ks.dbProvider.Get(ks.getDbKey(id))
	if err != nil {
		return nil, fmt.Errorf("could not get keyset record from db: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var record KeysetRecord
	if err := jsonx.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keyset record: %w", err)
	}
	return &record, nil
}

func (ks *GenericKeysetStore) List() ([]*KeysetRecord, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	iterable, ok := ks.dbProvider.(db.IterableProvider)
	if !ok {
		return nil, fmt.Errorf("database provider does not support iteration")
	}

	var records []*KeysetRecord
	err := iterable.IteratePrefix([]byte(PrefixKeyset), func(key, value []byte) bool {
		var record KeysetRecord
		if err := jsonx.Unmarshal(value, &record); err != nil {
			logx.Warn("KEYSET_STORE", fmt.Sprintf("Skipping malformed keyset record at %s: %v", key, err))
			return true
		}
		records = append(records, &record)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate keyset records: %w", err)
	}
	return records, nil
}

func (ks *GenericKeysetStore) MustClose() {
	err := ks.dbProvider.Close()
	if err != nil {
		logx.Error("KEYSET_STORE", "Failed to close db provider:", err.Error())
	}
}

func (ks *GenericKeysetStore) getDbKey(id string) []byte {
	return []byte(PrefixKeyset + id)
}
