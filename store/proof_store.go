package store

import (
	"fmt"
	"sync"

	"github.com/veilmint/veilmint/db"
	"github.com/veilmint/veilmint/jsonx"
	"github.com/veilmint/veilmint/logx"
	"github.com/veilmint/veilmint/token"
)

// ProofStore persists spent and pending proofs. Spent proofs are kept forever
// so the full proof can be returned on double-spend lookups; pending markers
// are removed once the in-flight payment settles or fails.
type ProofStore interface {
	MarkSpentBatch(proofs []token.Proof) error
	GetSpent(secret string) (*token.Proof, error)
	LoadSpentSecrets() (map[string]struct{}, error)
	SetPendingBatch(proofs []token.Proof) error
	GetPendingBatch(secrets []string) ([]token.Proof, error)
	UnsetPendingBatch(secrets []string) error
	LoadPendingSecrets() (map[string]struct{}, error)
	MustClose()
}

type GenericProofStore struct {
	mu         sync.RWMutex
	dbProvider db.DatabaseProvider
}

func NewGenericProofStore(dbProvider db.DatabaseProvider) (*GenericProofStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericProofStore{
		dbProvider: dbProvider,
	}, nil
}

// MarkSpentBatch writes all proofs in one batch so a crash can never leave a
// partially spent input set on disk.
func (ps *GenericProofStore) MarkSpentBatch(proofs []token.Proof) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	batch := ps.dbProvider.Batch()
	defer batch.Close()
	for i := range proofs {
		data, err := jsonx.Marshal(&proofs[i])
		if err != nil {
			return fmt.Errorf("failed to marshal proof: %w", err)
		}
		batch.Put(ps.getSpentKey(proofs[i].Secret), data)
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to write batch of spent proofs to database: %w", err)
	}

	logx.Info("PROOF_STORE", fmt.Sprintf("Marked %d proofs spent", len(proofs)))
	return nil
}

// GetSpent returns the stored proof for a secret, both nil if never spent.
func (ps *GenericProofStore) GetSpent(secret string) (*token.Proof, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	data, err := ps.dbProvider.Get(ps.getSpentKey(secret))
	if err != nil {
		return nil, fmt.Errorf("could not get spent proof from db: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var proof token.Proof
	if err := jsonx.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("failed to unmarshal spent proof: %w", err)
	}
	return &proof, nil
}

// LoadSpentSecrets scans the full spent prefix. Called once at startup to
// rebuild the in-memory spent set.
func (ps *GenericProofStore) LoadSpentSecrets() (map[string]struct{}, error) {
	return ps.loadSecrets(PrefixSpentProof)
}

func (ps *GenericProofStore) SetPendingBatch(proofs []token.Proof) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	batch := ps.dbProvider.Batch()
	defer batch.Close()
	for i := range proofs {
		data, err := jsonx.Marshal(&proofs[i])
		if err != nil {
			return fmt.Errorf("failed to marshal proof: %w", err)
		}
		batch.Put(ps.getPendingKey(proofs[i].Secret), data)
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to write batch of pending proofs to database: %w", err)
	}
	return nil
}

// GetPendingBatch returns the stored pending proofs for the given secrets.
// Secrets without a pending marker are skipped, so a half-settled batch
// yields only the proofs still locked.
func (ps *GenericProofStore) GetPendingBatch(secrets []string) ([]token.Proof, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	proofs := make([]token.Proof, 0, len(secrets))
	for _, secret := range secrets {
		data, err := ps.dbProvider.Get(ps.getPendingKey(secret))
		if err != nil {
			return nil, fmt.Errorf("could not get pending proof from db: %w", err)
		}
		if data == nil {
			continue
		}

		var proof token.Proof
		if err := jsonx.Unmarshal(data, &proof); err != nil {
			logx.Warn("PROOF_STORE", fmt.Sprintf("Skipping malformed pending proof for secret %s: %v", secret, err))
			continue
		}
		proofs = append(proofs, proof)
	}
	return proofs, nil
}

func (ps *GenericProofStore) UnsetPendingBatch(secrets []string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	batch := ps.dbProvider.Batch()
	defer batch.Close()
	for _, secret := range secrets {
		batch.Delete(ps.getPendingKey(secret))
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to delete batch of pending proofs from database: %w", err)
	}
	return nil
}

func (ps *GenericProofStore) LoadPendingSecrets() (map[string]struct{}, error) {
	return ps.loadSecrets(PrefixPendingProof)
}

func (ps *GenericProofStore) loadSecrets(prefix string) (map[string]struct{}, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	iterable, ok := ps.dbProvider.(db.IterableProvider)
	if !ok {
		return nil, fmt.Errorf("database provider does not support iteration")
	}

	secrets := make(map[string]struct{})
	err := iterable.IteratePrefix([]byte(prefix), func(key, value []byte) bool {
		secrets[string(key[len(prefix):])] = struct{}{}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate %s keys: %w", prefix, err)
	}
	return secrets, nil
}

func (ps *GenericProofStore) MustClose() {
	err := ps.dbProvider.Close()
	if err != nil {
		logx.Error("PROOF_STORE", "Failed to close db provider:", err.Error())
	}
}

func (ps *GenericProofStore) getSpentKey(secret string) []byte {
	return []byte(PrefixSpentProof + secret)
}

func (ps *GenericProofStore) getPendingKey(secret string) []byte {
	return []byte(PrefixPendingProof + secret)
}
