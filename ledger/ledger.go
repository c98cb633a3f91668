// Package ledger is the mint core: it owns the keysets, enforces at-most-once
// redemption through the spent set, and drives issuance and settlement
// against the payment backend. All RPC operations funnel through the Ledger.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/veilmint/veilmint/errors"
	"github.com/veilmint/veilmint/events"
	"github.com/veilmint/veilmint/keyset"
	"github.com/veilmint/veilmint/lightning"
	"github.com/veilmint/veilmint/logx"
	"github.com/veilmint/veilmint/monitoring"
	"github.com/veilmint/veilmint/store"
	"github.com/veilmint/veilmint/token"
)

const (
	defaultMaxSecretLength = 512
	defaultQuoteExpiry     = 10 * time.Minute
)

// Config carries everything a Ledger needs at startup. The seed is the only
// secret: every signing key is re-derived from it, nothing key-shaped is ever
// persisted.
type Config struct {
	Seed           []byte
	DerivationPath string
	MaxOrder       int
	Unit           string
	InputFeePPK    uint64

	QuoteExpiry     time.Duration
	MaxSecretLength int
}

func (c *Config) validate() error {
	if len(c.Seed) == 0 {
		return fmt.Errorf("ledger seed cannot be empty")
	}
	if c.MaxOrder <= 0 || c.MaxOrder > token.MaxOrder {
		return fmt.Errorf("max order %d out of range (1..%d)", c.MaxOrder, token.MaxOrder)
	}
	if c.Unit == "" {
		return fmt.Errorf("unit cannot be empty")
	}
	return nil
}

type Ledger struct {
	// mu guards the spent and pending sets. Nothing inside the critical
	// section touches the network; store writes happen after release with
	// rollback of the in-memory marks on failure.
	mu             sync.Mutex
	spentSecrets   map[string]struct{}
	pendingSecrets map[string]struct{}

	// quoteMu serializes quote state transitions (paid -> issued,
	// unpaid -> pending) so concurrent requests cannot double-issue or
	// double-pay a quote.
	quoteMu sync.Mutex

	keysets  map[string]*keyset.MintKeyset
	activeID string

	proofStore   store.ProofStore
	promiseStore store.PromiseStore
	quoteStore   store.QuoteStore
	keysetStore  store.KeysetStore

	backend     lightning.Backend
	eventRouter *events.EventRouter

	unit            string
	quoteExpiry     time.Duration
	maxSecretLength int
}

// NewLedger derives the active keyset, re-derives every historical keyset on
// record and rebuilds the in-memory spent and pending sets from storage.
func NewLedger(
	cfg *Config,
	proofStore store.ProofStore,
	promiseStore store.PromiseStore,
	quoteStore store.QuoteStore,
	keysetStore store.KeysetStore,
	backend lightning.Backend,
	eventRouter *events.EventRouter,
) (*Ledger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger config: %w", err)
	}

	quoteExpiry := cfg.QuoteExpiry
	if quoteExpiry == 0 {
		quoteExpiry = defaultQuoteExpiry
	}
	maxSecretLength := cfg.MaxSecretLength
	if maxSecretLength == 0 {
		maxSecretLength = defaultMaxSecretLength
	}

	l := &Ledger{
		spentSecrets:    make(map[string]struct{}),
		pendingSecrets:  make(map[string]struct{}),
		keysets:         make(map[string]*keyset.MintKeyset),
		proofStore:      proofStore,
		promiseStore:    promiseStore,
		quoteStore:      quoteStore,
		keysetStore:     keysetStore,
		backend:         backend,
		eventRouter:     eventRouter,
		unit:            cfg.Unit,
		quoteExpiry:     quoteExpiry,
		maxSecretLength: maxSecretLength,
	}

	if err := l.bootstrapKeysets(cfg); err != nil {
		return nil, fmt.Errorf("failed to bootstrap keysets: %w", err)
	}
	if err := l.rebuildSpentSets(); err != nil {
		return nil, fmt.Errorf("failed to rebuild spent sets: %w", err)
	}

	logx.Info("LEDGER", fmt.Sprintf("Ledger ready | active_keyset=%s | keysets=%d | spent=%d | pending=%d",
		l.activeID, len(l.keysets), len(l.spentSecrets), len(l.pendingSecrets)))
	return l, nil
}

// bootstrapKeysets derives the active keyset from the configured path and
// every historical keyset from its stored derivation path. A stored record
// whose re-derived ID differs means the seed changed underneath the mint,
// which is fatal: proofs issued under the old seed would become worthless.
func (l *Ledger) bootstrapKeysets(cfg *Config) error {
	active, err := keyset.Derive(cfg.Seed, cfg.DerivationPath, cfg.MaxOrder, cfg.Unit)
	if err != nil {
		return fmt.Errorf("failed to derive active keyset: %w", err)
	}
	active.Active = true
	active.InputFeePPK = cfg.InputFeePPK
	l.keysets[active.ID] = active
	l.activeID = active.ID

	records, err := l.keysetStore.List()
	if err != nil {
		return fmt.Errorf("failed to list keyset records: %w", err)
	}

	var activeRecord *store.KeysetRecord
	rotated := false
	for _, record := range records {
		if record.ID == active.ID {
			activeRecord = record
			continue
		}

		historical, err := keyset.Derive(cfg.Seed, record.DerivationPath, record.MaxOrder, record.Unit)
		if err != nil {
			return fmt.Errorf("failed to derive keyset %s: %w", record.ID, err)
		}
		if historical.ID != record.ID {
			return fmt.Errorf("keyset %s derives to %s: seed does not match storage", record.ID, historical.ID)
		}
		historical.InputFeePPK = record.InputFeePPK
		l.keysets[historical.ID] = historical

		if record.Active {
			record.Active = false
			if err := l.keysetStore.Store(record); err != nil {
				return fmt.Errorf("failed to deactivate keyset %s: %w", record.ID, err)
			}
			rotated = true
		}
	}

	if activeRecord == nil {
		if err := l.keysetStore.Store(&store.KeysetRecord{
			ID:             active.ID,
			Unit:           active.Unit,
			Active:         true,
			DerivationPath: active.DerivationPath,
			MaxOrder:       cfg.MaxOrder,
			InputFeePPK:    cfg.InputFeePPK,
			CreatedAt:      time.Now().Unix(),
		}); err != nil {
			return fmt.Errorf("failed to store active keyset record: %w", err)
		}
	} else if !activeRecord.Active {
		activeRecord.Active = true
		if err := l.keysetStore.Store(activeRecord); err != nil {
			return fmt.Errorf("failed to reactivate keyset %s: %w", activeRecord.ID, err)
		}
		rotated = true
	}

	if rotated {
		logx.Info("LEDGER", fmt.Sprintf("Keyset rotated, new active keyset %s", active.ID))
		l.eventRouter.PublishKeysetRotated(active.ID)
	}

	monitoring.SetLoadedKeysets(len(l.keysets))
	return nil
}

func (l *Ledger) rebuildSpentSets() error {
	spent, err := l.proofStore.LoadSpentSecrets()
	if err != nil {
		return fmt.Errorf("failed to load spent secrets: %w", err)
	}
	pending, err := l.proofStore.LoadPendingSecrets()
	if err != nil {
		return fmt.Errorf("failed to load pending secrets: %w", err)
	}

	// A secret recorded both spent and pending means a crash hit between
	// the settlement writes; spent wins.
	for secret := range pending {
		if _, ok := spent[secret]; ok {
			delete(pending, secret)
		}
	}

	l.spentSecrets = spent
	l.pendingSecrets = pending
	monitoring.SetSpentSetSize(len(spent))
	monitoring.SetPendingProofs(len(pending))
	return nil
}

// ActiveKeysetID returns the id of the keyset used for issuance.
func (l *Ledger) ActiveKeysetID() string {
	return l.activeID
}

// GetKeys returns the denomination public keys of the active keyset.
func (l *Ledger) GetKeys() (token.KeysetInfo, map[uint64]string, error) {
	return l.GetKeysetKeys(l.activeID)
}

// GetKeysetKeys returns the keys of one keyset by id, active or not.
func (l *Ledger) GetKeysetKeys(keysetID string) (token.KeysetInfo, map[uint64]string, error) {
	ks, ok := l.keysets[keysetID]
	if !ok {
		return token.KeysetInfo{}, nil, errors.ErrUnknownKeyset
	}
	return ks.Info(), ks.PublicKeysHex(), nil
}

// GetKeysets lists every keyset the mint has derived.
func (l *Ledger) GetKeysets() ([]token.KeysetInfo, error) {
	infos := make([]token.KeysetInfo, 0, len(l.keysets))
	for _, ks := range l.keysets {
		infos = append(infos, ks.Info())
	}
	return infos, nil
}

func (l *Ledger) activeKeyset() *keyset.MintKeyset {
	return l.keysets[l.activeID]
}

func secretsOf(proofs []token.Proof) []string {
	secrets := make([]string, len(proofs))
	for i := range proofs {
		secrets[i] = proofs[i].Secret
	}
	return secrets
}

// admitProofs is the double-spend gate: it atomically checks every input
// against the spent and pending sets and marks all of them spent, or rejects
// the whole batch leaving no trace. The store write happens outside the
// critical section; if it fails the in-memory marks are rolled back and the
// batch is rejected.
func (l *Ledger) admitProofs(proofs []token.Proof, operation string) error {
	l.mu.Lock()
	for i := range proofs {
		if _, spent := l.spentSecrets[proofs[i].Secret]; spent {
			l.mu.Unlock()
			monitoring.RecordRejectedRequest(monitoring.RejectedAlreadySpent)
			return errors.ErrAlreadySpent
		}
		if _, pending := l.pendingSecrets[proofs[i].Secret]; pending {
			l.mu.Unlock()
			monitoring.RecordRejectedRequest(monitoring.RejectedAlreadySpent)
			return errors.ErrProofPending
		}
	}
	for i := range proofs {
		l.spentSecrets[proofs[i].Secret] = struct{}{}
	}
	spentSize := len(l.spentSecrets)
	l.mu.Unlock()

	if err := l.proofStore.MarkSpentBatch(proofs); err != nil {
		l.mu.Lock()
		for i := range proofs {
			delete(l.spentSecrets, proofs[i].Secret)
		}
		l.mu.Unlock()
		logx.Error("LEDGER", "Failed to persist spent proofs, rolling back admission:", err.Error())
		return errors.NewErrorf(errors.ErrCodeInternal, "failed to persist spent proofs: %v", err)
	}

	amount := token.SumProofs(proofs)
	monitoring.RecordProofsSpent(len(proofs), amount)
	monitoring.SetSpentSetSize(spentSize)
	l.eventRouter.PublishProofsSpent(operation, len(proofs), amount)
	return nil
}

// setPendingProofs reserves inputs for an in-flight melt. Reserved secrets
// fail admission and further reservation until released, so the payment can
// run without the ledger lock while the inputs stay unspendable.
func (l *Ledger) setPendingProofs(proofs []token.Proof) error {
	l.mu.Lock()
	for i := range proofs {
		if _, spent := l.spentSecrets[proofs[i].Secret]; spent {
			l.mu.Unlock()
			monitoring.RecordRejectedRequest(monitoring.RejectedAlreadySpent)
			return errors.ErrAlreadySpent
		}
		if _, pending := l.pendingSecrets[proofs[i].Secret]; pending {
			l.mu.Unlock()
			monitoring.RecordRejectedRequest(monitoring.RejectedAlreadySpent)
			return errors.ErrProofPending
		}
	}
	for i := range proofs {
		l.pendingSecrets[proofs[i].Secret] = struct{}{}
	}
	pendingSize := len(l.pendingSecrets)
	l.mu.Unlock()

	if err := l.proofStore.SetPendingBatch(proofs); err != nil {
		l.mu.Lock()
		for i := range proofs {
			delete(l.pendingSecrets, proofs[i].Secret)
		}
		l.mu.Unlock()
		return errors.NewErrorf(errors.ErrCodeInternal, "failed to persist pending proofs: %v", err)
	}

	monitoring.SetPendingProofs(pendingSize)
	return nil
}

// unsetPendingProofs releases a reservation after a failed payment, making
// the inputs spendable again.
func (l *Ledger) unsetPendingProofs(proofs []token.Proof) error {
	l.mu.Lock()
	for i := range proofs {
		delete(l.pendingSecrets, proofs[i].Secret)
	}
	pendingSize := len(l.pendingSecrets)
	l.mu.Unlock()

	if err := l.proofStore.UnsetPendingBatch(secretsOf(proofs)); err != nil {
		return errors.NewErrorf(errors.ErrCodeInternal, "failed to release pending proofs: %v", err)
	}
	monitoring.SetPendingProofs(pendingSize)
	return nil
}

// settlePendingProofs moves reserved inputs to the spent set after the
// payment went through. The spent record is written before the pending
// marker is removed, so a crash in between resolves to spent on restart.
func (l *Ledger) settlePendingProofs(proofs []token.Proof, operation string) error {
	l.mu.Lock()
	for i := range proofs {
		delete(l.pendingSecrets, proofs[i].Secret)
		l.spentSecrets[proofs[i].Secret] = struct{}{}
	}
	spentSize := len(l.spentSecrets)
	pendingSize := len(l.pendingSecrets)
	l.mu.Unlock()

	if err := l.proofStore.MarkSpentBatch(proofs); err != nil {
		// The payment already settled; the in-memory marks must stand.
		logx.Error("LEDGER", "Failed to persist settled proofs, spent set diverges from storage:", err.Error())
		return errors.NewErrorf(errors.ErrCodeInternal, "failed to persist settled proofs: %v", err)
	}
	if err := l.proofStore.UnsetPendingBatch(secretsOf(proofs)); err != nil {
		logx.Error("LEDGER", "Failed to clear pending markers after settlement:", err.Error())
	}

	amount := token.SumProofs(proofs)
	monitoring.RecordProofsSpent(len(proofs), amount)
	monitoring.SetSpentSetSize(spentSize)
	monitoring.SetPendingProofs(pendingSize)
	l.eventRouter.PublishProofsSpent(operation, len(proofs), amount)
	return nil
}
