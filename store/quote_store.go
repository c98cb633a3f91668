package store

import (
	"fmt"
	"sync"

	"github.com/veilmint/veilmint/db"
	"github.com/veilmint/veilmint/jsonx"
	"github.com/veilmint/veilmint/logx"
	"github.com/veilmint/veilmint/token"
)

// QuoteStore persists mint and melt quotes across restarts. Mint quotes are
// additionally indexed by backend checking id so an incoming payment
// notification can be matched to its quote without a scan.
type QuoteStore interface {
	StoreMintQuote(quote *token.MintQuote) error
	GetMintQuote(id string) (*token.MintQuote, error)
	GetMintQuoteByChecking(checkingID string) (*token.MintQuote, error)
	ListMintQuotes(state token.QuoteState) ([]*token.MintQuote, error)
	StoreMeltQuote(quote *token.MeltQuote) error
	GetMeltQuote(id string) (*token.MeltQuote, error)
	ListMeltQuotes(state token.QuoteState) ([]*token.MeltQuote, error)
	MustClose()
}

type GenericQuoteStore struct {
	mu         sync.RWMutex
	dbProvider db.DatabaseProvider
}

func NewGenericQuoteStore(dbProvider db.DatabaseProvider) (*GenericQuoteStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericQuoteStore{
		dbProvider: dbProvider,
	}, nil
}

// StoreMintQuote writes the quote and its checking-id index entry in one
// batch. Callers use it both to create quotes and to persist state changes.
func (qs *GenericQuoteStore) StoreMintQuote(quote *token.MintQuote) error {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	data, err := jsonx.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal mint quote: %w", err)
	}

	batch := qs.dbProvider.Batch()
	defer batch.Close()
	batch.Put(qs.getMintQuoteKey(quote.ID), data)
	if quote.CheckingID != "" {
		batch.Put(qs.getCheckingKey(quote.CheckingID), []byte(quote.ID))
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("failed to write mint quote to database: %w", err)
	}
	return nil
}

// GetMintQuote returns the quote for an id, both nil if unknown.
func (qs *GenericQuoteStore) GetMintQuote(id string) (*token.MintQuote, error) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	return qs.readMintQuote(qs.getMintQuoteKey(id))
}

// GetMintQuoteByChecking resolves a backend checking id to its quote, both
// nil if no quote carries that checking id.
func (qs *GenericQuoteStore) GetMintQuoteByChecking(checkingID string) (*token.MintQuote, error) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	quoteID, err := qs.dbProvider.Get(qs.getCheckingKey(checkingID))
	if err != nil {
		return nil, fmt.Errorf("could not resolve checking id from db: %w", err)
	}
	if quoteID == nil {
		return nil, nil
	}
	return qs.readMintQuote(qs.getMintQuoteKey(string(quoteID)))
}

// ListMintQuotes returns all mint quotes in the given state. Used by the
// invoice watcher to poll unpaid quotes against the backend.
func (qs *GenericQuoteStore) ListMintQuotes(state token.QuoteState) ([]*token.MintQuote, error) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	iterable, ok := qs.dbProvider.(db.IterableProvider)
	if !ok {
		return nil, fmt.Errorf("database provider does not support iteration")
	}

	var quotes []*token.MintQuote
	err := iterable.IteratePrefix([]byte(PrefixMintQuote), func(key, value []byte) bool {
		var quote token.MintQuote
		if err := jsonx.Unmarshal(value, &quote); err != nil {
			logx.Warn("QUOTE_STORE", fmt.Sprintf("Skipping malformed mint quote at %s: %v", key, err))
			return true
		}
		if quote.State == state {
			quotes = append(quotes, &quote)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate mint quotes: %w", err)
	}
	return quotes, nil
}

func (qs *GenericQuoteStore) StoreMeltQuote(quote *token.MeltQuote) error {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	data, err := jsonx.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal melt quote: %w", err)
	}

	if err := qs.dbProvider.Put(qs.getMeltQuoteKey(quote.ID), data); err != nil {
		return fmt.Errorf("failed to write melt quote to database: %w", err)
	}
	return nil
}

// GetMeltQuote returns the quote for an id, both nil if unknown.
func (qs *GenericQuoteStore) GetMeltQuote(id string) (*token.MeltQuote, error) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	data, err := qs.dbProvider.Get(qs.getMeltQuoteKey(id))
	if err != nil {
		return nil, fmt.Errorf("could not get melt quote from db: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var quote token.MeltQuote
	if err := jsonx.Unmarshal(data, &quote); err != nil {
		return nil, fmt.Errorf("failed to unmarshal melt quote: %w", err)
	}
	return &quote, nil
}

// ListMeltQuotes returns all melt quotes in the given state. Used at startup
// to resolve payments that were in flight when the process died.
func (qs *GenericQuoteStore) ListMeltQuotes(state token.QuoteState) ([]*token.MeltQuote, error) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	iterable, ok := qs.dbProvider.(db.IterableProvider)
	if !ok {
		return nil, fmt.Errorf("database provider does not support iteration")
	}

	var quotes []*token.MeltQuote
	err := iterable.IteratePrefix([]byte(PrefixMeltQuote), func(key, value []byte) bool {
		var quote token.MeltQuote
		if err := jsonx.Unmarshal(value, &quote); err != nil {
			logx.Warn("QUOTE_STORE", fmt.Sprintf("Skipping malformed melt quote at %s: %v", key, err))
			return true
		}
		if quote.State == state {
			quotes = append(quotes, &quote)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate melt quotes: %w", err)
	}
	return quotes, nil
}

func (qs *GenericQuoteStore) MustClose() {
	err := qs.dbProvider.Close()
	if err != nil {
		logx.Error("QUOTE_STORE", "Failed to close db provider:", err.Error())
	}
}

func (qs *GenericQuoteStore) readMintQuote(key []byte) (*token.MintQuote, error) {
	data, err := qs.dbProvider.Get(key)
	if err != nil {
		return nil, fmt.Errorf("could not get mint quote from db: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var quote token.MintQuote
	if err := jsonx.Unmarshal(data, &quote); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mint quote: %w", err)
	}
	return &quote, nil
}

func (qs *GenericQuoteStore) getMintQuoteKey(id string) []byte {
	return []byte(PrefixMintQuote + id)
}

func (qs *GenericQuoteStore) getCheckingKey(checkingID string) []byte {
	return []byte(PrefixMintQuoteChecking + checkingID)
}

func (qs *GenericQuoteStore) getMeltQuoteKey(id string) []byte {
	return []byte(PrefixMeltQuote + id)
}
