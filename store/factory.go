package store

import (
	"fmt"

	"github.com/veilmint/veilmint/db"
)

// StoreConfig holds configuration for creating store instances
type StoreConfig struct {
	// Vendor specifies which database backend to use
	Vendor db.Vendor `json:"vendor" yaml:"vendor"`

	// Directory is the database directory path (for file-based databases)
	Directory string `json:"directory" yaml:"directory"`

	// Address is the server address (for redis)
	Address string `json:"address" yaml:"address"`

	// DSN is the connection string (for postgres)
	DSN string `json:"dsn" yaml:"dsn"`
}

// Validate validates the store configuration
func (sc *StoreConfig) Validate() error {
	if sc.Vendor == "" {
		return fmt.Errorf("store vendor cannot be empty")
	}

	switch sc.Vendor {
	case db.LevelDB, db.RocksDB:
		if sc.Directory == "" {
			return fmt.Errorf("directory cannot be empty")
		}
	case db.Redis:
		if sc.Address == "" {
			return fmt.Errorf("address cannot be empty")
		}
	case db.Postgres:
		if sc.DSN == "" {
			return fmt.Errorf("dsn cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported store vendor: %s", sc.Vendor)
	}
	return nil
}

// StoreFactory take responsibility to create store instances
type StoreFactory struct{}

// NewStoreFactory creates a new store factory
func NewStoreFactory() *StoreFactory {
	return &StoreFactory{}
}

// CreateStoreWithProvider creates store instances sharing a single provider.
// All stores write into one keyspace, separated by key prefix, so a batch on
// the shared provider can span record types.
func (sf *StoreFactory) CreateStoreWithProvider(config *StoreConfig) (ProofStore, PromiseStore, QuoteStore, KeysetStore, error) {
	if config == nil {
		return nil, nil, nil, nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	provider, err := sf.CreateProvider(config)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create provider: %w", err)
	}

	proofStore, err := NewGenericProofStore(provider)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create proof store: %w", err)
	}

	promiseStore, err := NewGenericPromiseStore(provider)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create promise store: %w", err)
	}

	quoteStore, err := NewGenericQuoteStore(provider)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create quote store: %w", err)
	}

	keysetStore, err := NewGenericKeysetStore(provider)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create keyset store: %w", err)
	}

	return proofStore, promiseStore, quoteStore, keysetStore, nil
}

// CreateProvider creates a database provider based on the configuration
func (sf *StoreFactory) CreateProvider(config *StoreConfig) (db.DatabaseProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return db.NewProvider(config.Vendor, db.Options{
		Directory: config.Directory,
		Address:   config.Address,
		DSN:       config.DSN,
	})
}

// Global factory instance
var globalFactory = NewStoreFactory()

// CreateStore creates new store instances using the global factory
func CreateStore(config *StoreConfig) (ProofStore, PromiseStore, QuoteStore, KeysetStore, error) {
	return globalFactory.CreateStoreWithProvider(config)
}
