package db

import (
	"database/sql"

	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
)

// PostgresProvider implements DatabaseProvider on top of a single key-value
// table. Batches map onto transactions, which gives the same all-or-nothing
// write guarantee as the embedded backends.
type PostgresProvider struct {
	db *sql.DB
}

const createKVTableSQL = `
CREATE TABLE IF NOT EXISTS mint_kv (
	key   BYTEA PRIMARY KEY,
	value BYTEA NOT NULL
);`

// NewPostgresProvider creates a new PostgreSQL provider
func NewPostgresProvider(databaseURL string) (DatabaseProvider, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to open database connection")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, pkgerrors.Wrap(err, "failed to ping database")
	}

	if _, err := db.Exec(createKVTableSQL); err != nil {
		db.Close()
		return nil, pkgerrors.Wrap(err, "failed to create mint_kv table")
	}

	return &PostgresProvider{db: db}, nil
}

// Get retrieves a value by key
func (p *PostgresProvider) Get(key []byte) ([]byte, error) {
	var value []byte
	err := p.db.QueryRow(`SELECT value FROM mint_kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Return nil for not found, consistent with interface
		}
		return nil, err
	}
	return value, nil
}

// GetBatch retrieves multiple values by keys in a single query
func (p *PostgresProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	rows, err := p.db.Query(`SELECT key, value FROM mint_kv WHERE key = ANY($1)`, pq.ByteaArray(keys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		result[string(key)] = value
	}
	return result, rows.Err()
}

// Put stores a key-value pair
func (p *PostgresProvider) Put(key, value []byte) error {
	_, err := p.db.Exec(
		`INSERT INTO mint_kv (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	return err
}

// Delete removes a key-value pair
func (p *PostgresProvider) Delete(key []byte) error {
	_, err := p.db.Exec(`DELETE FROM mint_kv WHERE key = $1`, key)
	return err
}

// Has checks if a key exists
func (p *PostgresProvider) Has(key []byte) (bool, error) {
	var exists bool
	err := p.db.QueryRow(`SELECT EXISTS (SELECT 1 FROM mint_kv WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Close closes the database connection
func (p *PostgresProvider) Close() error {
	return p.db.Close()
}

// Batch returns a new batch for atomic operations
func (p *PostgresProvider) Batch() DatabaseBatch {
	return &PostgresBatch{db: p.db}
}

// IteratePrefix iterates over all key-value pairs with the given prefix.
// The prefix is turned into a [prefix, prefix+1) key range so the primary
// key index is used instead of a full scan.
func (p *PostgresProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	lower, upper := prefixRange(prefix)

	var rows *sql.Rows
	var err error
	if upper == nil {
		rows, err = p.db.Query(`SELECT key, value FROM mint_kv WHERE key >= $1 ORDER BY key`, lower)
	} else {
		rows, err = p.db.Query(`SELECT key, value FROM mint_kv WHERE key >= $1 AND key < $2 ORDER BY key`, lower, upper)
	}
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		if !callback(key, value) {
			return nil
		}
	}
	return rows.Err()
}

// prefixRange returns the smallest key range containing every key that
// starts with prefix. The upper bound is nil when no finite bound exists
// (prefix is empty or all 0xff).
func prefixRange(prefix []byte) ([]byte, []byte) {
	if len(prefix) == 0 {
		return prefix, nil
	}
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return prefix, upper[:i+1]
		}
	}
	return prefix, nil
}

type pgBatchOp struct {
	key    []byte
	value  []byte
	delete bool
}

// PostgresBatch implements DatabaseBatch by replaying buffered operations
// inside one transaction on Write.
type PostgresBatch struct {
	db  *sql.DB
	ops []pgBatchOp
}

// Put adds a key-value pair to the batch
func (b *PostgresBatch) Put(key, value []byte) {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	b.ops = append(b.ops, pgBatchOp{key: k, value: v})
}

// Delete adds a deletion to the batch
func (b *PostgresBatch) Delete(key []byte) {
	k := append([]byte(nil), key...)
	b.ops = append(b.ops, pgBatchOp{key: k, delete: true})
}

// Write commits all operations in the batch
func (b *PostgresBatch) Write() error {
	if len(b.ops) == 0 {
		return nil
	}

	tx, err := b.db.Begin()
	if err != nil {
		return err
	}

	for _, op := range b.ops {
		if op.delete {
			_, err = tx.Exec(`DELETE FROM mint_kv WHERE key = $1`, op.key)
		} else {
			_, err = tx.Exec(
				`INSERT INTO mint_kv (key, value) VALUES ($1, $2)
				 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
				op.key, op.value,
			)
		}
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Reset clears the batch
func (b *PostgresBatch) Reset() {
	b.ops = b.ops[:0]
}

// Close releases batch resources
func (b *PostgresBatch) Close() {
	b.ops = nil
}
