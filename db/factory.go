package db

import (
	"fmt"
)

type Vendor string

const (
	LevelDB  Vendor = "leveldb"
	RocksDB  Vendor = "rocksdb"
	Redis    Vendor = "redis"
	Postgres Vendor = "postgres"
)

// Options carries the backend-specific connection settings. Only the field
// matching the chosen vendor is consulted.
type Options struct {
	Directory string // leveldb, rocksdb
	Address   string // redis
	DSN       string // postgres
}

// NewProvider opens the database backend selected by vendor.
func NewProvider(vendor Vendor, options Options) (DatabaseProvider, error) {
	switch vendor {
	case LevelDB:
		return NewLevelDBProvider(options.Directory)

	case RocksDB:
		return NewRocksDBProvider(options.Directory)

	case Redis:
		return NewRedisProvider(options.Address)

	case Postgres:
		return NewPostgresProvider(options.DSN)

	default:
		return nil, fmt.Errorf("unsupported db provider: %s", vendor)
	}
}
