package config

// MintConfig is the operator-facing daemon configuration from mint.yml.
type MintConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	ListenAddr string `yaml:"listen_addr"`

	DataDir      string `yaml:"data_dir"`
	Database     string `yaml:"database"`      // leveldb, rocksdb, redis or postgres
	DatabaseAddr string `yaml:"database_addr"` // redis address or postgres DSN

	// SeedPath points at the hex-encoded signing seed. The seed never
	// appears in mint.yml itself.
	SeedPath string `yaml:"seed_path"`

	Unit           string `yaml:"unit"`
	DerivationPath string `yaml:"derivation_path"`
	MaxOrder       int    `yaml:"max_order"`
	InputFeePPK    uint64 `yaml:"input_fee_ppk"`

	Lightning LightningConfig `yaml:"lightning"`
}

// LightningConfig selects the payment backend.
type LightningConfig struct {
	Backend      string `yaml:"backend"`
	AutoSettleMs int    `yaml:"auto_settle_ms"`
}

// ConfigFile is the top-level structure for mint.yml
type ConfigFile struct {
	Config MintConfig `yaml:"config"`
}
