package config

// Version is reported by mint.info.
const Version = "0.1.0"

const (
	DefaultName           = "veilmint"
	DefaultListenAddr     = ":3338"
	DefaultDataDir        = "./data"
	DefaultDatabase       = "leveldb"
	DefaultUnit           = "sat"
	DefaultDerivationPath = "m/0'/0'/0'"
	DefaultMaxOrder       = 64
	DefaultBackend        = "fake"
)
