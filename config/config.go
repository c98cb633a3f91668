package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/veilmint/veilmint/logx"
)

// LoadMintConfig reads and parses the mint.yml file and fills in defaults
// for everything the operator left out.
func LoadMintConfig(path string) (*MintConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		logx.Error("CONFIG", "Failed to open config file: ", err)
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		logx.Error("CONFIG", "Failed to decode YAML: ", err)
		return nil, err
	}

	cfg := &cfgFile.Config
	cfg.applyDefaults()

	logx.Info("CONFIG", fmt.Sprintf("Loaded config: name=%s listen=%s database=%s unit=%s", cfg.Name, cfg.ListenAddr, cfg.Database, cfg.Unit))
	return cfg, nil
}

func (c *MintConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.SeedPath == "" {
		c.SeedPath = filepath.Join(c.DataDir, "seed.txt")
	}
	if c.Unit == "" {
		c.Unit = DefaultUnit
	}
	if c.DerivationPath == "" {
		c.DerivationPath = DefaultDerivationPath
	}
	if c.MaxOrder == 0 {
		c.MaxOrder = DefaultMaxOrder
	}
	if c.Lightning.Backend == "" {
		c.Lightning.Backend = DefaultBackend
	}
}

// LoadSeed loads the signing seed from a file (expects hex encoding).
func LoadSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("seed file %s is not valid hex: %w", path, err)
	}
	if len(seed) < 32 {
		return nil, fmt.Errorf("seed must be at least 32 bytes, got %d", len(seed))
	}
	return seed, nil
}

// Tuning sections live in an .ini file next to mint.yml so operational
// knobs can change without touching the mint identity.

type QuoteTuning struct {
	ExpirySeconds   int `ini:"expiry_seconds"`
	MaxSecretLength int `ini:"max_secret_length"`
}

type RateLimitTuning struct {
	IPMaxRequests     int `ini:"ip_max_requests"`
	GlobalMaxRequests int `ini:"global_max_requests"`
	WindowMs          int `ini:"window_ms"`
}

type AbuseTuning struct {
	MaxRequestsPerMinute   int `ini:"max_requests_per_minute"`
	MaxRequestsPerHour     int `ini:"max_requests_per_hour"`
	MaxRequestsPerDay      int `ini:"max_requests_per_day"`
	AutoBlacklistPerMinute int `ini:"auto_blacklist_per_minute"`
}

// LoadQuoteTuning reads quote tuning from an .ini file
func LoadQuoteTuning(path string) (*QuoteTuning, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	quoteSection := cfg.Section("quotes")
	quoteCfg := &QuoteTuning{}
	err = quoteSection.MapTo(quoteCfg)
	if err != nil {
		return nil, err
	}
	return quoteCfg, nil
}

func LoadRateLimitTuning(path string) (*RateLimitTuning, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	rateSection := cfg.Section("ratelimit")
	rateCfg := &RateLimitTuning{}
	err = rateSection.MapTo(rateCfg)
	if err != nil {
		return nil, err
	}
	return rateCfg, nil
}

func LoadAbuseTuning(path string) (*AbuseTuning, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	abuseSection := cfg.Section("abuse")
	abuseCfg := &AbuseTuning{}
	err = abuseSection.MapTo(abuseCfg)
	if err != nil {
		return nil, err
	}
	return abuseCfg, nil
}
