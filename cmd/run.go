package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/veilmint/veilmint/abuse"
	"github.com/veilmint/veilmint/config"
	"github.com/veilmint/veilmint/db"
	"github.com/veilmint/veilmint/events"
	"github.com/veilmint/veilmint/jsonrpc"
	"github.com/veilmint/veilmint/ledger"
	"github.com/veilmint/veilmint/lightning"
	"github.com/veilmint/veilmint/monitoring"
	"github.com/veilmint/veilmint/ratelimit"
	"github.com/veilmint/veilmint/store"

	"github.com/spf13/cobra"
)

const (
	defaultConfigPath = "config/mint.yml"
	defaultTuningPath = "config/tuning.ini"
)

var (
	runConfigPath string
	runTuningPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the mint",
	Run: func(cmd *cobra.Command, args []string) {
		runMint()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", defaultConfigPath, "Path to mint configuration file")
	runCmd.Flags().StringVar(&runTuningPath, "tuning", defaultTuningPath, "Path to tuning file (optional)")
}

func runMint() {
	cfg, err := config.LoadMintConfig(runConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	seed, err := config.LoadSeed(cfg.SeedPath)
	if err != nil {
		log.Fatalf("Failed to load seed (run 'veilmint init' first): %v", err)
	}

	monitoring.InitMetrics()

	stores, err := initializeStores(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize stores: %v", err)
	}

	backend, err := initializeBackend(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize lightning backend: %v", err)
	}

	eventRouter := events.NewEventRouter(events.NewEventBus())

	ld, err := initializeLedger(cfg, seed, stores, backend, eventRouter)
	if err != nil {
		log.Fatalf("Failed to initialize ledger: %v", err)
	}

	ctx := context.Background()
	if err := ld.RecoverPendingMelts(ctx); err != nil {
		log.Fatalf("Failed to recover pending melts: %v", err)
	}
	ld.WatchInvoices(ctx)

	limiter := initializeLimiter(runTuningPath)

	srv := jsonrpc.NewServer(cfg.ListenAddr, ld, jsonrpc.MintInfo{
		Name:        cfg.Name,
		Version:     config.Version,
		Description: cfg.Description,
	})
	if corsCfg, ok := jsonrpc.CORSFromEnv(); ok {
		srv.SetCORSConfig(corsCfg)
	}
	srv.SetRateLimiter(limiter)
	srv.Start()

	// Block forever
	select {}
}

type mintStores struct {
	proofs   store.ProofStore
	promises store.PromiseStore
	quotes   store.QuoteStore
	keysets  store.KeysetStore
}

// initializeStores opens the database backend and the four mint stores on it.
func initializeStores(cfg *config.MintConfig) (*mintStores, error) {
	storeDir := filepath.Join(cfg.DataDir, "store")
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	proofStore, promiseStore, quoteStore, keysetStore, err := store.CreateStore(&store.StoreConfig{
		Vendor:    db.Vendor(cfg.Database),
		Directory: storeDir,
		Address:   cfg.DatabaseAddr,
		DSN:       cfg.DatabaseAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("init %s stores: %w", cfg.Database, err)
	}
	log.Printf("Using %s store at %s", cfg.Database, storeDir)

	return &mintStores{
		proofs:   proofStore,
		promises: promiseStore,
		quotes:   quoteStore,
		keysets:  keysetStore,
	}, nil
}

// initializeBackend selects the lightning backend from configuration.
func initializeBackend(cfg *config.MintConfig) (lightning.Backend, error) {
	switch cfg.Lightning.Backend {
	case "", "fake":
		autoSettle := time.Duration(cfg.Lightning.AutoSettleMs) * time.Millisecond
		if autoSettle > 0 {
			log.Printf("Fake lightning backend: invoices auto-settle after %v", autoSettle)
		}
		return lightning.NewFakeBackend(autoSettle), nil
	default:
		return nil, fmt.Errorf("unknown lightning backend %q", cfg.Lightning.Backend)
	}
}

// initializeLedger builds the ledger from configuration and tuning.
func initializeLedger(cfg *config.MintConfig, seed []byte, stores *mintStores,
	backend lightning.Backend, eventRouter *events.EventRouter) (*ledger.Ledger, error) {

	ledgerCfg := &ledger.Config{
		Seed:           seed,
		DerivationPath: cfg.DerivationPath,
		MaxOrder:       cfg.MaxOrder,
		Unit:           cfg.Unit,
		InputFeePPK:    cfg.InputFeePPK,
	}

	if _, err := os.Stat(runTuningPath); err == nil {
		quoteCfg, err := config.LoadQuoteTuning(runTuningPath)
		if err != nil {
			return nil, fmt.Errorf("load quote tuning: %w", err)
		}
		ledgerCfg.QuoteExpiry = time.Duration(quoteCfg.ExpirySeconds) * time.Second
		ledgerCfg.MaxSecretLength = quoteCfg.MaxSecretLength
	}

	ld, err := ledger.NewLedger(ledgerCfg, stores.proofs, stores.promises, stores.quotes, stores.keysets, backend, eventRouter)
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	return ld, nil
}

// initializeLimiter builds the rate limiter stack. Tuning overrides are
// optional; without a tuning file the defaults apply.
func initializeLimiter(tuningPath string) *ratelimit.GlobalRateLimiter {
	abuseCfg := abuse.DefaultAbuseConfig()
	limiterCfg := ratelimit.DefaultGlobalConfig()

	if _, err := os.Stat(tuningPath); err == nil {
		if rateCfg, err := config.LoadRateLimitTuning(tuningPath); err == nil {
			if rateCfg.IPMaxRequests > 0 {
				limiterCfg.IPConfig.MaxRequests = rateCfg.IPMaxRequests
			}
			if rateCfg.GlobalMaxRequests > 0 {
				limiterCfg.GlobalConfig.MaxRequests = rateCfg.GlobalMaxRequests
			}
			if rateCfg.WindowMs > 0 {
				window := time.Duration(rateCfg.WindowMs) * time.Millisecond
				limiterCfg.IPConfig.WindowSize = window
				limiterCfg.GlobalConfig.WindowSize = window
			}
		} else {
			log.Printf("Warning: failed to load rate limit tuning: %v", err)
		}

		if tuned, err := config.LoadAbuseTuning(tuningPath); err == nil {
			if tuned.MaxRequestsPerMinute > 0 {
				abuseCfg.MaxRequestsPerMinute = tuned.MaxRequestsPerMinute
			}
			if tuned.MaxRequestsPerHour > 0 {
				abuseCfg.MaxRequestsPerHour = tuned.MaxRequestsPerHour
			}
			if tuned.MaxRequestsPerDay > 0 {
				abuseCfg.MaxRequestsPerDay = tuned.MaxRequestsPerDay
			}
			if tuned.AutoBlacklistPerMinute > 0 {
				abuseCfg.AutoBlacklistPerMinute = tuned.AutoBlacklistPerMinute
			}
		} else {
			log.Printf("Warning: failed to load abuse tuning: %v", err)
		}
	}

	detector := abuse.NewAbuseDetector(abuseCfg)
	return ratelimit.NewGlobalRateLimiter(limiterCfg, detector)
}
