package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/veilmint/veilmint/config"
	"github.com/veilmint/veilmint/logx"
)

var (
	initDataDir    string
	initConfigPath string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the mint by generating a seed and a default configuration",
	Long: `Initialize a new mint by:
- Generating a new 32-byte master seed (kept out of the configuration file)
- Writing a default mint.yml when none exists
- Setting up the data directory structure`,
	Run: func(cmd *cobra.Command, args []string) {
		initializeMint()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initDataDir, "data-dir", config.DefaultDataDir, "Directory to save mint data")
	initCmd.Flags().StringVar(&initConfigPath, "config", defaultConfigPath, "Path to write the default configuration")
}

// initializeMint generates the master seed and a default configuration.
// This method is idempotent and safe to run multiple times.
func initializeMint() {
	if err := os.MkdirAll(initDataDir, 0o755); err != nil {
		logx.Error("INIT", "Failed to create data directory:", err.Error())
		return
	}

	seedFile := filepath.Join(initDataDir, "seed.txt")
	if _, err := os.Stat(seedFile); err == nil {
		logx.Info("INIT", "Seed file already exists, skipping generation")
	} else {
		// All keyset private keys derive from this seed. Losing it means
		// losing the ability to sign or verify any outstanding token.
		seed := make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			logx.Error("INIT", "Failed to generate master seed:", err.Error())
			return
		}

		seedHex := hex.EncodeToString(seed)
		if err := os.WriteFile(seedFile, []byte(seedHex), 0o600); err != nil {
			logx.Error("INIT", "Failed to write seed file:", err.Error())
			return
		}
		logx.Info("INIT", "Master seed saved to:", seedFile)
	}

	if _, err := os.Stat(initConfigPath); err == nil {
		logx.Info("INIT", "Configuration file already exists, skipping:", initConfigPath)
	} else {
		if err := os.MkdirAll(filepath.Dir(initConfigPath), 0o755); err != nil {
			logx.Error("INIT", "Failed to create config directory:", err.Error())
			return
		}
		if err := os.WriteFile(initConfigPath, []byte(defaultMintYML(initDataDir)), 0o644); err != nil {
			logx.Error("INIT", "Failed to write default configuration:", err.Error())
			return
		}
		logx.Info("INIT", "Default configuration written to:", initConfigPath)
	}

	logx.Info("INIT", "Mint initialization completed successfully")
	logx.Info("INIT", "Data directory:", initDataDir)
	logx.Info("INIT", "Run 'veilmint run' to start the mint")
}

func defaultMintYML(dataDir string) string {
	return fmt.Sprintf(`config:
  name: %s
  description: ""
  listen_addr: "%s"
  data_dir: %s
  database: %s
  unit: %s
  derivation_path: "%s"
  max_order: %d
  lightning:
    backend: %s
`, config.DefaultName, config.DefaultListenAddr, dataDir, config.DefaultDatabase,
		config.DefaultUnit, config.DefaultDerivationPath, config.DefaultMaxOrder, config.DefaultBackend)
}
