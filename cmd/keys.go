package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/veilmint/veilmint/config"
	"github.com/veilmint/veilmint/jsonx"
	"github.com/veilmint/veilmint/keyset"
	"github.com/veilmint/veilmint/logx"
)

var keysConfigPath string

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Derive and print the active keyset",
	Long:  "Derive the keyset from the configured seed and print its ID and public keys without starting the mint.",
	Run: func(cmd *cobra.Command, args []string) {
		printKeys()
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.Flags().StringVarP(&keysConfigPath, "config", "c", defaultConfigPath, "Path to mint configuration file")
}

func printKeys() {
	cfg, err := config.LoadMintConfig(keysConfigPath)
	if err != nil {
		logx.Error("KEYS", "Failed to load configuration:", err.Error())
		return
	}

	seed, err := config.LoadSeed(cfg.SeedPath)
	if err != nil {
		logx.Error("KEYS", "Failed to load seed (run 'veilmint init' first):", err.Error())
		return
	}

	ks, err := keyset.Derive(seed, cfg.DerivationPath, cfg.MaxOrder, cfg.Unit)
	if err != nil {
		logx.Error("KEYS", "Failed to derive keyset:", err.Error())
		return
	}

	out := struct {
		ID   string            `json:"id"`
		Unit string            `json:"unit"`
		Keys map[uint64]string `json:"keys"`
	}{
		ID:   ks.ID,
		Unit: ks.Unit,
		Keys: ks.PublicKeysHex(),
	}

	data, err := jsonx.MarshalIndent(out, "", "  ")
	if err != nil {
		logx.Error("KEYS", "Failed to marshal keyset:", err.Error())
		return
	}
	fmt.Println(string(data))
}
