package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/veilmint/veilmint/logx"
)

var rootCmd = &cobra.Command{
	Use:   "veilmint",
	Short: "Veilmint ecash mint CLI",
	Long:  "Command line interface for running and managing a veilmint ecash mint.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
