package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medicalexcom/avidiatech-match/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "skumatch",
	Short: "Resolve supplier SKUs to verified product page URLs",
	Long:  "Finds candidate supplier product pages for catalog items, verifies them against the item's identifiers, and caches confident matches per tenant.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
