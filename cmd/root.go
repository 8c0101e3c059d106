package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fiplanner/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fiplanner",
	Short: "AI financial independence planner for Indian salaried professionals",
	Long: "Collects a financial profile, pulls figures and excerpts from an uploaded salary slip or statement, " +
		"grounds the request in live PPF/EPF rates and curated rules, and asks Claude for a retirement plan.",
	SilenceUsage: true,
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
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
