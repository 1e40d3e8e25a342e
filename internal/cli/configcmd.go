package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"council-trader/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with credentials redacted",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	fmt.Printf("config dir:            %s\n", displayConfigDir())
	fmt.Printf("analysts:              %s\n", strings.Join(cfg.Council.Analysts, ", "))
	fmt.Printf("max debate rounds:     %d\n", cfg.Council.MaxDebateRounds)
	fmt.Printf("token threshold:       %d\n", cfg.Council.TokenThreshold)
	fmt.Printf("timeout per call:      %s\n", cfg.Council.TimeoutPerCall)
	fmt.Printf("summarization:         %t\n", cfg.Council.EnableSummarization)
	fmt.Printf("portfolio value:       %.2f\n", cfg.Council.PortfolioValue)
	fmt.Printf("model:                 %s\n", cfg.Council.Model)
	fmt.Printf("retry:                 %d attempts, %s..%s\n", cfg.Retry.MaxAttempts, cfg.Retry.InitialDelay, cfg.Retry.MaxDelay)
	fmt.Printf("server addr:           %s\n", cfg.Server.Addr)
	fmt.Printf("db path:               %s\n", cfg.Storage.DBPath)
	fmt.Printf("openai api key:        %s\n", redact(cfg.Credentials.OpenAI.APIKey))
	return nil
}

func displayConfigDir() string {
	if configDir != "" {
		return configDir
	}
	return config.DefaultConfigDir()
}

func redact(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
