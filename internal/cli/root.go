// Package cli implements the counciltrader command tree.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"council-trader/internal/config"
	"council-trader/internal/council"
	"council-trader/internal/llm"
	"council-trader/internal/logging"
	"council-trader/internal/store"
	"council-trader/internal/tools"
	"council-trader/pkg/utils"
)

var (
	configDir string
	offline   bool
)

var rootCmd = &cobra.Command{
	Use:   "counciltrader",
	Short: "Multi-agent trading analysis council",
	Long: `counciltrader runs a ticker through a council of reasoning agents:
parallel analysts, an adversarial bull/bear research debate, a trader,
and a risk council that signs off on the final recommendation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.config/council-trader)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "use canned responses instead of the reasoning provider")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// app carries the wired dependencies every subcommand needs.
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	registry     *council.Registry
	orchestrator *council.Orchestrator
	tools        *tools.Registry
	repo         store.Repository
}

// newApp loads configuration and wires the reasoning stack: the
// provider client wrapped in retries, wrapped in a circuit breaker.
// withStore controls whether the SQLite repository is opened.
func newApp(withStore bool) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger()

	var reasoner llm.Reasoner
	if offline {
		reasoner = llm.NewNoopReasoner()
	} else {
		if cfg.Credentials.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("no OpenAI API key configured; set OPENAI_API_KEY or credentials.toml, or pass --offline")
		}
		base := llm.NewOpenAIReasoner(cfg.Credentials.OpenAI.APIKey, cfg.Council.Model)
		retrying := llm.NewRetryingReasoner(base, utils.RetryConfig{
			MaxAttempts:   cfg.Retry.MaxAttempts,
			InitialDelay:  cfg.Retry.InitialDelay,
			MaxDelay:      cfg.Retry.MaxDelay,
			BackoffFactor: 2,
		}, logger)
		reasoner = llm.NewBreakerReasoner(retrying, llm.DefaultBreakerConfig())
	}

	registry := council.NewRegistry()
	a := &app{
		cfg:          cfg,
		logger:       logger,
		registry:     registry,
		orchestrator: council.NewOrchestrator(cfg.Council, reasoner, registry, logger),
		tools:        tools.NewRegistry(registry, logger),
	}
	if withStore {
		repo, err := store.NewSQLiteRepository(cfg.Storage.DBPath)
		if err != nil {
			return nil, err
		}
		a.repo = repo
	}
	return a, nil
}

func (a *app) close() {
	if a.repo != nil {
		a.repo.Close()
	}
}
