package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chainwatch/chainwatch/internal/config"
)

const (
	appName = "chainwatch"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg := config.Load()
	zerolog.SetGlobalLevel(cfg.ZerologLevel())

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Supply chain risk monitoring pipeline",
		Version: version,
		Long: `ChainWatch monitors news for supply chain disruptions, extracts and
scores risk events with an LLM, propagates them through the supply
graph, and raises alerts with ranked alternate suppliers.

Deployments run one process per concern: 'api' serves the dashboard,
'schedule' drives news fetching and reports, and one 'worker' per
pipeline stage consumes its stream.`,
	}

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run one pipeline stage consumer",
		Long:  "Consumes a pipeline stream and processes records until interrupted. Run one process per stage.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stage, _ := cmd.Flags().GetString("stage")
			return runWorker(cfg, stage)
		},
	}
	workerCmd.Flags().String("stage", "", "Pipeline stage (extract|score|alert)")
	_ = workerCmd.MarkFlagRequired("stage")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the job scheduler",
		Long:  "Drives periodic news fetching and daily/weekly report generation.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return runSchedule(cfg, configPath)
		},
	}
	scheduleCmd.Flags().String("config", "", "Scheduler config YAML (defaults to built-in jobs)")

	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Run the HTTP and websocket API server",
		Long:  "Serves the dashboard REST API, health and metrics endpoints, and the /ws/alerts websocket feed.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runAPI(cfg)
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the company profile and supplier catalog",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSeed(cfg, false)
		},
	}

	sampleCmd := &cobra.Command{
		Use:   "create-sample-data",
		Short: "Seed plus demo risk events and alerts",
		Long:  "Seeds the catalog and fabricates sample risk events and alerts so a fresh deployment has dashboard content.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSeed(cfg, true)
		},
	}

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(sampleCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
