package main

import (
	"log/slog"
	"os"

	"github.com/ashureev/classgrade/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// globals are resolved once in the root PersistentPreRunE and shared by
// every subcommand.
type globals struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "classgrade",
		Short:         "Course difficulty research service",
		Long:          "classgrade researches university courses with a tool-calling LLM agent, caches the structured assessments and serves them over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return g.load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&g.configFile, "config", "", "config file (default $"+config.ConfigFileEnv+")")

	rootCmd.AddCommand(
		newServeCmd(g),
		newResearchCmd(g),
		newMigrateCmd(g),
		newSeedCmd(g),
	)
	return rootCmd
}

func (g *globals) load() error {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load(g.configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return err
	}
	g.cfg = cfg

	g.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(g.logger)
	return nil
}
