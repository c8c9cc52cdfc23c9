package main

import (
	"github.com/spf13/cobra"

	"github.com/smallnest/ragflow/config"
)

var (
	envFiles []string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ragflow",
	Short: "Retrieval augmented generation over vector and graph indexes",
	Long: `ragflow chunks and embeds documents into a vector index and a knowledge
graph, then answers questions from the merged context of both.

Configuration is read from the environment and from optional .env files.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", []string{".env"}, "dotenv files to load")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")
}

// loadConfig reads the configuration and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}
