package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mverdier/parley/internal/config"
)

var (
	serverURL  string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "🗨️  Parley - Interactive request broker for coding agents",
	Long: `Parley - Let a coding agent pause and ask a human.

Core Commands:
  serve            Run the broker server with the local answer surface
  ask <question>   Ask a question and wait for the answer
  plan <file>      Submit a plan for review and wait for the decision
  respond <value>  Answer the pending request
  queue            Manage queued answers
  status           Show the pending request and queue`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8317", "Parley server URL")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to parley.yaml (default: ./parley.yaml)")
}

// loadConfig resolves the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadOrDefault(), nil
}
