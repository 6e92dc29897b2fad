package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	dataRoot   string
)

var rootCmd = &cobra.Command{
	Use:   "whisperdesk",
	Short: "Local whisper.cpp transcription with searchable job history",
	Long: `whisperdesk runs whisper.cpp transcriptions, keeps every job and its
result files under a data root, and serves that history over a CLI, an HTTP
API and a desktop window.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a config file (default: <data-root>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&dataRoot, "data-root", "", "Directory holding jobs, models and settings")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
