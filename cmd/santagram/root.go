package main

import (
	"github.com/spf13/cobra"

	"github.com/santagram/santagram/internal/api"
	"github.com/santagram/santagram/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "santagram",
	Short: "Personalized Santa video generation service",
	Long: `Santagram turns an order form into a personalized video message
from Santa: a narration script, text-to-speech audio, and a
lip-synced video delivered to the customer by email.

The pipeline includes:
  - Script generation from the child's details
  - Multi-provider text-to-speech synthesis
  - Lip-sync video generation with chunked processing for long audio
  - Serverless stitching of video chunks
  - Payment-gated fulfillment with webhook and polling triggers`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.santagram/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "santagram home directory (default: ~/.santagram)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
