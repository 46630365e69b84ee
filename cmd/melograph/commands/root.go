package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/haivivi/melograph/pkg/config"
)

var (
	// Global flags
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "melograph",
	Short: "Polyphonic music transcription (WAV in, MIDI out)",
	Long: `melograph - train and run a note transcription model.

The pipeline turns mono WAV audio into log-scaled mel features, runs a
bidirectional LSTM with attention over the frame sequence, and decodes
the per-frame note probabilities into a standard MIDI file.

Checkpoint locations accept a local directory or an s3://bucket/prefix
URI. S3 access is configured through the usual AWS environment
variables (AWS_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, plus
AWS_ENDPOINT_URL_S3 for S3-compatible stores).

Examples:
  # Train on a MusicNet-layout dataset with the built-in configuration
  melograph train --db-location ./musicnet

  # Resume a run from a saved snapshot
  melograph train --db-location ./musicnet --load-model-path model_mel_g3_a70_004.ckpt

  # Transcribe a recording with the newest checkpoint
  melograph transcribe --audio-path take1.wav --out take1.mid

  # See what a training run produced
  melograph checkpoints list --checkpoint-dir s3://models/transcribe`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "model configuration file (built-in defaults when empty)")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// loadConfig returns the model configuration, reading the --config file
// when one was given.
func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// newLogger builds the CLI logger. Verbose mode switches to the
// development encoder with debug enabled, so per-batch training events
// become visible.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
