// Package main is the entry point for the melograph CLI.
//
// Usage:
//
//	melograph [flags] <command> [subcommand] [args]
//
// Commands:
//
//	train        - Train the transcription model on a MusicNet-layout dataset
//	transcribe   - Transcribe a WAV recording into a MIDI file
//	checkpoints  - Inspect a checkpoint store (list, inspect)
//	version      - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/melograph/cmd/melograph/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
