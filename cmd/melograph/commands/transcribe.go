package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/melograph/pkg/cli"
	"github.com/haivivi/melograph/pkg/transcribe"
)

var (
	flagAudioPath     string
	flagTranscribeDir string
	flagCheckpoint    string
	flagOutPath       string
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe --audio-path <file>",
	Short: "Transcribe a WAV recording into a MIDI file",
	Long: `Transcribe a mono WAV recording into a standard MIDI file.

The model is restored from the checkpoint store; without --checkpoint
the snapshot with the highest epoch number is used. The checkpoint
carries its own model configuration, so no --config is needed here.

Examples:
  melograph transcribe --audio-path take1.wav
  melograph transcribe --audio-path take1.wav --out take1.mid
  melograph transcribe --audio-path take1.wav --checkpoint model_mel_g3_a70_007.ckpt`,
	RunE: runTranscribe,
}

func init() {
	transcribeCmd.Flags().StringVar(&flagAudioPath, "audio-path", "", "WAV file to transcribe (required)")
	transcribeCmd.Flags().StringVar(&flagTranscribeDir, "checkpoint-dir", defaultCheckpointDir, "checkpoint location (directory or s3:// URI)")
	transcribeCmd.Flags().StringVar(&flagCheckpoint, "checkpoint", "", "checkpoint name (newest epoch when empty)")
	transcribeCmd.Flags().StringVar(&flagOutPath, "out", transcribe.DefaultOutPath, "output MIDI path")
	rootCmd.AddCommand(transcribeCmd)
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	if flagAudioPath == "" {
		return fmt.Errorf("flag --audio-path is required")
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := openStore(flagTranscribeDir)
	if err != nil {
		return err
	}
	tr, err := transcribe.FromStore(cmd.Context(), store, flagCheckpoint, transcribe.WithLogger(log))
	if err != nil {
		return err
	}

	res, err := tr.File(cmd.Context(), flagAudioPath, flagOutPath)
	if err != nil {
		return err
	}

	audioLen := float64(res.Frames) * tr.Config().FrameDuration()
	fmt.Printf("Wrote %s: %d events from %d frames (%s of audio)\n",
		res.OutPath, len(res.Events), res.Frames, cli.FormatSeconds(audioLen))
	if res.Dropped > 0 {
		fmt.Printf("  %d frames predicted notes outside the MIDI range and were dropped\n", res.Dropped)
	}
	return nil
}
