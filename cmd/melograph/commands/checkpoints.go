package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/haivivi/melograph/pkg/cli"
)

var (
	flagCkptsDir   string
	flagCkptOutput string
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect a checkpoint store",
	Long: `Inspect the contents of a checkpoint store.

Examples:
  melograph checkpoints list
  melograph checkpoints list --checkpoint-dir s3://models/transcribe
  melograph checkpoints inspect model_mel_g3_a70_004.ckpt -o json`,
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the snapshots in a store",
	RunE:  runCheckpointsList,
}

var checkpointsInspectCmd = &cobra.Command{
	Use:   "inspect <name>",
	Short: "Show a snapshot's configuration and shape",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointsInspect,
}

func init() {
	checkpointsCmd.PersistentFlags().StringVar(&flagCkptsDir, "checkpoint-dir", defaultCheckpointDir, "checkpoint location (directory or s3:// URI)")
	checkpointsInspectCmd.Flags().StringVarP(&flagCkptOutput, "output", "o", "yaml", "output format (yaml or json)")
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsInspectCmd)
	rootCmd.AddCommand(checkpointsCmd)
}

func runCheckpointsList(cmd *cobra.Command, args []string) error {
	store, err := openStore(flagCkptsDir)
	if err != nil {
		return err
	}
	entries, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No checkpoints found.")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		epoch := "-"
		if e.Epoch >= 0 {
			epoch = strconv.Itoa(e.Epoch)
		}
		rows = append(rows, []string{e.Name, epoch, e.Flavor.String(), cli.FormatBytes(e.Size)})
	}
	fmt.Print(cli.Table(cli.NewStyles(cli.DefaultTheme), []string{"NAME", "EPOCH", "KIND", "SIZE"}, rows))
	return nil
}

// checkpointDetail is the inspect output shape.
type checkpointDetail struct {
	Name       string `yaml:"name" json:"name"`
	Kind       string `yaml:"kind" json:"kind"`
	Epoch      int    `yaml:"epoch,omitempty" json:"epoch,omitempty"`
	RunID      string `yaml:"run_id,omitempty" json:"run_id,omitempty"`
	AdamStep   int    `yaml:"adam_step,omitempty" json:"adam_step,omitempty"`
	Features   string `yaml:"features" json:"features"`
	SampleRate int    `yaml:"sample_rate" json:"sample_rate"`
	HopLength  int    `yaml:"hop_length" json:"hop_length"`
	InputSize  int    `yaml:"input_size" json:"input_size"`
	HiddenSize int    `yaml:"hidden_size" json:"hidden_size"`
	OutputSize int    `yaml:"output_size" json:"output_size"`
	Parameters int    `yaml:"parameters" json:"parameters"`
}

func runCheckpointsInspect(cmd *cobra.Command, args []string) error {
	store, err := openStore(flagCkptsDir)
	if err != nil {
		return err
	}
	ck, err := store.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	detail := checkpointDetail{
		Name:       args[0],
		Kind:       ck.Flavor.String(),
		Epoch:      ck.Epoch,
		RunID:      ck.RunID,
		Features:   ck.Config.FeatureType,
		SampleRate: ck.Config.SampleRate,
		HopLength:  ck.Config.HopLength,
		InputSize:  ck.Config.InputSize,
		HiddenSize: ck.Config.HiddenSize,
		OutputSize: ck.Config.OutputSize,
	}
	if ck.Optimizer != nil {
		detail.AdamStep = ck.Optimizer.T
	}
	for _, p := range ck.Params {
		detail.Parameters += len(p.W)
	}
	return cli.Output(detail, cli.OutputOptions{Format: cli.OutputFormat(flagCkptOutput)})
}
