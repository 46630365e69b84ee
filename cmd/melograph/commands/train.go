package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/haivivi/melograph/pkg/bilstm"
	"github.com/haivivi/melograph/pkg/dataset"
	"github.com/haivivi/melograph/pkg/train"
)

var (
	flagDBLocation    string
	flagLoadModelPath string
	flagCheckpointDir string
	flagFeatureCache  string
)

var trainCmd = &cobra.Command{
	Use:   "train --db-location <dir>",
	Short: "Train the transcription model",
	Long: `Train the note transcription model on a MusicNet-layout dataset.

The database directory must hold train_data/ with WAV recordings and
train_labels/ with matching CSV note annotations. A validation_data/
plus validation_labels/ pair enables early stopping; without one the
run goes the full epoch count.

One full snapshot is written per epoch, and a final full plus
weights-only pair when the run ends. Interrupting with Ctrl-C stops
after the current batch; the last epoch snapshot stays usable for
--load-model-path.

Examples:
  melograph train --db-location ./musicnet
  melograph train --db-location ./musicnet --checkpoint-dir s3://models/transcribe
  melograph train --db-location ./musicnet --load-model-path model_mel_g3_a70_004.ckpt`,
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVar(&flagDBLocation, "db-location", "", "MusicNet-layout dataset directory (required)")
	trainCmd.Flags().StringVar(&flagLoadModelPath, "load-model-path", "", "checkpoint name to resume from")
	trainCmd.Flags().StringVar(&flagCheckpointDir, "checkpoint-dir", defaultCheckpointDir, "checkpoint location (directory or s3:// URI)")
	trainCmd.Flags().StringVar(&flagFeatureCache, "feature-cache", "", "directory for the on-disk feature cache (disabled when empty)")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	if flagDBLocation == "" {
		return fmt.Errorf("flag --db-location is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Warn("interrupt received, stopping after the current batch")
		cancel()
	}()

	var cache *dataset.Cache
	if flagFeatureCache != "" {
		cache, err = dataset.OpenCache(dataset.CacheOptions{Dir: flagFeatureCache})
		if err != nil {
			return err
		}
		defer cache.Close()
	}

	loader := dataset.NewLoader(cfg, cache)
	trainSet, err := loader.Load(flagDBLocation, dataset.SplitTrain)
	if err != nil {
		return err
	}
	valSet, err := loader.Load(flagDBLocation, dataset.SplitValidation)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		log.Info("no validation split, early stopping disabled")
		valSet = nil
	}
	log.Info("dataset loaded",
		zap.String("db", flagDBLocation),
		zap.Int("train_examples", len(trainSet)),
		zap.Int("validation_examples", len(valSet)),
		zap.String("features", cfg.FeatureType),
	)

	store, err := openStore(flagCheckpointDir)
	if err != nil {
		return err
	}

	model := bilstm.New(bilstm.Config{
		InputSize:  cfg.FeatureDim(),
		HiddenSize: cfg.HiddenSize,
		OutputSize: cfg.OutputSize,
	}, rand.New(rand.NewSource(cfg.Seed)))

	opts := []train.Option{
		train.WithStore(store),
		train.WithObserver(train.NewZapObserver(log)),
	}
	if flagLoadModelPath != "" {
		ck, err := store.Load(ctx, flagLoadModelPath)
		if err != nil {
			return err
		}
		opts = append(opts, train.WithCheckpoint(ck))
		log.Info("resuming from checkpoint",
			zap.String("checkpoint", flagLoadModelPath),
			zap.Int("epoch", ck.Epoch),
		)
	}

	trainer := train.New(cfg, model, opts...)
	if err := trainer.Compile(); err != nil {
		return err
	}
	if err := trainer.Fit(ctx, trainSet, valSet); err != nil {
		return err
	}

	log.Info("training finished",
		zap.String("state", string(trainer.State())),
		zap.Int("epochs", trainer.Epoch()),
		zap.Int("best_epoch", trainer.BestEpoch()),
		zap.String("run_id", trainer.RunID()),
	)
	return nil
}
