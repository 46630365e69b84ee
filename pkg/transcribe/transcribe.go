// Package transcribe runs a trained model over a WAV file and writes the
// decoded notes as a standard MIDI file.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/haivivi/melograph/pkg/bilstm"
	"github.com/haivivi/melograph/pkg/checkpoint"
	"github.com/haivivi/melograph/pkg/config"
	"github.com/haivivi/melograph/pkg/melspec"
	"github.com/haivivi/melograph/pkg/notes"
	"github.com/haivivi/melograph/pkg/wave"
)

// DefaultOutPath is where transcriptions land when no destination is given.
const DefaultOutPath = "out.mid"

// Result summarizes one transcription run.
type Result struct {
	AudioPath string
	OutPath   string
	Frames    int           // feature frames fed to the model
	Events    []notes.Event // decoded notes, ordered by start time
	Dropped   int           // frames whose arg-max had no MIDI key
}

type options struct {
	log *zap.Logger
}

// Option adjusts how a Transcriber is built.
type Option func(*options)

// WithLogger routes progress reporting through log.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// Transcriber holds a model restored from a checkpoint together with the
// feature front-end it was trained with.
type Transcriber struct {
	cfg   config.Config
	model *bilstm.Model
	ext   *melspec.Extractor
	log   *zap.Logger
}

// New restores a model from ck. The checkpoint's embedded configuration
// decides the front-end and the model dimensions, so a checkpoint always
// replays with the settings it was trained under.
func New(ck *checkpoint.Checkpoint, opts ...Option) (*Transcriber, error) {
	if ck == nil {
		return nil, errors.New("transcribe: nil checkpoint")
	}
	cfg := ck.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("transcribe: checkpoint config: %w", err)
	}

	model := bilstm.New(bilstm.Config{
		InputSize:  cfg.InputSize,
		HiddenSize: cfg.HiddenSize,
		OutputSize: cfg.OutputSize,
	}, rand.New(rand.NewSource(0)))
	if err := ck.ApplyTo(model.Params()); err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	o := options{log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	return &Transcriber{
		cfg:   cfg,
		model: model,
		ext: melspec.New(melspec.Config{
			SampleRate: cfg.SampleRate,
			FFTSize:    cfg.FFTSize,
			HopLength:  cfg.HopLength,
			NumMels:    cfg.NumMels,
			NumCoeffs:  cfg.NumCoeffs,
		}),
		log: o.log,
	}, nil
}

// FromStore restores the checkpoint called name, or the newest epoch
// snapshot when name is empty.
func FromStore(ctx context.Context, store *checkpoint.Store, name string, opts ...Option) (*Transcriber, error) {
	if name == "" {
		latest, err := store.Latest(ctx)
		if err != nil {
			return nil, err
		}
		name = latest
	}
	ck, err := store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	t, err := New(ck, opts...)
	if err != nil {
		return nil, err
	}
	t.log.Info("model restored",
		zap.String("checkpoint", name),
		zap.Int("epoch", ck.Epoch))
	return t, nil
}

// Config returns the configuration the restored model was trained with.
func (t *Transcriber) Config() config.Config { return t.cfg }

// Probabilities runs the front-end and the forward pass over raw samples
// at the model's sample rate, returning per-frame class probabilities.
func (t *Transcriber) Probabilities(samples []float64) ([][]float64, error) {
	var feats [][]float64
	switch t.cfg.FeatureType {
	case config.FeatureMFCC:
		feats = t.ext.Cepstral(samples)
	default:
		feats = t.ext.Extract(samples)
	}
	return t.model.Predict(feats)
}

// File transcribes the WAV at audioPath and writes the decoded notes to
// outPath, or DefaultOutPath when empty. The whole clip is processed;
// unlike training, nothing is cropped or padded to a target duration.
func (t *Transcriber) File(ctx context.Context, audioPath, outPath string) (*Result, error) {
	if outPath == "" {
		outPath = DefaultOutPath
	}
	clip, err := wave.Load(audioPath, t.cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	probs, err := t.Probabilities(clip.Samples)
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", audioPath, err)
	}
	events, dropped := notes.Decode(probs, t.cfg.FrameDuration())
	if dropped > 0 {
		t.log.Warn("frames outside the MIDI key range dropped",
			zap.Int("frames", dropped))
	}
	if err := notes.WriteSMF(outPath, events); err != nil {
		return nil, err
	}

	t.log.Info("transcription written",
		zap.String("audio", audioPath),
		zap.String("out", outPath),
		zap.Int("frames", len(probs)),
		zap.Int("events", len(events)))
	return &Result{
		AudioPath: audioPath,
		OutPath:   outPath,
		Frames:    len(probs),
		Events:    events,
		Dropped:   dropped,
	}, nil
}
