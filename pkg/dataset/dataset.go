// Package dataset loads paired audio/label training data.
//
// A dataset root follows the MusicNet layout: per split, a {split}_data
// directory of WAV recordings and a {split}_labels directory of CSV note
// annotations, paired by file stem:
//
//	root/
//	  train_data/1727.wav
//	  train_labels/1727.csv
//	  validation_data/2303.wav
//	  validation_labels/2303.csv
//
// Every clip is cropped or zero-padded to the configured target duration
// before feature extraction, so all examples of a run share one frame
// count. Feature extraction is the expensive step; an optional
// badger-backed Cache keyed by file identity and extraction parameters
// lets repeated runs skip the FFT work.
package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/haivivi/melograph/pkg/config"
	"github.com/haivivi/melograph/pkg/melspec"
	"github.com/haivivi/melograph/pkg/wave"
)

// Canonical split names under a dataset root.
const (
	SplitTrain      = "train"
	SplitValidation = "validation"
)

// Example is one training pair: a feature sequence and its per-frame
// note-activity targets.
type Example struct {
	Name     string      // file stem shared by the WAV and the CSV
	Features [][]float64 // T × feature-width frames
	Labels   [][]float64 // T × class-count binary activity; column 0 is the rest class
}

// Loader extracts examples from a dataset root.
//
// The underlying spectrogram extractor reuses scratch buffers, so a
// Loader is not safe for concurrent use.
type Loader struct {
	cfg   config.Config
	ext   *melspec.Extractor
	cache *Cache
}

// NewLoader returns a Loader for the given pipeline configuration.
// cache may be nil to extract features unconditionally.
func NewLoader(cfg config.Config, cache *Cache) *Loader {
	return &Loader{
		cfg: cfg,
		ext: melspec.New(melspec.Config{
			SampleRate: cfg.SampleRate,
			FFTSize:    cfg.FFTSize,
			HopLength:  cfg.HopLength,
			NumMels:    cfg.NumMels,
			NumCoeffs:  cfg.NumCoeffs,
		}),
		cache: cache,
	}
}

// NumFrames returns the frame count every example shares.
func (l *Loader) NumFrames() int {
	return l.ext.NumFrames(l.targetSamples())
}

func (l *Loader) targetSamples() int {
	return int(math.Round(l.cfg.TargetDur * float64(l.cfg.SampleRate)))
}

// Load reads every WAV/CSV pair of a split, in stem order.
//
// A WAV without a matching CSV is an error; label files without audio
// are ignored. A split with no WAV files at all is an error.
func (l *Loader) Load(root, split string) ([]Example, error) {
	dataDir := filepath.Join(root, split+"_data")
	labelDir := filepath.Join(root, split+"_labels")

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}

	var examples []Example
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		ex, err := l.load(
			filepath.Join(dataDir, e.Name()),
			filepath.Join(labelDir, stem+".csv"),
			stem,
		)
		if err != nil {
			return nil, err
		}
		examples = append(examples, ex)
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("dataset: no WAV files under %s", dataDir)
	}
	return examples, nil
}

func (l *Loader) load(wavPath, csvPath, stem string) (Example, error) {
	feats, err := l.features(wavPath)
	if err != nil {
		return Example{}, err
	}

	notes, err := ReadLabels(csvPath)
	if err != nil {
		return Example{}, err
	}
	labels := Rasterize(notes, len(feats), l.cfg.HopLength, l.cfg.OutputSize)

	return Example{Name: stem, Features: feats, Labels: labels}, nil
}

// features returns the clip's frame matrix, consulting the cache when
// one is configured.
func (l *Loader) features(path string) ([][]float64, error) {
	var key string
	if l.cache != nil {
		var err error
		key, err = l.cacheKey(path)
		if err != nil {
			return nil, err
		}
		frames, err := l.cache.Get(key)
		switch {
		case err == nil:
			return frames, nil
		case !errors.Is(err, ErrCacheMiss):
			return nil, err
		}
	}

	clip, err := wave.Load(path, l.cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	samples := fitLength(clip.Samples, l.targetSamples())

	var frames [][]float64
	if l.cfg.FeatureType == config.FeatureMFCC {
		frames = l.ext.Cepstral(samples)
	} else {
		frames = l.ext.Extract(samples)
	}

	if l.cache != nil {
		if err := l.cache.Put(key, frames); err != nil {
			return nil, err
		}
	}
	return frames, nil
}

// cacheKey fingerprints the source file and every parameter that shapes
// its feature matrix, so a change to either produces a fresh entry.
func (l *Loader) cacheKey(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("dataset: %w", err)
	}
	cfg := l.cfg
	id := fmt.Sprintf("%s|%d|%d|%s|%d|%d|%d|%d|%d|%g",
		path, info.Size(), info.ModTime().UnixNano(),
		cfg.FeatureType, cfg.SampleRate, cfg.HopLength, cfg.FFTSize,
		cfg.NumMels, cfg.NumCoeffs, cfg.TargetDur)
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:]), nil
}

// fitLength crops or zero-pads samples to exactly n.
func fitLength(samples []float64, n int) []float64 {
	if len(samples) >= n {
		return samples[:n]
	}
	out := make([]float64, n)
	copy(out, samples)
	return out
}

// Shuffle reorders examples in place. Training reshuffles with a seeded
// source each epoch so runs are reproducible.
func Shuffle(rng *rand.Rand, examples []Example) {
	rng.Shuffle(len(examples), func(i, j int) {
		examples[i], examples[j] = examples[j], examples[i]
	})
}
