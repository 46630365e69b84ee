// Package config holds the hyperparameters shared by feature extraction,
// the sequence model, and the training loop.
//
// A single Config value is built once (defaults, optionally overlaid by a
// YAML file) and passed explicitly into constructors. Nothing in this
// repository reads configuration from globals or the environment.
//
// Defaults match the transcription model this tool ships with:
//
//	SampleRate:     44100
//	HopLength:      512
//	FFTSize:        2048
//	NumMels:        128
//	NumCoeffs:      20
//	TargetDuration: 10 s
//	BatchSize:      8
//	Epochs:         100
//	Gamma:          3.0
//	Alpha:          0.7
//	LearningRate:   1e-3
//	HiddenSize:     256
//	Patience:       10
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Feature front-end selection. The model was originally trained on cepstral
// coefficients and later migrated to log-mel spectrograms; both front-ends
// remain available.
const (
	FeatureMel  = "mel"
	FeatureMFCC = "mfcc"
)

// Config carries every tunable of the transcription pipeline.
type Config struct {
	// Audio front-end.
	SampleRate  int     `yaml:"sample_rate"`  // Hz; input audio is resampled to this rate
	HopLength   int     `yaml:"hop_length"`   // samples between successive frames
	FFTSize     int     `yaml:"n_fft"`        // FFT window size in samples
	NumMels     int     `yaml:"n_mels"`       // mel bands per frame
	NumCoeffs   int     `yaml:"n_mfcc"`       // cepstral coefficients (mfcc front-end only)
	FeatureType string  `yaml:"feature_type"` // "mel" or "mfcc"
	TargetDur   float64 `yaml:"target_duration"` // training clip length in seconds

	// Model shape.
	InputSize  int `yaml:"input_size"`  // features per frame fed to the network
	HiddenSize int `yaml:"hidden_size"` // LSTM units per direction
	OutputSize int `yaml:"output_size"` // note classes; index 0 is the rest class

	// Optimization.
	BatchSize    int     `yaml:"batch_size"`
	Epochs       int     `yaml:"num_epochs"`
	LearningRate float64 `yaml:"learning_rate"`
	Gamma        float64 `yaml:"gamma"` // focal loss focusing exponent
	Alpha        float64 `yaml:"alpha"` // focal loss positive-class weight

	// Early stopping on validation loss.
	Patience int     `yaml:"patience"`  // epochs without improvement before stopping
	MinDelta float64 `yaml:"min_delta"` // improvement below this counts as none

	// Seed drives weight init and epoch shuffling for reproducible runs.
	Seed int64 `yaml:"seed"`
}

// Default returns the configuration the shipped model was trained with.
func Default() Config {
	return Config{
		SampleRate:   44100,
		HopLength:    512,
		FFTSize:      2048,
		NumMels:      128,
		NumCoeffs:    20,
		FeatureType:  FeatureMel,
		TargetDur:    10,
		InputSize:    128,
		HiddenSize:   256,
		OutputSize:   128,
		BatchSize:    8,
		Epochs:       100,
		LearningRate: 1e-3,
		Gamma:        3.0,
		Alpha:        0.7,
		Patience:     10,
		MinDelta:     0,
		Seed:         1,
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// FeatureDim returns the per-frame feature width of the active front-end.
func (c Config) FeatureDim() int {
	if c.FeatureType == FeatureMFCC {
		return c.NumCoeffs
	}
	return c.NumMels
}

// FrameDuration returns the length of one analysis frame in seconds.
func (c Config) FrameDuration() float64 {
	return float64(c.HopLength) / float64(c.SampleRate)
}

// Validate checks cross-field invariants.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("config: sample_rate must be positive, got %d", c.SampleRate)
	case c.HopLength <= 0:
		return fmt.Errorf("config: hop_length must be positive, got %d", c.HopLength)
	case c.FFTSize <= 0 || c.FFTSize&(c.FFTSize-1) != 0:
		return fmt.Errorf("config: n_fft must be a positive power of two, got %d", c.FFTSize)
	case c.NumMels <= 0:
		return fmt.Errorf("config: n_mels must be positive, got %d", c.NumMels)
	case c.FeatureType != FeatureMel && c.FeatureType != FeatureMFCC:
		return fmt.Errorf("config: feature_type must be %q or %q, got %q", FeatureMel, FeatureMFCC, c.FeatureType)
	case c.FeatureType == FeatureMFCC && (c.NumCoeffs <= 0 || c.NumCoeffs > c.NumMels):
		return fmt.Errorf("config: n_mfcc must be in 1..n_mels, got %d", c.NumCoeffs)
	case c.TargetDur <= 0:
		return fmt.Errorf("config: target_duration must be positive, got %g", c.TargetDur)
	case c.InputSize != c.FeatureDim():
		return fmt.Errorf("config: input_size %d does not match %s feature width %d", c.InputSize, c.FeatureType, c.FeatureDim())
	case c.HiddenSize <= 0:
		return fmt.Errorf("config: hidden_size must be positive, got %d", c.HiddenSize)
	case c.OutputSize < 2 || c.OutputSize > 128:
		return fmt.Errorf("config: output_size must be in 2..128, got %d", c.OutputSize)
	case c.BatchSize <= 0:
		return fmt.Errorf("config: batch_size must be positive, got %d", c.BatchSize)
	case c.Epochs <= 0:
		return fmt.Errorf("config: num_epochs must be positive, got %d", c.Epochs)
	case c.LearningRate <= 0:
		return fmt.Errorf("config: learning_rate must be positive, got %g", c.LearningRate)
	case c.Gamma < 0:
		return fmt.Errorf("config: gamma must be non-negative, got %g", c.Gamma)
	case c.Alpha <= 0 || c.Alpha >= 1:
		return fmt.Errorf("config: alpha must be in (0, 1), got %g", c.Alpha)
	case c.Patience < 0:
		return fmt.Errorf("config: patience must be non-negative, got %d", c.Patience)
	case c.MinDelta < 0:
		return fmt.Errorf("config: min_delta must be non-negative, got %g", c.MinDelta)
	}
	return nil
}
