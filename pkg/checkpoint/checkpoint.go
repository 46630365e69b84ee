// Package checkpoint persists model snapshots.
//
// Training writes one full checkpoint per epoch plus a final full and a
// final weights-only snapshot. Files are binary (see codec.go) and named
// after the run's hyperparameters so runs with different loss settings
// never collide:
//
//	model_mel_g3_a70_007.ckpt     epoch 7, full (parameters + optimizer)
//	model_mel_g3_a70_final.ckpt   terminal full snapshot
//	model_mel_g3_a70_final.weights terminal parameters-only snapshot
//
// The epoch is parsed back out of the filename on resume, and the payload
// carries the epoch too so a renamed file is rejected instead of silently
// restarting training at the wrong point.
package checkpoint

import (
	"errors"
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/haivivi/melograph/pkg/config"
	"github.com/haivivi/melograph/pkg/nn"
)

// ErrParse indicates a checkpoint filename without a readable epoch.
var ErrParse = errors.New("checkpoint: cannot parse epoch from filename")

// Flavor distinguishes the two snapshot kinds.
type Flavor uint8

const (
	// FlavorFull carries parameters, optimizer state, and the epoch.
	FlavorFull Flavor = 1
	// FlavorWeights carries parameters only.
	FlavorWeights Flavor = 2
)

func (f Flavor) String() string {
	switch f {
	case FlavorFull:
		return "full"
	case FlavorWeights:
		return "weights"
	default:
		return fmt.Sprintf("flavor(%d)", uint8(f))
	}
}

// Checkpoint is one decoded snapshot.
//
// Epoch and Optimizer are meaningful only for FlavorFull. Config is the
// configuration the producing run trained with; loads verify it against
// the consuming model before any parameter is touched.
type Checkpoint struct {
	Flavor    Flavor
	Epoch     int
	RunID     string
	Config    config.Config
	Params    map[string]*nn.Mat
	Optimizer *nn.AdamState
}

// ApplyTo copies the checkpoint parameters into params.
//
// Every destination parameter must exist in the checkpoint with the
// same shape and vice versa; on any mismatch nothing is written and an
// error describes the first offending tensor.
func (c *Checkpoint) ApplyTo(params map[string]*nn.Mat) error {
	for name, dst := range params {
		src, ok := c.Params[name]
		if !ok {
			return fmt.Errorf("checkpoint: missing parameter %q", name)
		}
		if src.Rows != dst.Rows || src.Cols != dst.Cols {
			return fmt.Errorf("checkpoint: parameter %q has shape %dx%d, want %dx%d",
				name, src.Rows, src.Cols, dst.Rows, dst.Cols)
		}
	}
	for name := range c.Params {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("checkpoint: unexpected parameter %q", name)
		}
	}
	for name, dst := range params {
		copy(dst.W, c.Params[name].W)
	}
	return nil
}

// Prefix builds the filename stem for cfg, e.g. "model_mel_g3_a70".
// The alpha component is the fractional part scaled to a percentage,
// matching the training loss naming convention.
func Prefix(cfg config.Config) string {
	alpha100 := math.Mod(cfg.Alpha, 1) * 100
	return fmt.Sprintf("model_%s_g%g_a%.0f", cfg.FeatureType, cfg.Gamma, alpha100)
}

// EpochName returns the per-epoch full checkpoint filename.
func EpochName(cfg config.Config, epoch int) string {
	return fmt.Sprintf("%s_%03d.ckpt", Prefix(cfg), epoch)
}

// FinalName returns the terminal full snapshot filename.
func FinalName(cfg config.Config) string {
	return Prefix(cfg) + "_final.ckpt"
}

// FinalWeightsName returns the terminal parameters-only filename.
func FinalWeightsName(cfg config.Config) string {
	return Prefix(cfg) + "_final.weights"
}

// ParseEpoch extracts the epoch from a checkpoint filename: the digits
// between the last underscore and the extension. Names without that
// shape (including the _final snapshots) fail with ErrParse.
func ParseEpoch(name string) (int, error) {
	base := path.Base(name)
	stem := strings.TrimSuffix(base, path.Ext(base))
	i := strings.LastIndex(stem, "_")
	if i < 0 {
		return 0, fmt.Errorf("%w: %q", ErrParse, name)
	}
	epoch, err := strconv.Atoi(stem[i+1:])
	if err != nil || epoch < 0 {
		return 0, fmt.Errorf("%w: %q", ErrParse, name)
	}
	return epoch, nil
}
