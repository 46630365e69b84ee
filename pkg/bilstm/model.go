// Package bilstm implements the transcription network: a bidirectional
// LSTM encoder with scaled dot-product self-attention and a per-frame
// multi-label sigmoid head.
//
// # Architecture
//
// For each frame of an input feature sequence:
//
//  1. Two LSTM passes, one per time direction, each HiddenSize wide,
//     produce a 2*HiddenSize frame state.
//  2. Self-attention over the frame states of the same sequence yields a
//     context vector per frame; attention weights are softmax over scaled
//     dot products.
//  3. The frame state and its context are concatenated and projected to
//     OutputSize independent note probabilities through a sigmoid.
//
// Sequences in a batch may have different lengths. Shorter sequences are
// padded internally to the batch maximum, and padding is masked out of
// both the recurrence and the attention: a padded batch produces exactly
// the same per-frame probabilities as running each sequence alone.
//
// A Model holds no per-call state; its parameters change only when an
// optimizer steps over [Model.Params].
package bilstm

import (
	"math"
	"math/rand"

	"github.com/haivivi/melograph/pkg/nn"
)

// Config fixes the network shape.
type Config struct {
	InputSize  int // features per frame
	HiddenSize int // LSTM units per direction
	OutputSize int // note classes per frame
}

// Model is the transcription network. Create one with New or restore one
// from a checkpoint.
type Model struct {
	cfg    Config
	params map[string]*nn.Mat
}

var gates = []string{"input", "forget", "cell", "output"}

// New creates a model with Gaussian-initialized weights drawn from rnd.
// Forget gate biases start at one, everything else at zero mean.
func New(cfg Config, rnd *rand.Rand) *Model {
	m := &Model{cfg: cfg, params: make(map[string]*nn.Mat)}

	stdIn := 1 / math.Sqrt(float64(cfg.InputSize))
	stdHidden := 1 / math.Sqrt(float64(cfg.HiddenSize))
	for _, dir := range []string{"fwd", "bwd"} {
		for _, gate := range gates {
			m.params[dir+"_"+gate+"_w"] = nn.NewRandMat(cfg.HiddenSize, cfg.InputSize, rnd, stdIn)
			m.params[dir+"_"+gate+"_u"] = nn.NewRandMat(cfg.HiddenSize, cfg.HiddenSize, rnd, stdHidden)
			b := nn.NewMat(cfg.HiddenSize, 1)
			if gate == "forget" {
				for i := range b.W {
					b.W[i] = 1
				}
			}
			m.params[dir+"_"+gate+"_b"] = b
		}
	}

	stdHead := 1 / math.Sqrt(float64(4*cfg.HiddenSize))
	m.params["head_w"] = nn.NewRandMat(cfg.OutputSize, 4*cfg.HiddenSize, rnd, stdHead)
	m.params["head_b"] = nn.NewMat(cfg.OutputSize, 1)
	return m
}

// Config returns the network shape.
func (m *Model) Config() Config {
	return m.cfg
}

// Params returns the live parameter set keyed by name. Optimizers and
// checkpointing work directly on these matrices.
func (m *Model) Params() map[string]*nn.Mat {
	return m.params
}

// SnapshotWeights deep-copies the current parameter values.
func (m *Model) SnapshotWeights() map[string][]float64 {
	out := make(map[string][]float64, len(m.params))
	for k, p := range m.params {
		w := make([]float64, len(p.W))
		copy(w, p.W)
		out[k] = w
	}
	return out
}

// RestoreWeights copies a snapshot back into the parameters. Unknown or
// mis-sized entries are ignored so a partial snapshot cannot corrupt the
// model.
func (m *Model) RestoreWeights(snapshot map[string][]float64) {
	for k, w := range snapshot {
		p, ok := m.params[k]
		if !ok || len(p.W) != len(w) {
			continue
		}
		copy(p.W, w)
	}
}
