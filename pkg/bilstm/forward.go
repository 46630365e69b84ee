package bilstm

import (
	"fmt"
	"math"

	"github.com/haivivi/melograph/pkg/nn"
)

// Forward runs a batch of feature sequences through the network. Each
// sequence is [T_b][InputSize] and sequences may have different lengths,
// including zero. The result holds one [OutputSize x T_b] probability
// matrix per sequence, in batch order; gradients flow back through g.
func (m *Model) Forward(g *nn.Graph, batch [][][]float64) ([]*nn.Mat, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	maxT := 0
	for b, seq := range batch {
		for t, frame := range seq {
			if len(frame) != m.cfg.InputSize {
				return nil, fmt.Errorf("bilstm: sequence %d frame %d has %d features, want %d", b, t, len(frame), m.cfg.InputSize)
			}
		}
		if len(seq) > maxT {
			maxT = len(seq)
		}
	}

	out := make([]*nn.Mat, len(batch))
	if maxT == 0 {
		for b := range out {
			out[b] = nn.NewMat(m.cfg.OutputSize, 0)
		}
		return out, nil
	}

	xs, masks := packBatch(batch, m.cfg.InputSize, maxT)
	fwd := m.runDirection(g, "fwd", xs, masks, false)
	bwd := m.runDirection(g, "bwd", xs, masks, true)

	// Per-frame state: forward and backward halves stacked.
	states := make([]*nn.Mat, maxT)
	for t := 0; t < maxT; t++ {
		states[t] = g.ConcatRows(fwd[t], bwd[t])
	}

	for b, seq := range batch {
		if len(seq) == 0 {
			out[b] = nn.NewMat(m.cfg.OutputSize, 0)
			continue
		}
		out[b] = m.attendAndProject(g, states, b, len(seq))
	}
	return out, nil
}

// Predict runs one sequence without recording gradients and returns
// per-frame probabilities as [T][OutputSize] rows. An empty sequence
// yields zero rows.
func (m *Model) Predict(seq [][]float64) ([][]float64, error) {
	outs, err := m.Forward(nn.NewGraph(false), [][][]float64{seq})
	if err != nil {
		return nil, err
	}
	probs := outs[0]
	rows := make([][]float64, probs.Cols)
	for t := range rows {
		row := make([]float64, probs.Rows)
		for i := range row {
			row[i] = probs.At(i, t)
		}
		rows[t] = row
	}
	return rows, nil
}

// packBatch lays the batch out as one [InputSize x B] matrix per timestep
// plus a 0/1 validity mask per timestep. Padded slots stay zero.
func packBatch(batch [][][]float64, inputSize, maxT int) ([]*nn.Mat, [][]float64) {
	xs := make([]*nn.Mat, maxT)
	masks := make([][]float64, maxT)
	for t := 0; t < maxT; t++ {
		x := nn.NewMat(inputSize, len(batch))
		mask := make([]float64, len(batch))
		for b, seq := range batch {
			if t >= len(seq) {
				continue
			}
			mask[b] = 1
			for i, v := range seq[t] {
				x.Set(i, b, v)
			}
		}
		xs[t] = x
		masks[t] = mask
	}
	return xs, masks
}

// runDirection unrolls one LSTM over the batch. Masked columns carry the
// previous hidden and cell state through unchanged, so padding cannot
// bleed into a shorter sequence from either end.
func (m *Model) runDirection(g *nn.Graph, dir string, xs []*nn.Mat, masks [][]float64, reverse bool) []*nn.Mat {
	maxT := len(xs)
	batchSize := xs[0].Cols
	h := nn.NewMat(m.cfg.HiddenSize, batchSize)
	c := nn.NewMat(m.cfg.HiddenSize, batchSize)

	hs := make([]*nn.Mat, maxT)
	for step := 0; step < maxT; step++ {
		t := step
		if reverse {
			t = maxT - 1 - step
		}
		hNext, cNext := m.cell(g, dir, xs[t], h, c)
		h = g.BlendCols(hNext, h, masks[t])
		c = g.BlendCols(cNext, c, masks[t])
		hs[t] = h
	}
	return hs
}

// cell applies one LSTM step: gated update of the cell state, tanh output.
func (m *Model) cell(g *nn.Graph, dir string, x, hPrev, cPrev *nn.Mat) (h, c *nn.Mat) {
	lin := func(gate string) *nn.Mat {
		w := m.params[dir+"_"+gate+"_w"]
		u := m.params[dir+"_"+gate+"_u"]
		b := m.params[dir+"_"+gate+"_b"]
		return g.AddBias(g.Add(g.MatMul(w, x), g.MatMul(u, hPrev)), b)
	}

	in := g.Sigmoid(lin("input"))
	forget := g.Sigmoid(lin("forget"))
	out := g.Sigmoid(lin("output"))
	cand := g.Tanh(lin("cell"))

	c = g.Add(g.Eltmul(forget, cPrev), g.Eltmul(in, cand))
	h = g.Eltmul(out, g.Tanh(c))
	return h, c
}

// attendAndProject runs self-attention over the first length frames of
// batch column b and projects each frame to note probabilities.
func (m *Model) attendAndProject(g *nn.Graph, states []*nn.Mat, b, length int) *nn.Mat {
	cols := make([]*nn.Mat, length)
	for t := 0; t < length; t++ {
		cols[t] = g.Col(states[t], b)
	}
	s := g.StackCols(cols) // [2H x T]

	// Attention weights: softmax over scaled pairwise dot products.
	// s^T s is symmetric, so column-normalizing gives each frame's
	// distribution over the others down its column.
	scores := g.Scale(g.MatMul(g.Transpose(s), s), 1/math.Sqrt(float64(2*m.cfg.HiddenSize)))
	attn := g.SoftmaxCols(scores) // [T x T]
	context := g.MatMul(s, attn)  // [2H x T]

	z := g.ConcatRows(s, context) // [4H x T]
	logits := g.AddBias(g.MatMul(m.params["head_w"], z), m.params["head_b"])
	return g.Sigmoid(logits) // [OutputSize x T]
}
