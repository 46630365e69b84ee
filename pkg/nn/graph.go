// Package nn is a small reverse-mode autodiff engine over dense matrices.
//
// A [Graph] records one closure per operation onto a tape; [Graph.Backward]
// replays the tape in reverse, accumulating gradients into each operand's
// Grad slice. Operations on a graph built with NewGraph(false) skip the
// tape entirely, which is how inference runs.
//
// Matrix multiplication is delegated to gonum both forward and backward;
// everything else is straightforward element or column arithmetic. The
// dimension conventions follow the sequence model that sits on top: feature
// vectors are columns, so a batch of B vectors of size N is an N x B matrix.
//
// [Adam] implements the optimizer over a named parameter set and carries
// serializable state so an interrupted run resumes exactly.
package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Graph records operations for one forward pass.
// A Graph is not safe for concurrent use.
type Graph struct {
	needsGrad bool
	tape      []func()
}

// NewGraph creates a graph. With needsGrad false no tape is recorded and
// Backward is a no-op.
func NewGraph(needsGrad bool) *Graph {
	return &Graph{needsGrad: needsGrad}
}

// Backward replays the tape in reverse, accumulating gradients.
// The caller seeds the output gradient first.
func (g *Graph) Backward() {
	for i := len(g.tape) - 1; i >= 0; i-- {
		g.tape[i]()
	}
}

func (g *Graph) add(f func()) {
	if g.needsGrad {
		g.tape = append(g.tape, f)
	}
}

// MatMul computes a*b: [N x K] * [K x M] -> [N x M].
func (g *Graph) MatMul(a, b *Mat) *Mat {
	if a.Cols != b.Rows {
		panic(fmt.Sprintf("nn: MatMul dimensions misaligned: %dx%d * %dx%d", a.Rows, a.Cols, b.Rows, b.Cols))
	}
	out := NewMat(a.Rows, b.Cols)
	if len(out.W) == 0 || a.Cols == 0 {
		return out
	}

	ad := mat.NewDense(a.Rows, a.Cols, a.W)
	bd := mat.NewDense(b.Rows, b.Cols, b.W)
	od := mat.NewDense(out.Rows, out.Cols, out.W)
	od.Mul(ad, bd)

	g.add(func() {
		gd := mat.NewDense(out.Rows, out.Cols, out.Grad)

		da := mat.NewDense(a.Rows, a.Cols, nil)
		da.Mul(gd, bd.T())
		accumulate(a.Grad, da.RawMatrix().Data)

		db := mat.NewDense(b.Rows, b.Cols, nil)
		db.Mul(ad.T(), gd)
		accumulate(b.Grad, db.RawMatrix().Data)
	})
	return out
}

func accumulate(dst, src []float64) {
	for i, v := range src {
		dst[i] += v
	}
}

// Add computes a+b element-wise.
func (g *Graph) Add(a, b *Mat) *Mat {
	sameShape("Add", a, b)
	out := NewMat(a.Rows, a.Cols)
	for i := range a.W {
		out.W[i] = a.W[i] + b.W[i]
	}
	g.add(func() {
		for i := range out.Grad {
			a.Grad[i] += out.Grad[i]
			b.Grad[i] += out.Grad[i]
		}
	})
	return out
}

// Eltmul computes a*b element-wise.
func (g *Graph) Eltmul(a, b *Mat) *Mat {
	sameShape("Eltmul", a, b)
	out := NewMat(a.Rows, a.Cols)
	for i := range a.W {
		out.W[i] = a.W[i] * b.W[i]
	}
	g.add(func() {
		for i := range out.Grad {
			a.Grad[i] += b.W[i] * out.Grad[i]
			b.Grad[i] += a.W[i] * out.Grad[i]
		}
	})
	return out
}

// AddBias adds a column vector to every column of m.
func (g *Graph) AddBias(m, bias *Mat) *Mat {
	if bias.Cols != 1 || bias.Rows != m.Rows {
		panic(fmt.Sprintf("nn: AddBias wants %dx1 bias, got %dx%d", m.Rows, bias.Rows, bias.Cols))
	}
	out := NewMat(m.Rows, m.Cols)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			out.W[r*m.Cols+c] = m.W[r*m.Cols+c] + bias.W[r]
		}
	}
	g.add(func() {
		for r := 0; r < m.Rows; r++ {
			for c := 0; c < m.Cols; c++ {
				grad := out.Grad[r*m.Cols+c]
				m.Grad[r*m.Cols+c] += grad
				bias.Grad[r] += grad
			}
		}
	})
	return out
}

// OneMinus computes 1-m element-wise.
func (g *Graph) OneMinus(m *Mat) *Mat {
	out := NewMat(m.Rows, m.Cols)
	for i := range m.W {
		out.W[i] = 1 - m.W[i]
	}
	g.add(func() {
		for i := range out.Grad {
			m.Grad[i] -= out.Grad[i]
		}
	})
	return out
}

// Scale computes c*m element-wise.
func (g *Graph) Scale(m *Mat, c float64) *Mat {
	out := NewMat(m.Rows, m.Cols)
	for i := range m.W {
		out.W[i] = c * m.W[i]
	}
	g.add(func() {
		for i := range out.Grad {
			m.Grad[i] += c * out.Grad[i]
		}
	})
	return out
}

func (g *Graph) applyActivation(m *Mat, fn func(float64) float64, deriv func(in, out float64) float64) *Mat {
	out := NewMat(m.Rows, m.Cols)
	for i := range m.W {
		out.W[i] = fn(m.W[i])
	}
	g.add(func() {
		for i := range out.Grad {
			m.Grad[i] += deriv(m.W[i], out.W[i]) * out.Grad[i]
		}
	})
	return out
}

// Sigmoid applies the logistic function element-wise.
func (g *Graph) Sigmoid(m *Mat) *Mat {
	return g.applyActivation(m,
		func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
		func(_, out float64) float64 { return out * (1 - out) })
}

// Tanh applies the hyperbolic tangent element-wise.
func (g *Graph) Tanh(m *Mat) *Mat {
	return g.applyActivation(m,
		math.Tanh,
		func(_, out float64) float64 { return 1 - out*out })
}

// Log applies the natural logarithm element-wise. Inputs must be positive;
// clip first when they might not be.
func (g *Graph) Log(m *Mat) *Mat {
	return g.applyActivation(m,
		math.Log,
		func(in, _ float64) float64 { return 1 / in })
}

// PowConst raises every element to the power p.
func (g *Graph) PowConst(m *Mat, p float64) *Mat {
	return g.applyActivation(m,
		func(x float64) float64 { return math.Pow(x, p) },
		func(in, _ float64) float64 {
			if in == 0 && p < 1 {
				return 0
			}
			return p * math.Pow(in, p-1)
		})
}

// Clip clamps every element into [lo, hi]. Gradients pass through inside
// the interval and are dropped at the clamped edges.
func (g *Graph) Clip(m *Mat, lo, hi float64) *Mat {
	out := NewMat(m.Rows, m.Cols)
	for i, v := range m.W {
		switch {
		case v < lo:
			out.W[i] = lo
		case v > hi:
			out.W[i] = hi
		default:
			out.W[i] = v
		}
	}
	g.add(func() {
		for i, v := range m.W {
			if v >= lo && v <= hi {
				m.Grad[i] += out.Grad[i]
			}
		}
	})
	return out
}

// SoftmaxCols normalizes each column into a probability distribution,
// shifting by the column max for stability.
func (g *Graph) SoftmaxCols(m *Mat) *Mat {
	out := NewMat(m.Rows, m.Cols)
	for c := 0; c < m.Cols; c++ {
		maxVal := math.Inf(-1)
		for r := 0; r < m.Rows; r++ {
			if v := m.W[r*m.Cols+c]; v > maxVal {
				maxVal = v
			}
		}
		sum := 0.0
		for r := 0; r < m.Rows; r++ {
			e := math.Exp(m.W[r*m.Cols+c] - maxVal)
			out.W[r*m.Cols+c] = e
			sum += e
		}
		for r := 0; r < m.Rows; r++ {
			out.W[r*m.Cols+c] /= sum
		}
	}
	g.add(func() {
		// Per column: dx_i = p_i * (dy_i - sum_k dy_k p_k)
		for c := 0; c < m.Cols; c++ {
			dot := 0.0
			for r := 0; r < m.Rows; r++ {
				dot += out.Grad[r*m.Cols+c] * out.W[r*m.Cols+c]
			}
			for r := 0; r < m.Rows; r++ {
				p := out.W[r*m.Cols+c]
				m.Grad[r*m.Cols+c] += p * (out.Grad[r*m.Cols+c] - dot)
			}
		}
	})
	return out
}

// Transpose returns m with rows and columns swapped.
func (g *Graph) Transpose(m *Mat) *Mat {
	out := NewMat(m.Cols, m.Rows)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			out.W[c*m.Rows+r] = m.W[r*m.Cols+c]
		}
	}
	g.add(func() {
		for r := 0; r < m.Rows; r++ {
			for c := 0; c < m.Cols; c++ {
				m.Grad[r*m.Cols+c] += out.Grad[c*m.Rows+r]
			}
		}
	})
	return out
}

// ConcatRows stacks a on top of b: [N1 x M] over [N2 x M] -> [(N1+N2) x M].
func (g *Graph) ConcatRows(a, b *Mat) *Mat {
	if a.Cols != b.Cols {
		panic(fmt.Sprintf("nn: ConcatRows column mismatch: %d vs %d", a.Cols, b.Cols))
	}
	out := NewMat(a.Rows+b.Rows, a.Cols)
	copy(out.W[:len(a.W)], a.W)
	copy(out.W[len(a.W):], b.W)
	g.add(func() {
		accumulate(a.Grad, out.Grad[:len(a.W)])
		accumulate(b.Grad, out.Grad[len(a.W):])
	})
	return out
}

// Col extracts column c as an [N x 1] matrix.
func (g *Graph) Col(m *Mat, c int) *Mat {
	if c < 0 || c >= m.Cols {
		panic(fmt.Sprintf("nn: Col %d out of bounds for %dx%d matrix", c, m.Rows, m.Cols))
	}
	out := NewMat(m.Rows, 1)
	for r := 0; r < m.Rows; r++ {
		out.W[r] = m.W[r*m.Cols+c]
	}
	g.add(func() {
		for r := 0; r < m.Rows; r++ {
			m.Grad[r*m.Cols+c] += out.Grad[r]
		}
	})
	return out
}

// StackCols joins column vectors into an [N x len(cols)] matrix.
func (g *Graph) StackCols(cols []*Mat) *Mat {
	if len(cols) == 0 {
		panic("nn: StackCols of no columns")
	}
	n := cols[0].Rows
	out := NewMat(n, len(cols))
	for c, v := range cols {
		if v.Rows != n || v.Cols != 1 {
			panic(fmt.Sprintf("nn: StackCols column %d is %dx%d, want %dx1", c, v.Rows, v.Cols, n))
		}
		for r := 0; r < n; r++ {
			out.W[r*len(cols)+c] = v.W[r]
		}
	}
	g.add(func() {
		for c, v := range cols {
			for r := 0; r < n; r++ {
				v.Grad[r] += out.Grad[r*len(cols)+c]
			}
		}
	})
	return out
}

// BlendCols selects per column between next and prev: columns with mask 1
// take next, columns with mask 0 keep prev. The arithmetic is exact for
// 0/1 masks, so a masked column is bit-identical to prev.
func (g *Graph) BlendCols(next, prev *Mat, mask []float64) *Mat {
	sameShape("BlendCols", next, prev)
	if len(mask) != next.Cols {
		panic(fmt.Sprintf("nn: BlendCols mask length %d, want %d", len(mask), next.Cols))
	}
	out := NewMat(next.Rows, next.Cols)
	for r := 0; r < next.Rows; r++ {
		for c := 0; c < next.Cols; c++ {
			i := r*next.Cols + c
			out.W[i] = mask[c]*next.W[i] + (1-mask[c])*prev.W[i]
		}
	}
	g.add(func() {
		for r := 0; r < next.Rows; r++ {
			for c := 0; c < next.Cols; c++ {
				i := r*next.Cols + c
				next.Grad[i] += mask[c] * out.Grad[i]
				prev.Grad[i] += (1 - mask[c]) * out.Grad[i]
			}
		}
	})
	return out
}

// SumAll reduces m to a 1x1 matrix holding the sum of every element.
func (g *Graph) SumAll(m *Mat) *Mat {
	out := NewMat(1, 1)
	for _, v := range m.W {
		out.W[0] += v
	}
	g.add(func() {
		for i := range m.Grad {
			m.Grad[i] += out.Grad[0]
		}
	})
	return out
}
