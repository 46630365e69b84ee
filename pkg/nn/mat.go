package nn

import (
	"fmt"
	"math/rand"
)

// Mat is a dense row-major matrix carrying a value and its gradient.
// W and Grad always have length Rows*Cols; element (r, c) lives at
// index r*Cols + c.
type Mat struct {
	Rows int
	Cols int
	W    []float64
	Grad []float64
}

// NewMat creates a zero matrix. Zero dimensions are allowed and yield an
// empty matrix.
func NewMat(rows, cols int) *Mat {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("nn: negative matrix dimension %dx%d", rows, cols))
	}
	return &Mat{
		Rows: rows,
		Cols: cols,
		W:    make([]float64, rows*cols),
		Grad: make([]float64, rows*cols),
	}
}

// NewRandMat creates a matrix with Gaussian entries of the given standard
// deviation, drawn from rnd so initialization is reproducible.
func NewRandMat(rows, cols int, rnd *rand.Rand, stddev float64) *Mat {
	m := NewMat(rows, cols)
	for i := range m.W {
		m.W[i] = rnd.NormFloat64() * stddev
	}
	return m
}

// FromRows builds a matrix from row slices. All rows must have equal length.
func FromRows(rows [][]float64) *Mat {
	if len(rows) == 0 {
		return NewMat(0, 0)
	}
	cols := len(rows[0])
	m := NewMat(len(rows), cols)
	for r, row := range rows {
		if len(row) != cols {
			panic(fmt.Sprintf("nn: ragged row %d: len %d, want %d", r, len(row), cols))
		}
		copy(m.W[r*cols:(r+1)*cols], row)
	}
	return m
}

// At returns the value at (row, col).
func (m *Mat) At(row, col int) float64 {
	m.check(row, col)
	return m.W[row*m.Cols+col]
}

// Set stores v at (row, col).
func (m *Mat) Set(row, col int, v float64) {
	m.check(row, col)
	m.W[row*m.Cols+col] = v
}

func (m *Mat) check(row, col int) {
	if row < 0 || row >= m.Rows || col < 0 || col >= m.Cols {
		panic(fmt.Sprintf("nn: index (%d,%d) out of bounds for %dx%d matrix", row, col, m.Rows, m.Cols))
	}
}

// ZeroGrad clears the gradient.
func (m *Mat) ZeroGrad() {
	for i := range m.Grad {
		m.Grad[i] = 0
	}
}

// Clone deep-copies the values. Gradients start at zero.
func (m *Mat) Clone() *Mat {
	out := NewMat(m.Rows, m.Cols)
	copy(out.W, m.W)
	return out
}

// CopyValues overwrites m's values with src's. Shapes must match.
func (m *Mat) CopyValues(src *Mat) {
	if m.Rows != src.Rows || m.Cols != src.Cols {
		panic(fmt.Sprintf("nn: CopyValues shape mismatch: %dx%d vs %dx%d", m.Rows, m.Cols, src.Rows, src.Cols))
	}
	copy(m.W, src.W)
}

// RowSlice returns row r as a fresh slice.
func (m *Mat) RowSlice(r int) []float64 {
	m.check(r, 0)
	out := make([]float64, m.Cols)
	copy(out, m.W[r*m.Cols:(r+1)*m.Cols])
	return out
}

// sameShape panics unless a and b have identical dimensions.
func sameShape(op string, a, b *Mat) {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		panic(fmt.Sprintf("nn: %s shape mismatch: %dx%d vs %dx%d", op, a.Rows, a.Cols, b.Rows, b.Cols))
	}
}
