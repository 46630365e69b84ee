package nn

import (
	"fmt"
	"math"
	"sort"
)

// Adam implements the Adam optimizer over a named parameter set.
// Moment estimates are kept per parameter name, so the same Adam value
// keeps working across steps as long as names and shapes stay stable.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t int
	m map[string][]float64
	v map[string][]float64
}

// NewAdam creates an optimizer with the standard moment decay rates.
func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
		m:     make(map[string][]float64),
		v:     make(map[string][]float64),
	}
}

// Step applies one update to every parameter from its accumulated gradient
// and then clears the gradients. Non-finite gradients are treated as zero.
func (s *Adam) Step(params map[string]*Mat) {
	s.t++
	t := float64(s.t)
	// Fold both bias corrections into the step size.
	lrT := s.LR * math.Sqrt(1-math.Pow(s.Beta2, t)) / (1 - math.Pow(s.Beta1, t))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		p := params[k]
		mK, vK := s.m[k], s.v[k]
		if len(mK) != len(p.W) {
			mK = make([]float64, len(p.W))
			vK = make([]float64, len(p.W))
			s.m[k] = mK
			s.v[k] = vK
		}

		for i := range p.W {
			grad := p.Grad[i]
			if math.IsNaN(grad) || math.IsInf(grad, 0) {
				grad = 0
			}
			mK[i] = s.Beta1*mK[i] + (1-s.Beta1)*grad
			vK[i] = s.Beta2*vK[i] + (1-s.Beta2)*grad*grad

			update := lrT * mK[i] / (math.Sqrt(vK[i]) + s.Eps)
			if math.IsNaN(update) || math.IsInf(update, 0) {
				continue
			}
			p.W[i] -= update
		}
		p.ZeroGrad()
	}
}

// StepCount returns the number of updates applied so far.
func (s *Adam) StepCount() int {
	return s.t
}

// AdamState is the serializable snapshot of an optimizer.
type AdamState struct {
	T int
	M map[string][]float64
	V map[string][]float64
}

// State snapshots the moment estimates and step counter. The returned maps
// share backing slices with the optimizer; copy before mutating.
func (s *Adam) State() AdamState {
	return AdamState{T: s.t, M: s.m, V: s.v}
}

// LoadState restores a snapshot taken with State. The moments are copied,
// so the snapshot may keep living elsewhere. Parameter shapes are checked
// lazily on the next Step.
func (s *Adam) LoadState(st AdamState) error {
	if st.M == nil || st.V == nil {
		return fmt.Errorf("nn: optimizer state missing moment maps")
	}
	if len(st.M) != len(st.V) {
		return fmt.Errorf("nn: optimizer state has %d first moments but %d second moments", len(st.M), len(st.V))
	}
	s.t = st.T
	s.m = copyMoments(st.M)
	s.v = copyMoments(st.V)
	return nil
}

func copyMoments(src map[string][]float64) map[string][]float64 {
	dst := make(map[string][]float64, len(src))
	for k, v := range src {
		c := make([]float64, len(v))
		copy(c, v)
		dst[k] = c
	}
	return dst
}
