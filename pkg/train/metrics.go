package train

import "github.com/haivivi/melograph/pkg/nn"

// decisionThreshold binarizes probabilities for accuracy, precision, and
// recall. The loss itself never thresholds.
const decisionThreshold = 0.5

// Metrics summarizes one batch or one epoch of predictions.
type Metrics struct {
	Loss      float64
	Accuracy  float64
	Precision float64
	Recall    float64
}

// meter accumulates prediction counts so epoch metrics are exact totals
// rather than means of batch means.
type meter struct {
	lossSum float64 // batch loss weighted by element count
	elems   int
	tp, fp  int
	tn, fn  int
}

// observe folds one batch into the running totals.
func (m *meter) observe(loss float64, pred, target []*nn.Mat) Metrics {
	var b meter
	for i := range pred {
		p, y := pred[i], target[i]
		for j := range p.W {
			hit := p.W[j] > decisionThreshold
			want := y.W[j] == 1
			switch {
			case hit && want:
				b.tp++
			case hit && !want:
				b.fp++
			case !hit && want:
				b.fn++
			default:
				b.tn++
			}
		}
		b.elems += p.Rows * p.Cols
	}
	b.lossSum = loss * float64(b.elems)

	m.lossSum += b.lossSum
	m.elems += b.elems
	m.tp += b.tp
	m.fp += b.fp
	m.tn += b.tn
	m.fn += b.fn
	return b.metrics()
}

// metrics reduces the totals. Empty denominators yield zero.
func (m *meter) metrics() Metrics {
	out := Metrics{}
	if m.elems > 0 {
		out.Loss = m.lossSum / float64(m.elems)
		out.Accuracy = float64(m.tp+m.tn) / float64(m.elems)
	}
	if m.tp+m.fp > 0 {
		out.Precision = float64(m.tp) / float64(m.tp+m.fp)
	}
	if m.tp+m.fn > 0 {
		out.Recall = float64(m.tp) / float64(m.tp+m.fn)
	}
	return out
}
