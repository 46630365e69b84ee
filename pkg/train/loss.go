package train

import (
	"errors"
	"fmt"

	"github.com/haivivi/melograph/pkg/nn"
)

// probEpsilon keeps clipped probabilities inside the domain of log.
const probEpsilon = 1e-7

// Loss scores a batch of per-frame probability matrices against binary
// targets of the same shapes and returns a 1x1 scalar node that gradients
// flow back through.
type Loss interface {
	Name() string
	Forward(g *nn.Graph, pred, target []*nn.Mat) (*nn.Mat, error)
}

// FocalLoss is the binary focal loss of Lin et al. (arXiv:1708.02002):
//
//	FL = mean( -alpha * (1 - pt_1)^gamma * log(pt_1)
//	           - (1-alpha) * pt_0^gamma * log(1 - pt_0) )
//
// where pt_1 is the predicted probability on positive entries (1
// elsewhere) and pt_0 the predicted probability on negative entries (0
// elsewhere). Most frames contain far more inactive than active note
// classes; gamma shrinks the contribution of easy negatives and alpha
// reweights the rare positives.
type FocalLoss struct {
	Gamma float64 // focusing exponent, >= 0
	Alpha float64 // positive-class weight in (0, 1)
}

func (FocalLoss) Name() string { return "binary_focal" }

// Forward averages the element losses over every entry of the batch.
// Predictions are clipped to [probEpsilon, 1-probEpsilon] first.
func (l FocalLoss) Forward(g *nn.Graph, pred, target []*nn.Mat) (*nn.Mat, error) {
	if len(pred) != len(target) {
		return nil, fmt.Errorf("train: %d predictions but %d targets", len(pred), len(target))
	}

	var sum *nn.Mat
	elems := 0
	for i := range pred {
		p, y := pred[i], target[i]
		if p.Rows != y.Rows || p.Cols != y.Cols {
			return nil, fmt.Errorf("train: sequence %d prediction is %dx%d but target is %dx%d",
				i, p.Rows, p.Cols, y.Rows, y.Cols)
		}
		if p.Cols == 0 {
			continue
		}

		pc := g.Clip(p, probEpsilon, 1-probEpsilon)
		// pt1 = p where y==1 and 1 elsewhere; pt0 = p where y==0 and 0
		// elsewhere. Both follow from y being exactly 0 or 1.
		pt1 := g.OneMinus(g.Eltmul(y, g.OneMinus(pc)))
		pt0 := g.Eltmul(g.OneMinus(y), pc)

		pos := g.Scale(g.Eltmul(g.PowConst(g.OneMinus(pt1), l.Gamma), g.Log(pt1)), -l.Alpha)
		neg := g.Scale(g.Eltmul(g.PowConst(pt0, l.Gamma), g.Log(g.OneMinus(pt0))), -(1 - l.Alpha))

		s := g.SumAll(g.Add(pos, neg))
		if sum == nil {
			sum = s
		} else {
			sum = g.Add(sum, s)
		}
		elems += p.Rows * p.Cols
	}
	if elems == 0 {
		return nil, errors.New("train: batch has no frames")
	}
	return g.Scale(sum, 1/float64(elems)), nil
}
