package train

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/haivivi/melograph/pkg/nn"
)

// focalRef is the loss formula computed directly on scalars.
func focalRef(p, y, gamma, alpha float64) float64 {
	pc := math.Min(math.Max(p, probEpsilon), 1-probEpsilon)
	pt1, pt0 := 1.0, 0.0
	if y == 1 {
		pt1 = pc
	} else {
		pt0 = pc
	}
	return -alpha*math.Pow(1-pt1, gamma)*math.Log(pt1) -
		(1-alpha)*math.Pow(pt0, gamma)*math.Log(1-pt0)
}

func randProbs(rnd *rand.Rand, rows, cols int) *nn.Mat {
	m := nn.NewMat(rows, cols)
	for i := range m.W {
		m.W[i] = 0.1 + 0.8*rnd.Float64()
	}
	return m
}

func randTargets(rnd *rand.Rand, rows, cols int) *nn.Mat {
	m := nn.NewMat(rows, cols)
	for i := range m.W {
		if rnd.Float64() < 0.3 {
			m.W[i] = 1
		}
	}
	return m
}

func TestFocalLossMatchesDirectFormula(t *testing.T) {
	cases := []struct{ gamma, alpha float64 }{
		{0, 0.25},
		{2, 0.25},
		{3, 0.7},
	}
	rnd := rand.New(rand.NewSource(11))
	pred := []*nn.Mat{randProbs(rnd, 4, 3), randProbs(rnd, 4, 2)}
	target := []*nn.Mat{randTargets(rnd, 4, 3), randTargets(rnd, 4, 2)}

	for _, tc := range cases {
		l := FocalLoss{Gamma: tc.gamma, Alpha: tc.alpha}
		got, err := l.Forward(nn.NewGraph(false), pred, target)
		if err != nil {
			t.Fatalf("gamma=%g alpha=%g: %v", tc.gamma, tc.alpha, err)
		}

		sum, n := 0.0, 0
		for i := range pred {
			for j := range pred[i].W {
				sum += focalRef(pred[i].W[j], target[i].W[j], tc.gamma, tc.alpha)
				n++
			}
		}
		want := sum / float64(n)
		if math.Abs(got.At(0, 0)-want) > 1e-12 {
			t.Errorf("gamma=%g alpha=%g: loss = %v, want %v", tc.gamma, tc.alpha, got.At(0, 0), want)
		}
	}
}

func TestFocalLossGradients(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	pred := []*nn.Mat{randProbs(rnd, 3, 4), randProbs(rnd, 3, 2)}
	target := []*nn.Mat{randTargets(rnd, 3, 4), randTargets(rnd, 3, 2)}
	l := FocalLoss{Gamma: 3, Alpha: 0.7}

	g := nn.NewGraph(true)
	out, err := l.Forward(g, pred, target)
	if err != nil {
		t.Fatal(err)
	}
	out.Grad[0] = 1
	g.Backward()

	eval := func() float64 {
		v, err := l.Forward(nn.NewGraph(false), pred, target)
		if err != nil {
			t.Fatal(err)
		}
		return v.At(0, 0)
	}

	const h = 1e-6
	for s := range pred {
		for i := range pred[s].W {
			orig := pred[s].W[i]
			pred[s].W[i] = orig + h
			up := eval()
			pred[s].W[i] = orig - h
			down := eval()
			pred[s].W[i] = orig

			want := (up - down) / (2 * h)
			got := pred[s].Grad[i]
			if math.Abs(got-want) > 1e-5*(1+math.Abs(want)) {
				t.Fatalf("seq %d entry %d: grad = %v, numeric %v", s, i, got, want)
			}
		}
	}
}

func TestFocalLossPerfectPrediction(t *testing.T) {
	pred := nn.NewMat(2, 2)
	target := nn.NewMat(2, 2)
	pred.W = []float64{1, 0, 0, 1}
	target.W = []float64{1, 0, 0, 1}

	l := FocalLoss{Gamma: 3, Alpha: 0.7}
	got, err := l.Forward(nn.NewGraph(false), []*nn.Mat{pred}, []*nn.Mat{target})
	if err != nil {
		t.Fatal(err)
	}
	if v := got.At(0, 0); v < 0 || v > 1e-9 {
		t.Fatalf("loss = %v, want ~0 for perfect predictions", v)
	}
}

func TestFocalLossPenalizesConfidentMistakes(t *testing.T) {
	target := nn.NewMat(1, 1)
	target.W[0] = 1

	right := nn.NewMat(1, 1)
	right.W[0] = 0.95
	wrong := nn.NewMat(1, 1)
	wrong.W[0] = 0.05

	l := FocalLoss{Gamma: 2, Alpha: 0.5}
	lo, err := l.Forward(nn.NewGraph(false), []*nn.Mat{right}, []*nn.Mat{target})
	if err != nil {
		t.Fatal(err)
	}
	hi, err := l.Forward(nn.NewGraph(false), []*nn.Mat{wrong}, []*nn.Mat{target})
	if err != nil {
		t.Fatal(err)
	}
	if hi.At(0, 0) <= lo.At(0, 0) {
		t.Fatalf("confident mistake loss %v not above confident hit loss %v", hi.At(0, 0), lo.At(0, 0))
	}
}

func TestFocalLossShapeMismatch(t *testing.T) {
	l := FocalLoss{Gamma: 3, Alpha: 0.7}

	_, err := l.Forward(nn.NewGraph(false), []*nn.Mat{nn.NewMat(3, 2)}, []*nn.Mat{nn.NewMat(3, 3)})
	if err == nil || !strings.Contains(err.Error(), "3x2") {
		t.Fatalf("err = %v, want shape mismatch", err)
	}

	_, err = l.Forward(nn.NewGraph(false), []*nn.Mat{nn.NewMat(3, 2)}, nil)
	if err == nil {
		t.Fatal("expected error for count mismatch")
	}
}

func TestFocalLossEmptyBatch(t *testing.T) {
	l := FocalLoss{Gamma: 3, Alpha: 0.7}
	if _, err := l.Forward(nn.NewGraph(false), nil, nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
	pred := []*nn.Mat{nn.NewMat(3, 0)}
	target := []*nn.Mat{nn.NewMat(3, 0)}
	if _, err := l.Forward(nn.NewGraph(false), pred, target); err == nil {
		t.Fatal("expected error when every sequence is empty")
	}
}
