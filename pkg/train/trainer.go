// Package train fits the sequence model to labeled examples.
//
// A Trainer moves through an explicit lifecycle:
//
//	UNINITIALIZED --Compile--> COMPILED --Fit--> TRAINING
//	TRAINING --> COMPLETED | EARLY_STOPPED | FAILED
//
// Each epoch shuffles the training split with a seeded source, steps the
// optimizer batch by batch under the configured loss, scores the
// validation split, and, when a checkpoint store is attached, persists a
// full snapshot. Validation loss drives early stopping: after Patience
// epochs without improvement beyond MinDelta the loop stops and the best
// epoch's weights are restored. Terminal runs write a final full
// checkpoint plus a weights-only one.
package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/google/uuid"

	"github.com/haivivi/melograph/pkg/bilstm"
	"github.com/haivivi/melograph/pkg/checkpoint"
	"github.com/haivivi/melograph/pkg/config"
	"github.com/haivivi/melograph/pkg/dataset"
	"github.com/haivivi/melograph/pkg/nn"
)

// ErrDiverged reports a non-finite batch loss. The trainer aborts
// immediately; parameters stay as of the failing step for inspection.
var ErrDiverged = errors.New("train: loss diverged")

// State is a Trainer lifecycle phase.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateCompiled      State = "COMPILED"
	StateTraining      State = "TRAINING"
	StateCompleted     State = "COMPLETED"
	StateEarlyStopped  State = "EARLY_STOPPED"
	StateFailed        State = "FAILED"
)

// Option configures Trainer creation.
type Option func(*options)

type options struct {
	loss   Loss
	store  *checkpoint.Store
	obs    Observer
	resume *checkpoint.Checkpoint
	rng    *rand.Rand
}

// WithLoss overrides the focal loss built from the configuration.
func WithLoss(l Loss) Option { return func(o *options) { o.loss = l } }

// WithStore enables per-epoch and terminal checkpoints.
func WithStore(s *checkpoint.Store) Option { return func(o *options) { o.store = s } }

// WithObserver streams progress events to obs.
func WithObserver(obs Observer) Option { return func(o *options) { o.obs = obs } }

// WithCheckpoint resumes an earlier run: parameters, optimizer moments,
// the epoch counter, and the run ID are restored during Compile.
func WithCheckpoint(ck *checkpoint.Checkpoint) Option { return func(o *options) { o.resume = ck } }

// WithRand overrides the seeded source that shuffles each epoch.
func WithRand(rng *rand.Rand) Option { return func(o *options) { o.rng = rng } }

// Trainer drives the optimization loop for one model.
// A Trainer is single-use and not safe for concurrent use.
type Trainer struct {
	cfg    config.Config
	model  *bilstm.Model
	loss   Loss
	obs    Observer
	store  *checkpoint.Store
	resume *checkpoint.Checkpoint
	rng    *rand.Rand

	state     State
	opt       *nn.Adam
	runID     string
	epoch     int // last completed epoch, 1-based
	bestEpoch int
}

// New builds a Trainer. Without options it trains with the configured
// focal loss, a fresh optimizer, no checkpointing, and no observer.
func New(cfg config.Config, model *bilstm.Model, opts ...Option) *Trainer {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.obs == nil {
		o.obs = NopObserver{}
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(cfg.Seed))
	}
	return &Trainer{
		cfg:    cfg,
		model:  model,
		loss:   o.loss,
		obs:    o.obs,
		store:  o.store,
		resume: o.resume,
		rng:    o.rng,
		runID:  uuid.New().String(),
		state:  StateUninitialized,
	}
}

// State reports the lifecycle phase.
func (t *Trainer) State() State { return t.state }

// Epoch reports the last completed epoch, counting from 1.
func (t *Trainer) Epoch() int { return t.epoch }

// RunID identifies this training run in its checkpoints.
func (t *Trainer) RunID() string { return t.runID }

// BestEpoch reports the epoch with the lowest validation loss so far,
// or 0 before the first validation pass.
func (t *Trainer) BestEpoch() int { return t.bestEpoch }

func (t *Trainer) transition(to State) error {
	if !allowedTransition(t.state, to) {
		return fmt.Errorf("train: disallowed transition %s -> %s", t.state, to)
	}
	t.state = to
	return nil
}

func allowedTransition(from, to State) bool {
	switch from {
	case StateUninitialized:
		return to == StateCompiled
	case StateCompiled:
		return to == StateTraining
	case StateTraining:
		return to == StateCompleted || to == StateEarlyStopped
	default:
		return false
	}
}

// fail marks the trainer broken. Parameters keep their values as of the
// failing step so the run can be inspected.
func (t *Trainer) fail(err error) error {
	t.state = StateFailed
	return err
}

// Compile binds the loss and optimizer and applies any resume
// checkpoint. It must be called once, before Fit.
func (t *Trainer) Compile() error {
	if err := t.transition(StateCompiled); err != nil {
		return err
	}
	if t.loss == nil {
		t.loss = FocalLoss{Gamma: t.cfg.Gamma, Alpha: t.cfg.Alpha}
	}
	t.opt = nn.NewAdam(t.cfg.LearningRate)

	if t.resume != nil {
		if err := t.resume.ApplyTo(t.model.Params()); err != nil {
			return t.fail(err)
		}
		if t.resume.Optimizer != nil {
			if err := t.opt.LoadState(*t.resume.Optimizer); err != nil {
				return t.fail(err)
			}
		}
		t.epoch = t.resume.Epoch
		if t.resume.RunID != "" {
			t.runID = t.resume.RunID
		}
	}
	return nil
}

// Fit runs the training loop from the epoch after the last completed one
// through the configured epoch count. It returns nil both when every
// epoch ran and when early stopping ended the loop; State distinguishes
// the two. Any error leaves the trainer in StateFailed.
func (t *Trainer) Fit(ctx context.Context, trainSet, valSet []dataset.Example) error {
	if err := t.transition(StateTraining); err != nil {
		return err
	}
	if len(trainSet) == 0 {
		return t.fail(errors.New("train: empty training set"))
	}

	shuffled := slices.Clone(trainSet)
	bestVal := math.Inf(1)
	var bestWeights map[string][]float64
	wait := 0
	stopped := false

	for epoch := t.epoch + 1; epoch <= t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return t.fail(err)
		}

		dataset.Shuffle(t.rng, shuffled)
		trainM, err := t.runEpoch(ctx, epoch, shuffled, true)
		if err != nil {
			return t.fail(err)
		}
		valM, err := t.runEpoch(ctx, epoch, valSet, false)
		if err != nil {
			return t.fail(err)
		}

		t.epoch = epoch
		if err := t.saveEpoch(ctx, epoch); err != nil {
			return t.fail(err)
		}
		t.obs.OnEpochEnd(epoch, t.opt.LR, trainM, valM)

		if len(valSet) == 0 {
			continue
		}
		if valM.Loss < bestVal-t.cfg.MinDelta {
			bestVal = valM.Loss
			t.bestEpoch = epoch
			wait = 0
			bestWeights = t.model.SnapshotWeights()
		} else {
			wait++
			if wait >= t.cfg.Patience {
				stopped = true
				break
			}
		}
	}

	if stopped && bestWeights != nil {
		t.model.RestoreWeights(bestWeights)
	}
	if err := t.saveFinal(ctx); err != nil {
		return t.fail(err)
	}
	if stopped {
		return t.transition(StateEarlyStopped)
	}
	return t.transition(StateCompleted)
}

// runEpoch walks examples in batches. Training batches record gradients
// and step the optimizer; validation batches only score.
func (t *Trainer) runEpoch(ctx context.Context, epoch int, examples []dataset.Example, training bool) (Metrics, error) {
	var m meter
	if len(examples) == 0 {
		return m.metrics(), nil
	}

	for start, batch := 0, 0; start < len(examples); start, batch = start+t.cfg.BatchSize, batch+1 {
		if err := ctx.Err(); err != nil {
			return Metrics{}, err
		}
		end := min(start+t.cfg.BatchSize, len(examples))

		g := nn.NewGraph(training)
		feats := make([][][]float64, 0, end-start)
		targets := make([]*nn.Mat, 0, end-start)
		for _, ex := range examples[start:end] {
			y, err := targetMat(ex, t.cfg.OutputSize)
			if err != nil {
				return Metrics{}, err
			}
			feats = append(feats, ex.Features)
			targets = append(targets, y)
		}

		preds, err := t.model.Forward(g, feats)
		if err != nil {
			return Metrics{}, err
		}
		lossNode, err := t.loss.Forward(g, preds, targets)
		if err != nil {
			return Metrics{}, err
		}
		lossVal := lossNode.At(0, 0)
		if math.IsNaN(lossVal) || math.IsInf(lossVal, 0) {
			return Metrics{}, fmt.Errorf("%w: epoch %d batch %d loss %v", ErrDiverged, epoch, batch, lossVal)
		}

		if training {
			lossNode.Grad[0] = 1
			g.Backward()
			t.opt.Step(t.model.Params())
		}

		bm := m.observe(lossVal, preds, targets)
		if training {
			t.obs.OnTrainBatchEnd(epoch, batch, bm)
		} else {
			t.obs.OnValBatchEnd(epoch, batch, bm)
		}
	}
	return m.metrics(), nil
}

// targetMat lays a T×N label matrix out in the [N x T] orientation the
// network predicts in.
func targetMat(ex dataset.Example, classes int) (*nn.Mat, error) {
	m := nn.NewMat(classes, len(ex.Labels))
	for t, row := range ex.Labels {
		if len(row) != classes {
			return nil, fmt.Errorf("train: example %s frame %d has %d label classes, want %d",
				ex.Name, t, len(row), classes)
		}
		for n, v := range row {
			m.Set(n, t, v)
		}
	}
	return m, nil
}

func (t *Trainer) saveEpoch(ctx context.Context, epoch int) error {
	if t.store == nil {
		return nil
	}
	st := t.opt.State()
	ck := &checkpoint.Checkpoint{
		Flavor:    checkpoint.FlavorFull,
		Epoch:     epoch,
		RunID:     t.runID,
		Config:    t.cfg,
		Params:    t.model.Params(),
		Optimizer: &st,
	}
	return t.store.Save(ctx, checkpoint.EpochName(t.cfg, epoch), ck)
}

// saveFinal writes the terminal pair: a full checkpoint and a
// weights-only one.
func (t *Trainer) saveFinal(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	st := t.opt.State()
	full := &checkpoint.Checkpoint{
		Flavor:    checkpoint.FlavorFull,
		Epoch:     t.epoch,
		RunID:     t.runID,
		Config:    t.cfg,
		Params:    t.model.Params(),
		Optimizer: &st,
	}
	if err := t.store.Save(ctx, checkpoint.FinalName(t.cfg), full); err != nil {
		return err
	}
	weights := &checkpoint.Checkpoint{
		Flavor: checkpoint.FlavorWeights,
		Epoch:  t.epoch,
		RunID:  t.runID,
		Config: t.cfg,
		Params: t.model.Params(),
	}
	return t.store.Save(ctx, checkpoint.FinalWeightsName(t.cfg), weights)
}
