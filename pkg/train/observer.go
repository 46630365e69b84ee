package train

import "go.uber.org/zap"

// Observer receives training progress events. Implementations run inline
// with the training loop and must not block.
type Observer interface {
	OnTrainBatchEnd(epoch, batch int, m Metrics)
	OnValBatchEnd(epoch, batch int, m Metrics)
	OnEpochEnd(epoch int, lr float64, train, val Metrics)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) OnTrainBatchEnd(int, int, Metrics)         {}
func (NopObserver) OnValBatchEnd(int, int, Metrics)           {}
func (NopObserver) OnEpochEnd(int, float64, Metrics, Metrics) {}

// ZapObserver reports progress through a zap logger: validation batches
// and epoch summaries at info, training batches at debug.
type ZapObserver struct {
	log *zap.Logger
}

func NewZapObserver(log *zap.Logger) *ZapObserver {
	return &ZapObserver{log: log}
}

func (o *ZapObserver) OnTrainBatchEnd(epoch, batch int, m Metrics) {
	o.log.Debug("train batch",
		zap.Int("epoch", epoch),
		zap.Int("batch", batch),
		zap.Float64("loss", m.Loss),
	)
}

func (o *ZapObserver) OnValBatchEnd(epoch, batch int, m Metrics) {
	o.log.Info("validation batch",
		zap.Int("epoch", epoch),
		zap.Int("batch", batch),
		zap.Float64("loss", m.Loss),
		zap.Float64("accuracy", m.Accuracy),
		zap.Float64("precision", m.Precision),
		zap.Float64("recall", m.Recall),
	)
}

func (o *ZapObserver) OnEpochEnd(epoch int, lr float64, train, val Metrics) {
	o.log.Info("epoch",
		zap.Int("epoch", epoch),
		zap.Float64("learning_rate", lr),
		zap.Float64("loss", train.Loss),
		zap.Float64("accuracy", train.Accuracy),
		zap.Float64("val_loss", val.Loss),
		zap.Float64("val_accuracy", val.Accuracy),
		zap.Float64("val_precision", val.Precision),
		zap.Float64("val_recall", val.Recall),
	)
}
