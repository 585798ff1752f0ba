package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Worker drives the queue consumer on a poll interval and on wake-ups.
type Worker struct {
	Consumer    *QueueConsumer
	Interval    time.Duration
	PassTimeout time.Duration
	Wake        <-chan struct{}
	Log         *zap.Logger
}

func NewWorker(consumer *QueueConsumer, interval, passTimeout time.Duration, wake <-chan struct{}, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		Consumer:    consumer,
		Interval:    interval,
		PassTimeout: passTimeout,
		Wake:        wake,
		Log:         log,
	}
}

// Start blocks until ctx is done. A full batch means more work is waiting,
// so the worker goes again without sleeping.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		for w.runPass(ctx) {
			if ctx.Err() != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.Wake:
		}
	}
}

func (w *Worker) runPass(ctx context.Context) (more bool) {
	passCtx := ctx
	if w.PassTimeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, w.PassTimeout)
		defer cancel()
	}

	res, err := w.Consumer.ProcessPending(passCtx)
	if err != nil {
		if ctx.Err() == nil {
			w.Log.Error("automation pass failed", zap.Error(err))
		}
		return false
	}
	if res.Claimed > 0 {
		w.Log.Info("automation pass",
			zap.Int("claimed", res.Claimed),
			zap.Int("processed", res.Processed))
	}
	batch := w.Consumer.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return res.Claimed >= batch && res.Processed > 0
}
