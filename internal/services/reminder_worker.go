package services

import (
	"context"
	"sync/atomic"
	"time"

	"advancedreminders/internal/reminder"

	"github.com/sirupsen/logrus"
)

// Runner runs one reminder pass
type Runner interface {
	Run(ctx context.Context, opts reminder.RunOptions) (*reminder.Summary, error)
}

// ReminderWorker runs the reminder job on a fixed interval. A tick that
// arrives while a run is still going is dropped.
type ReminderWorker struct {
	runner   Runner
	interval time.Duration
	log      logrus.FieldLogger
	running  atomic.Bool
	done     chan struct{}
}

func NewReminderWorker(runner Runner, interval time.Duration, log logrus.FieldLogger) *ReminderWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReminderWorker{
		runner:   runner,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start runs the job once immediately, then on every tick until ctx is done
func (w *ReminderWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Done is closed once the worker has stopped
func (w *ReminderWorker) Done() <-chan struct{} {
	return w.done
}

func (w *ReminderWorker) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.WithField("interval", w.interval).Info("reminder worker started")
	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("reminder worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one real run unless another one is in progress.
// It reports whether a run was started.
func (w *ReminderWorker) RunOnce(ctx context.Context) bool {
	if !w.running.CompareAndSwap(false, true) {
		w.log.Warn("previous reminder run still in progress, skipping tick")
		return false
	}
	defer w.running.Store(false)

	summary, err := w.runner.Run(ctx, reminder.RunOptions{})
	if err != nil {
		w.log.WithError(err).Error("reminder run failed")
		return true
	}
	w.log.WithFields(logrus.Fields{
		"run_id":   summary.RunID,
		"courses":  summary.Courses,
		"sent":     summary.Sent,
		"failures": summary.Failures,
		"skipped":  summary.Skipped,
	}).Info("reminder run completed")
	return true
}
