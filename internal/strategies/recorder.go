package strategies

import (
	"go.uber.org/zap"

	"github.com/jward/reconciler"
	"github.com/jward/reconciler/internal/store"
)

// Recorder persists cycle results. Pass its Record method to
// reconciler.WithCycleHook.
type Recorder struct {
	store *store.Store
	log   *zap.Logger
}

// NewRecorder creates a Recorder writing to s. It honours WithLogger.
func NewRecorder(s *store.Store, opts ...Option) *Recorder {
	o := newOptions(opts)
	return &Recorder{store: s, log: o.log}
}

// Record stores res as a run. Failures are logged; a cycle hook has nobody
// to return them to.
func (r *Recorder) Record(res reconciler.CycleResult) {
	run := &store.Run{
		ID:         res.ID.String(),
		Buffer:     publishKey(res.Input),
		Outcome:    res.Outcome.String(),
		Strategies: res.Ran,
		StartedAt:  res.Started,
		Duration:   res.Duration,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if err := r.store.InsertRun(run); err != nil {
		r.log.Warn("recorder: insert run", zap.String("cycle", run.ID), zap.Error(err))
	}
}
