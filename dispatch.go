package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is how a cycle ended.
type Outcome int

const (
	// OutcomeCompleted means every strategy was visited.
	OutcomeCompleted Outcome = iota
	// OutcomeCancelled means a newer schedule or a detach interrupted the cycle.
	OutcomeCancelled
	// OutcomeSkipped means there was no buffer, or the editor had no input.
	OutcomeSkipped
	// OutcomeFailed means a strategy returned an error or panicked.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// CycleResult describes one dispatch cycle.
type CycleResult struct {
	ID         uuid.UUID
	Reconciler string
	Input      string // empty without an input
	Started    time.Time
	Duration   time.Duration
	Outcome    Outcome
	Ran        int // strategies that ran a pass
	Gated      int // strategies the gate declined
	Err        error
}

// Stats counts schedules and cycle outcomes since the reconciler was created.
type Stats struct {
	Scheduled uint64
	Completed uint64
	Cancelled uint64
	Skipped   uint64
	Failed    uint64
}

// Cycles returns the number of cycles that started.
func (s Stats) Cycles() uint64 {
	return s.Completed + s.Cancelled + s.Skipped + s.Failed
}

type stats struct {
	scheduled atomic.Uint64
	completed atomic.Uint64
	cancelled atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
}

func (s *stats) record(o Outcome) {
	switch o {
	case OutcomeCompleted:
		s.completed.Add(1)
	case OutcomeCancelled:
		s.cancelled.Add(1)
	case OutcomeSkipped:
		s.skipped.Add(1)
	case OutcomeFailed:
		s.failed.Add(1)
	}
}

func (s *stats) snapshot() Stats {
	return Stats{
		Scheduled: s.scheduled.Load(),
		Completed: s.completed.Load(),
		Cancelled: s.cancelled.Load(),
		Skipped:   s.skipped.Load(),
		Failed:    s.failed.Load(),
	}
}

// run is the job's RunFunc: one dispatch cycle.
func (r *Reconciler) run(ctx context.Context) error {
	res := CycleResult{ID: uuid.New(), Started: r.clock.Now()}
	err := r.dispatch(ctx, &res)
	res.Duration = r.clock.Since(res.Started)
	res.Err = err

	r.stats.record(res.Outcome)
	fields := []zap.Field{
		zap.String("cycle", res.ID.String()),
		zap.String("reconciler", res.Reconciler),
		zap.Stringer("outcome", res.Outcome),
		zap.Int("ran", res.Ran),
		zap.Duration("took", res.Duration),
	}
	if res.Outcome == OutcomeFailed {
		r.log.Warn("cycle failed", append(fields, zap.Error(err))...)
	} else {
		r.log.Debug("cycle finished", fields...)
	}
	if r.cycleHook != nil {
		r.cycleHook(res)
	}
	if res.Outcome == OutcomeFailed {
		return nil // already reported
	}
	return err
}

// dispatch visits every strategy in registration order. For each one it
// binds the buffer or input, consults the gate, checks for cancellation and
// runs either the initial pass or a full-buffer regular pass. A strategy
// error ends the cycle; the next schedule retries from the first strategy.
func (r *Reconciler) dispatch(ctx context.Context, res *CycleResult) (err error) {
	defer func() {
		if p := recover(); p != nil {
			res.Outcome = OutcomeFailed
			err = fmt.Errorf("reconciler: strategy panicked: %v", p)
		}
	}()

	r.mu.Lock()
	buf, in := r.buffer, r.input
	if in == nil && r.editor != nil {
		in = r.editor.Input()
		r.input = in
	}
	res.Reconciler = r.nameLocked()
	r.mu.Unlock()
	if in != nil {
		res.Input = in.Name()
	}

	if buf == nil || (r.editor != nil && in == nil) {
		res.Outcome = OutcomeSkipped
		return nil
	}

	region := Region{Offset: 0, Length: buf.Len()}
	visible := r.visible.Load()
	for _, e := range r.strategies.snapshot() {
		ran, err := r.step(ctx, e, buf, in, region, visible)
		switch {
		case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
			res.Outcome = OutcomeCancelled
			return err
		case err != nil:
			res.Outcome = OutcomeFailed
			return fmt.Errorf("reconciler: strategy %d (%T): %w", e.handle, e.strategy, err)
		case ran:
			res.Ran++
		default:
			res.Gated++
		}
	}
	res.Outcome = OutcomeCompleted
	return nil
}

// step runs a single strategy while holding its lock. It reports whether the
// strategy ran a pass; false with a nil error means the gate declined it.
func (r *Reconciler) step(ctx context.Context, e *entry, buf Buffer, in Input, region Region, visible bool) (bool, error) {
	e.locker.Lock()
	defer e.locker.Unlock()

	if e.inputAware != nil && in != nil {
		e.inputAware.SetInput(in)
	} else {
		e.strategy.SetBuffer(buf)
	}

	info := StrategyInfo{
		Handle:      e.handle,
		Strategy:    e.strategy,
		Initialized: e.initialized.Load(),
		HostVisible: visible,
	}
	if !r.gate(info) {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if e.extended != nil && !info.Initialized {
		if err := e.extended.InitialReconcile(ctx); err != nil {
			return false, err
		}
		e.initialized.Store(true)
		return true, nil
	}
	if err := e.strategy.Reconcile(ctx, region); err != nil {
		return false, err
	}
	return true, nil
}
