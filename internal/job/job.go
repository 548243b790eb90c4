// Package job implements a single-slot background job: at most one pending
// task, executed after a delay on a dedicated worker goroutine.
//
// Scheduling a job that is already pending replaces the pending task, and
// cancels the context of a run that is in flight. Runs never overlap: the
// worker executes them one at a time, so a superseding run starts only after
// the previous one has returned.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ErrClosed is returned by Schedule after Close.
var ErrClosed = errors.New("job: closed")

// State describes the task slot of a Job.
type State int

const (
	// StateNone means nothing is scheduled or running.
	StateNone State = iota
	// StateSleeping means a task is armed and its delay has not elapsed.
	StateSleeping
	// StateWaiting means the delay elapsed and the task waits for the worker.
	StateWaiting
	// StateRunning means the worker is executing a run and nothing is pending.
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateSleeping:
		return "sleeping"
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// RunFunc is the unit of work executed by the worker. ctx is cancelled when
// the job is cancelled, rescheduled or closed while the run is in flight.
type RunFunc func(ctx context.Context) error

// Option configures a Job.
type Option func(*Job)

// WithClock replaces the wall clock used for delays.
func WithClock(c clockwork.Clock) Option {
	return func(j *Job) {
		j.clock = c
	}
}

// WithLogger sets the logger used for run failures.
func WithLogger(l *zap.Logger) Option {
	return func(j *Job) {
		j.log = l
	}
}

// Job is a cancellable, delayable unit of work bound to one worker goroutine.
type Job struct {
	name  string
	run   RunFunc
	clock clockwork.Clock
	log   *zap.Logger

	mu        sync.Mutex
	gen       uint64
	pending   State // StateNone, StateSleeping or StateWaiting
	running   bool
	timer     clockwork.Timer
	cancelRun context.CancelFunc
	closed    bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Job and starts its worker. Close must be called to release
// the worker goroutine.
func New(name string, run RunFunc, opts ...Option) *Job {
	j := &Job{
		name:  name,
		run:   run,
		clock: clockwork.NewRealClock(),
		log:   zap.NewNop(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.log = j.log.With(zap.String("job", name))

	j.wg.Add(1)
	go j.loop()
	return j
}

// Name returns the job's name.
func (j *Job) Name() string {
	return j.name
}

// State reports the current state. A pending task takes precedence over a
// run in flight.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.pending != StateNone {
		return j.pending
	}
	if j.running {
		return StateRunning
	}
	return StateNone
}

// Pending reports whether a task is sleeping or waiting for the worker.
func (j *Job) Pending() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pending != StateNone
}

// Schedule replaces any pending task with a new one that fires after delay.
// A run in flight is cancelled; the new run starts once it has returned.
// A delay <= 0 hands the task to the worker immediately.
func (j *Job) Schedule(delay time.Duration) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	j.cancelLocked()

	gen := j.gen
	if delay <= 0 {
		j.pending = StateWaiting
		j.signal()
		return nil
	}
	j.pending = StateSleeping
	j.timer = j.clock.AfterFunc(delay, func() { j.fire(gen) })
	return nil
}

// Cancel drops the pending task and cancels a run in flight. A task that has
// not started yet will never start.
func (j *Job) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelLocked()
}

// cancelLocked invalidates every outstanding timer callback by bumping the
// generation. j.mu must be held.
func (j *Job) cancelLocked() {
	j.gen++
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	j.pending = StateNone
	if j.cancelRun != nil {
		j.cancelRun()
	}
}

// Close cancels all work, stops the worker and waits for it to exit. It must
// not be called from inside the job's own RunFunc.
func (j *Job) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	j.cancelLocked()
	close(j.done)
	j.mu.Unlock()

	j.wg.Wait()
}

func (j *Job) fire(gen uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if gen != j.gen || j.pending != StateSleeping {
		return
	}
	j.timer = nil
	j.pending = StateWaiting
	j.signal()
}

// signal wakes the worker without blocking. One buffered token is enough:
// the worker reads the slot state under the lock.
func (j *Job) signal() {
	select {
	case j.wake <- struct{}{}:
	default:
	}
}

func (j *Job) loop() {
	defer j.wg.Done()
	for {
		select {
		case <-j.done:
			return
		case <-j.wake:
		}

		j.mu.Lock()
		if j.closed || j.pending != StateWaiting {
			j.mu.Unlock()
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		j.pending = StateNone
		j.running = true
		j.cancelRun = cancel
		j.mu.Unlock()

		err := j.execute(ctx)
		cancel()

		j.mu.Lock()
		j.running = false
		j.cancelRun = nil
		j.mu.Unlock()

		if err != nil && !errors.Is(err, context.Canceled) {
			j.log.Warn("run failed", zap.Error(err))
		}
	}
}

// execute runs the job's RunFunc, converting a panic into an error so that
// one misbehaving run cannot take the worker down.
func (j *Job) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s: panic: %v", j.name, r)
			j.log.Error("run panicked", zap.Any("panic", r))
		}
	}()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return j.run(ctx)
}
