package reconciler

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jward/reconciler/internal/job"
)

// DefaultDelay is the debounce delay used when none is configured.
const DefaultDelay = 500 * time.Millisecond

// ErrNilBuffer is returned by Install when no buffer is given.
var ErrNilBuffer = errors.New("reconciler: nil buffer")

// Reconciler re-runs its strategies over a buffer once edits have been quiet
// for the configured delay. Edits arriving while a cycle runs cancel it; the
// next cycle starts after the cancelled one has returned.
type Reconciler struct {
	log              *zap.Logger
	clock            clockwork.Clock
	editor           Editor
	gate             Gate
	aboutToReconcile func()
	bufferChanged    func(old, cur Buffer)
	cycleHook        func(CycleResult)

	delay   atomic.Int64
	visible atomic.Bool

	strategies registry
	stats      stats

	// bindMu serializes Install, BindBuffer and Uninstall. It is never held
	// by a cycle.
	bindMu sync.Mutex
	// schedMu makes the about-to-reconcile check and the reschedule atomic.
	schedMu sync.Mutex

	mu          sync.Mutex
	buffer      Buffer
	input       Input
	unsubscribe func()
	job         *job.Job
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithDelay sets the debounce delay. Non-positive delays run cycles as soon
// as the worker is free.
func WithDelay(d time.Duration) Option {
	return func(r *Reconciler) {
		r.delay.Store(int64(max(d, 0)))
	}
}

// WithEditor attaches the reconciler to an editor. Cycles are skipped while
// the editor has no Input.
func WithEditor(e Editor) Option {
	return func(r *Reconciler) {
		r.editor = e
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock replaces the wall clock driving delays and cycle timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(r *Reconciler) {
		r.clock = c
	}
}

// WithGate sets the per-strategy gate consulted before each strategy runs.
func WithGate(g Gate) Option {
	return func(r *Reconciler) {
		if g != nil {
			r.gate = g
		}
	}
}

// WithHostVisible sets the initial host visibility. The default is visible.
func WithHostVisible(visible bool) Option {
	return func(r *Reconciler) {
		r.visible.Store(visible)
	}
}

// WithAboutToReconcile registers fn to be called when a cycle is scheduled
// while none is pending. It runs on the goroutine that triggered the
// schedule and must not block.
func WithAboutToReconcile(fn func()) Option {
	return func(r *Reconciler) {
		r.aboutToReconcile = fn
	}
}

// WithBufferChanged registers fn to be called whenever the bound buffer
// changes, with the previous and the new buffer. Either may be nil.
func WithBufferChanged(fn func(old, cur Buffer)) Option {
	return func(r *Reconciler) {
		r.bufferChanged = fn
	}
}

// WithCycleHook registers fn to receive the result of every cycle. It runs on
// the worker goroutine.
func WithCycleHook(fn func(CycleResult)) Option {
	return func(r *Reconciler) {
		r.cycleHook = fn
	}
}

// New creates an unattached Reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		log:   zap.NewNop(),
		clock: clockwork.NewRealClock(),
		gate:  AlwaysRun,
	}
	r.delay.Store(int64(DefaultDelay))
	r.visible.Store(true)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddStrategy registers s. Strategies run in registration order. Adding a
// strategy that is already registered returns its existing Handle.
func (r *Reconciler) AddStrategy(s Strategy) (Handle, error) {
	h, err := r.strategies.add(s)
	if err != nil {
		return 0, err
	}
	r.log.Debug("strategy added", zap.Int("handle", int(h)), zap.String("type", fmt.Sprintf("%T", s)))
	return h, nil
}

// Strategies returns the registered strategies in registration order.
func (r *Reconciler) Strategies() []Strategy {
	entries := r.strategies.snapshot()
	out := make([]Strategy, len(entries))
	for i, e := range entries {
		out[i] = e.strategy
	}
	return out
}

// Initialized reports whether the strategy behind h has completed its
// initial pass on the current buffer.
func (r *Reconciler) Initialized(h Handle) bool {
	e, ok := r.strategies.lookup(h)
	return ok && e.initialized.Load()
}

// Install binds the reconciler to buf and schedules an initial cycle without
// delay. in may be nil; with an Editor configured it is then taken from the
// editor.
func (r *Reconciler) Install(buf Buffer, in Input) error {
	if buf == nil {
		return ErrNilBuffer
	}
	r.BindBuffer(buf, in)
	return nil
}

// BindBuffer switches the reconciler to buf. Binding the buffer that is
// already bound does nothing. Otherwise the old buffer's listener and worker
// are torn down first, every strategy's initial pass is reset and, if buf is
// non-nil, a cycle is scheduled without delay. A nil buf only detaches.
func (r *Reconciler) BindBuffer(buf Buffer, in Input) {
	r.bindMu.Lock()
	defer r.bindMu.Unlock()

	r.mu.Lock()
	old := r.buffer
	r.mu.Unlock()
	if old != nil && sameIdentity(old, buf) {
		return
	}

	r.disconnect()
	if r.bufferChanged != nil && (old != nil || buf != nil) {
		r.bufferChanged(old, buf)
	}
	if buf == nil {
		return
	}
	r.connect(buf, in)
}

// Uninstall detaches from the bound buffer and stops the worker. No cycle
// runs afterwards until the reconciler is installed again. It is safe to call
// on a reconciler that was never installed.
func (r *Reconciler) Uninstall() {
	r.BindBuffer(nil, nil)
}

func (r *Reconciler) connect(buf Buffer, in Input) {
	if in == nil && r.editor != nil {
		in = r.editor.Input()
	}
	r.strategies.resetInitialized()

	r.mu.Lock()
	r.buffer = buf
	r.input = in
	name := r.nameLocked()
	j := job.New(name, r.run, job.WithClock(r.clock), job.WithLogger(r.log))
	r.job = j
	r.mu.Unlock()

	unsub := buf.Subscribe(func(Event) { r.OnBufferChanged() })
	r.mu.Lock()
	r.unsubscribe = unsub
	r.mu.Unlock()

	r.log.Debug("buffer bound", zap.String("reconciler", name), zap.Int("len", buf.Len()))
	r.schedule(j, 0)
}

// disconnect removes the listener, then stops the worker. Closing the job
// waits for a cycle in flight, so r.mu must not be held.
func (r *Reconciler) disconnect() {
	r.mu.Lock()
	unsub, j := r.unsubscribe, r.job
	r.buffer, r.input, r.unsubscribe, r.job = nil, nil, nil, nil
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if j != nil {
		j.Close()
		r.log.Debug("buffer unbound", zap.String("job", j.Name()))
	}
}

// OnBufferChanged reschedules the cycle after the current delay, replacing a
// pending one and cancelling one in flight. The bound buffer calls it on
// every edit; hosts may call it to force a re-run.
func (r *Reconciler) OnBufferChanged() {
	r.mu.Lock()
	j := r.job
	r.mu.Unlock()
	if j == nil {
		return
	}
	r.schedule(j, r.Delay())
}

func (r *Reconciler) schedule(j *job.Job, delay time.Duration) {
	r.schedMu.Lock()
	defer r.schedMu.Unlock()

	if !j.Pending() && r.aboutToReconcile != nil {
		r.aboutToReconcile()
	}
	if err := j.Schedule(delay); err != nil {
		// Lost a race with disconnect; the old job is gone for good.
		r.log.Debug("schedule dropped", zap.String("job", j.Name()), zap.Error(err))
		return
	}
	r.stats.scheduled.Add(1)
}

// SetDelay changes the debounce delay. It applies to the next schedule.
func (r *Reconciler) SetDelay(d time.Duration) {
	r.delay.Store(int64(max(d, 0)))
}

// Delay returns the debounce delay.
func (r *Reconciler) Delay() time.Duration {
	return time.Duration(r.delay.Load())
}

// SetHostVisible records whether the host showing the buffer is visible.
func (r *Reconciler) SetHostVisible(visible bool) {
	if r.visible.Swap(visible) != visible {
		r.log.Debug("visibility changed", zap.Bool("visible", visible))
	}
}

// IsHostVisible reports the last visibility recorded by SetHostVisible.
func (r *Reconciler) IsHostVisible() bool {
	return r.visible.Load()
}

// Buffer returns the bound buffer, or nil.
func (r *Reconciler) Buffer() Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffer
}

// Name returns "Reconciler '<input>'", with "-" standing in for a missing
// input.
func (r *Reconciler) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nameLocked()
}

func (r *Reconciler) nameLocked() string {
	label := "-"
	if r.input != nil {
		label = r.input.Name()
	}
	return "Reconciler '" + label + "'"
}

// Stats returns a snapshot of the reconciler's counters.
func (r *Reconciler) Stats() Stats {
	return r.stats.snapshot()
}
