package reconciler

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
)

// Buffer is the text a Reconciler is bound to. *text.Document implements it.
type Buffer interface {
	Len() int
	Get() string
	Subscribe(l Listener) (unsubscribe func())
}

// Input identifies where a buffer came from, such as the file an editor
// opened. Strategies that implement InputAwareStrategy are bound to it.
type Input interface {
	Name() string
}

// Editor supplies the Input of an editor-owned buffer. The Input may be nil
// while the editor has not resolved it yet.
type Editor interface {
	Input() Input
}

// Strategy analyses a buffer. Reconcile is the regular pass; it receives the
// region to analyse, which is always the whole buffer.
type Strategy interface {
	SetBuffer(b Buffer)
	Reconcile(ctx context.Context, r Region) error
}

// ExtendedStrategy is a Strategy with a one-time initial pass. The first
// cycle after a buffer is bound calls InitialReconcile instead of Reconcile.
// ctx is the cycle's cancellation token and may be polled during the pass.
type ExtendedStrategy interface {
	Strategy
	InitialReconcile(ctx context.Context) error
}

// InputAwareStrategy is bound to the buffer's Input instead of the Buffer
// whenever an Input is available.
type InputAwareStrategy interface {
	Strategy
	SetInput(in Input)
}

// Handle identifies a registered strategy.
type Handle int

var (
	// ErrNilStrategy is returned when registering a nil strategy.
	ErrNilStrategy = errors.New("reconciler: nil strategy")
	// ErrUncomparableStrategy is returned for strategy values that cannot be
	// compared for identity, such as structs holding slices passed by value.
	ErrUncomparableStrategy = errors.New("reconciler: strategy type is not comparable")
)

// StrategyInfo is what a Gate sees about the strategy it decides on.
type StrategyInfo struct {
	Handle      Handle
	Strategy    Strategy
	Initialized bool
	HostVisible bool
}

// Gate decides whether a strategy takes part in the current cycle. A gate
// that declines skips the strategy; the cycle continues with the next one.
type Gate func(info StrategyInfo) bool

// AlwaysRun is the default Gate.
func AlwaysRun(StrategyInfo) bool { return true }

// WhenVisible lets strategies run only while the host is visible.
func WhenVisible(info StrategyInfo) bool { return info.HostVisible }

// entry wraps a registered strategy with its optional capabilities.
type entry struct {
	handle     Handle
	strategy   Strategy
	extended   ExtendedStrategy
	inputAware InputAwareStrategy

	// locker serializes cycles touching the strategy. It is the strategy
	// itself when it implements sync.Locker, so that reconcilers sharing one
	// strategy instance exclude each other.
	locker      sync.Locker
	mu          sync.Mutex
	initialized atomic.Bool
}

func newEntry(h Handle, s Strategy) *entry {
	e := &entry{handle: h, strategy: s}
	e.extended, _ = s.(ExtendedStrategy)
	e.inputAware, _ = s.(InputAwareStrategy)
	if l, ok := s.(sync.Locker); ok {
		e.locker = l
	} else {
		e.locker = &e.mu
	}
	return e
}

// registry is the insertion-ordered set of strategies, keyed by identity.
type registry struct {
	mu      sync.Mutex
	entries []*entry
	byKey   map[Strategy]*entry
}

func (r *registry) add(s Strategy) (Handle, error) {
	if s == nil {
		return 0, ErrNilStrategy
	}
	if !reflect.TypeOf(s).Comparable() {
		return 0, ErrUncomparableStrategy
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byKey == nil {
		r.byKey = make(map[Strategy]*entry)
	}
	if e, ok := r.byKey[s]; ok {
		return e.handle, nil
	}
	e := newEntry(Handle(len(r.entries)+1), s)
	r.entries = append(r.entries, e)
	r.byKey[s] = e
	return e.handle, nil
}

// snapshot returns the entries in registration order. Strategies added
// while a cycle iterates the snapshot join from the next cycle on.
func (r *registry) snapshot() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *registry) lookup(h Handle) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := int(h) - 1
	if i < 0 || i >= len(r.entries) {
		return nil, false
	}
	return r.entries[i], true
}

// resetInitialized forgets every strategy's initial pass, so the next cycle
// starts with InitialReconcile again.
func (r *registry) resetInitialized() {
	for _, e := range r.snapshot() {
		e.initialized.Store(false)
	}
}

// sameIdentity reports whether a and b are the same comparable value.
// Values of uncomparable types are never identical.
func sameIdentity(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
