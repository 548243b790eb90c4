// Package strategies holds the analysis strategies the reconciler command
// registers: tree-sitter syntax checking, outline extraction into the store,
// and Risor check scripts.
package strategies

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jward/reconciler"
	"github.com/jward/reconciler/internal/runtime"
)

// ErrNoBuffer is returned by a pass when the strategy is bound to an Input
// that does not supply a buffer.
var ErrNoBuffer = errors.New("strategies: input has no buffer")

// BufferInput is an Input that can hand out the buffer it was opened into.
// Strategies bound to such an input read the text through it.
type BufferInput interface {
	reconciler.Input
	Buffer() reconciler.Buffer
}

// binding tracks what the dispatch loop bound a strategy to. All three
// strategies are input-aware, so they receive SetInput when an input exists
// and SetBuffer otherwise.
type binding struct {
	mu  sync.Mutex
	buf reconciler.Buffer
	in  reconciler.Input

	// onBuffer is called with the new buffer whenever it changes.
	onBuffer func(old, cur reconciler.Buffer)
}

// SetBuffer implements reconciler.Strategy. It drops any bound input.
func (b *binding) SetBuffer(buf reconciler.Buffer) {
	b.mu.Lock()
	b.in = nil
	b.mu.Unlock()
	b.setBuffer(buf)
}

// SetInput implements reconciler.InputAwareStrategy. An input that is not a
// BufferInput leaves the strategy without a buffer; its passes then fail
// with ErrNoBuffer.
func (b *binding) SetInput(in reconciler.Input) {
	b.mu.Lock()
	b.in = in
	b.mu.Unlock()
	var buf reconciler.Buffer
	if bi, ok := in.(BufferInput); ok {
		buf = bi.Buffer()
	}
	b.setBuffer(buf)
}

func (b *binding) setBuffer(buf reconciler.Buffer) {
	b.mu.Lock()
	old := b.buf
	b.buf = buf
	fn := b.onBuffer
	b.mu.Unlock()
	if old != buf && fn != nil {
		fn(old, buf)
	}
}

// resolve returns the buffer a pass works on. It is nil with a nil error
// when nothing is bound.
func (b *binding) resolve() (reconciler.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf == nil && b.in != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBuffer, b.in.Name())
	}
	return b.buf, nil
}

// inputName returns the bound input's name, or "" without an input.
func (b *binding) inputName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.in == nil {
		return ""
	}
	return b.in.Name()
}

// language resolves the language to analyse: the fixed one when set,
// otherwise the one matching the input name's extension.
func (b *binding) language(fixed string) (string, bool) {
	if fixed != "" {
		_, ok := runtime.ParserForLanguage(fixed)
		return fixed, ok
	}
	return runtime.LanguageForFile(b.inputName())
}

// snapshotter is implemented by buffers that can return their content and
// version atomically, such as *text.Document.
type snapshotter interface {
	Snapshot() (string, uint64)
}

// readBuffer returns the buffer text and, when the buffer supports it, the
// version that text belongs to.
func readBuffer(buf reconciler.Buffer) (src string, version uint64, versioned bool) {
	if s, ok := buf.(snapshotter); ok {
		src, version = s.Snapshot()
		return src, version, true
	}
	return buf.Get(), 0, false
}
