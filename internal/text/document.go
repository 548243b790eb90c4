// Package text provides the editable buffer reconcilers are bound to.
package text

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrOutOfRange is returned when a replacement does not fit the document.
var ErrOutOfRange = errors.New("text: offset out of range")

// Region is a half-open byte range [Offset, Offset+Length).
type Region struct {
	Offset int
	Length int
}

// End returns the first offset after the region.
func (r Region) End() int {
	return r.Offset + r.Length
}

func (r Region) String() string {
	return fmt.Sprintf("[%d,%d)", r.Offset, r.End())
}

// Point is a zero-based row and byte column.
type Point struct {
	Row    uint32
	Column uint32
}

// Event describes a single replacement applied to a Document.
type Event struct {
	Offset  int    // start of the replaced range
	Length  int    // number of bytes removed
	Text    string // inserted text
	Version uint64 // document version after the change

	StartByte   uint32
	OldEndByte  uint32
	NewEndByte  uint32
	StartPoint  Point
	OldEndPoint Point
	NewEndPoint Point
}

// Listener receives change events. It is called on the goroutine that
// edited the document, after the edit has been applied, and must not block.
type Listener func(Event)

// Document is an in-memory text buffer that notifies listeners of edits.
// It is safe for concurrent use.
type Document struct {
	mu      sync.RWMutex
	content string
	version uint64

	lmu       sync.Mutex
	listeners map[int]Listener
	order     []int
	nextID    int
}

// NewDocument returns a Document holding content at version 0.
func NewDocument(content string) *Document {
	return &Document{
		content:   content,
		listeners: make(map[int]Listener),
	}
}

// Get returns the current content.
func (d *Document) Get() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.content
}

// Len returns the content length in bytes.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.content)
}

// Version returns a counter incremented by every edit.
func (d *Document) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Snapshot returns the content together with the version it belongs to.
func (d *Document) Snapshot() (string, uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.content, d.version
}

// Replace substitutes length bytes at offset with text.
func (d *Document) Replace(offset, length int, text string) error {
	d.mu.Lock()
	if offset < 0 || length < 0 || offset+length > len(d.content) {
		n := len(d.content)
		d.mu.Unlock()
		return fmt.Errorf("%w: replace [%d,%d) in document of length %d", ErrOutOfRange, offset, offset+length, n)
	}
	ev := d.replaceLocked(offset, length, text)
	d.mu.Unlock()

	d.notify(ev)
	return nil
}

// Set replaces the whole content.
func (d *Document) Set(content string) {
	d.mu.Lock()
	ev := d.replaceLocked(0, len(d.content), content)
	d.mu.Unlock()

	d.notify(ev)
}

func (d *Document) replaceLocked(offset, length int, text string) Event {
	old := d.content
	d.content = old[:offset] + text + old[offset+length:]
	d.version++
	return Event{
		Offset:      offset,
		Length:      length,
		Text:        text,
		Version:     d.version,
		StartByte:   uint32(offset),
		OldEndByte:  uint32(offset + length),
		NewEndByte:  uint32(offset + len(text)),
		StartPoint:  PointAt(old, offset),
		OldEndPoint: PointAt(old, offset+length),
		NewEndPoint: PointAt(d.content, offset+len(text)),
	}
}

// Subscribe registers l and returns a function that removes it. The
// returned function is safe to call more than once.
func (d *Document) Subscribe(l Listener) (unsubscribe func()) {
	d.lmu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = l
	d.order = append(d.order, id)
	d.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.lmu.Lock()
			defer d.lmu.Unlock()
			delete(d.listeners, id)
			for i, v := range d.order {
				if v == id {
					d.order = append(d.order[:i], d.order[i+1:]...)
					break
				}
			}
		})
	}
}

// notify delivers ev to a snapshot of the listeners in subscription order.
func (d *Document) notify(ev Event) {
	d.lmu.Lock()
	ls := make([]Listener, 0, len(d.order))
	for _, id := range d.order {
		ls = append(ls, d.listeners[id])
	}
	d.lmu.Unlock()

	for _, l := range ls {
		l(ev)
	}
}

// PointAt converts a byte offset in s into a row/column point.
func PointAt(s string, offset int) Point {
	if offset > len(s) {
		offset = len(s)
	}
	prefix := s[:offset]
	row := strings.Count(prefix, "\n")
	col := offset
	if i := strings.LastIndexByte(prefix, '\n'); i >= 0 {
		col = offset - i - 1
	}
	return Point{Row: uint32(row), Column: uint32(col)}
}
