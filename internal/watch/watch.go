// Package watch keeps a text.Document in sync with a file on disk.
//
// A FileBuffer is both the reconciler's Buffer source and its Input: its name
// is the file path. Every write to the file replaces the document content in
// one edit, so bursts of writes are coalesced by the reconciler's own delay.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jward/reconciler"
	"github.com/jward/reconciler/internal/text"
)

// FileBuffer binds a Document to a file.
type FileBuffer struct {
	path    string
	doc     *text.Document
	log     *zap.Logger
	fsw     *fsnotify.Watcher
	started atomic.Bool
	reloads atomic.Uint64
}

// Option configures a FileBuffer.
type Option func(*FileBuffer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *FileBuffer) {
		if l != nil {
			f.log = l
		}
	}
}

// New creates a FileBuffer for path and starts watching the file's
// directory. The document is empty until Load is called.
func New(path string, opts ...Option) (*FileBuffer, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", path, err)
	}
	f := &FileBuffer{path: abs, doc: text.NewDocument(""), log: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	// Watch the directory so editors that replace the file by rename are
	// still followed.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch: watch %s: %w", filepath.Dir(abs), err)
	}
	f.fsw = fsw
	return f, nil
}

// Name implements reconciler.Input. It is the absolute file path.
func (f *FileBuffer) Name() string { return f.path }

// Buffer returns the document as a reconciler.Buffer.
func (f *FileBuffer) Buffer() reconciler.Buffer { return f.doc }

// Document returns the document kept in sync with the file.
func (f *FileBuffer) Document() *text.Document { return f.doc }

// Reloads returns how many times the file content replaced the document.
func (f *FileBuffer) Reloads() uint64 { return f.reloads.Load() }

// Load reads the file into the document. Content equal to the document's
// leaves it untouched, so no edit event is sent.
func (f *FileBuffer) Load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("watch: read %s: %w", f.path, err)
	}
	if string(data) == f.doc.Get() {
		return nil
	}
	f.doc.Set(string(data))
	f.reloads.Add(1)
	return nil
}

// Run reloads the document whenever the file is written or recreated, until
// ctx is cancelled. It returns nil on cancellation. Run may be called once;
// it closes the watcher when it returns.
func (f *FileBuffer) Run(ctx context.Context) error {
	if !f.started.CompareAndSwap(false, true) {
		return fmt.Errorf("watch: Run called more than once")
	}
	defer f.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-f.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
					f.log.Debug("watch: file went away", zap.String("path", f.path), zap.Stringer("op", ev.Op))
				}
				continue
			}
			if err := f.Load(); err != nil {
				// The file may be mid-replace; the following Create retries.
				f.log.Debug("watch: reload failed", zap.Error(err))
				continue
			}
			f.log.Debug("watch: reloaded", zap.String("path", f.path), zap.Int("len", f.doc.Len()))
		case err, ok := <-f.fsw.Errors:
			if !ok {
				return nil
			}
			f.log.Warn("watch: fsnotify error", zap.Error(err))
		}
	}
}

// Close stops watching. It is only needed when Run was never started.
func (f *FileBuffer) Close() error {
	if f.started.Load() {
		return nil
	}
	return f.fsw.Close()
}
