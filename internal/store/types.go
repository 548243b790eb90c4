package store

import "time"

// Buffer is a reconciled buffer, identified by its input name.
type Buffer struct {
	ID             int64
	Name           string
	Language       string
	Hash           string
	Version        int64
	LastReconciled time.Time
}

// Symbol is a top-level declaration found by the outline strategy.
// Lines and columns are 0-based, as tree-sitter reports them.
type Symbol struct {
	ID            int64
	BufferID      int64
	Name          string
	Kind          string
	Modifiers     []string
	SignatureHash string
	StartLine     int
	StartCol      int
	EndLine       int
	EndCol        int
}

// Run is the persisted outcome of one reconcile cycle.
type Run struct {
	ID         string
	Buffer     string
	Outcome    string
	Strategies int
	StartedAt  time.Time
	Duration   time.Duration
	Error      string
}
