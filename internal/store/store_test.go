package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/reconciler/internal/diag"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestBuffer upserts a buffer and returns it with ID set.
func insertTestBuffer(t *testing.T, s *Store, name string) *Buffer {
	t.Helper()
	b := &Buffer{Name: name, Language: "go", Hash: ContentHash(name), Version: 1, LastReconciled: time.Now().UTC().Truncate(time.Second)}
	id, err := s.UpsertBuffer(b)
	require.NoError(t, err)
	require.Positive(t, id)
	return b
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"buffers", "symbols", "diagnostics", "runs", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

func TestOpen_InvalidPath(t *testing.T) {
	t.Parallel()
	_, err := Open("/nonexistent/dir/db.sqlite")
	require.Error(t, err)
}

// =============================================================================
// Buffers
// =============================================================================

func TestBuffer_UpsertAndRetrieve(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	b := insertTestBuffer(t, s, "main.go")

	got, err := s.BufferByName("main.go")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, "go", got.Language)
	assert.Equal(t, b.Hash, got.Hash)
	assert.True(t, b.LastReconciled.Equal(got.LastReconciled))

	// Upsert with the same name updates in place.
	b2 := &Buffer{Name: "main.go", Language: "go", Hash: "changed", Version: 7}
	id, err := s.UpsertBuffer(b2)
	require.NoError(t, err)
	assert.Equal(t, b.ID, id)

	got, err = s.BufferByName("main.go")
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Hash)
	assert.Equal(t, int64(7), got.Version)
}

func TestBuffer_ByNameNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.BufferByName("missing.go")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBuffer_EnsureIsStable(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	id1, err := s.EnsureBuffer("a.py")
	require.NoError(t, err)
	id2, err := s.EnsureBuffer("a.py")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestDeleteBuffer(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	b := insertTestBuffer(t, s, "main.go")
	require.NoError(t, s.ReplaceSymbols(b.ID, []*Symbol{{Name: "main", Kind: "function"}}))
	require.NoError(t, s.ReplaceDiagnostics(b.ID, "syntax", []diag.Diagnostic{{Severity: diag.SeverityError, Line: 1, Col: 1, Message: "x"}}))

	require.NoError(t, s.DeleteBuffer(b.ID))

	syms, err := s.SymbolsByBuffer(b.ID)
	require.NoError(t, err)
	assert.Empty(t, syms)
	diags, err := s.DiagnosticsByBuffer(b.ID)
	require.NoError(t, err)
	assert.Empty(t, diags)
	got, err := s.BufferByName("main.go")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// Symbols
// =============================================================================

func TestSymbols_ReplaceAndQuery(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	b := insertTestBuffer(t, s, "main.go")

	first := []*Symbol{
		{Name: "Run", Kind: "function", Modifiers: []string{"exported"}, StartLine: 10, EndLine: 20},
		{Name: "config", Kind: "type", StartLine: 2, EndLine: 5},
	}
	require.NoError(t, s.ReplaceSymbols(b.ID, first))
	for _, sym := range first {
		assert.Positive(t, sym.ID)
		assert.NotEmpty(t, sym.SignatureHash)
	}

	syms, err := s.SymbolsByBuffer(b.ID)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "config", syms[0].Name, "ordered by position")
	assert.Equal(t, "Run", syms[1].Name)
	assert.Equal(t, []string{"exported"}, syms[1].Modifiers)
	assert.Nil(t, syms[0].Modifiers)

	// A second replace drops the old rows.
	require.NoError(t, s.ReplaceSymbols(b.ID, []*Symbol{{Name: "New", Kind: "function"}}))
	syms, err = s.SymbolsByBuffer(b.ID)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "New", syms[0].Name)
}

func TestSymbols_ByNameAcrossBuffers(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a := insertTestBuffer(t, s, "a.go")
	b := insertTestBuffer(t, s, "b.go")
	require.NoError(t, s.ReplaceSymbols(a.ID, []*Symbol{{Name: "Helper", Kind: "function"}}))
	require.NoError(t, s.ReplaceSymbols(b.ID, []*Symbol{{Name: "Helper", Kind: "function"}, {Name: "Other", Kind: "function"}}))

	syms, err := s.SymbolsByName("Helper")
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, a.ID, syms[0].BufferID)
	assert.Equal(t, b.ID, syms[1].BufferID)
}

// =============================================================================
// Diagnostics
// =============================================================================

func TestPublish_ReplacesPerSource(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Publish(ctx, "syntax", "main.go", []diag.Diagnostic{
		{Source: "syntax", Severity: diag.SeverityError, Line: 4, Col: 2, Message: "syntax error"},
	}))
	require.NoError(t, s.Publish(ctx, "script", "main.go", []diag.Diagnostic{
		{Source: "script", Severity: diag.SeverityWarning, Line: 1, Col: 1, Code: "todo", Message: "TODO left in code"},
	}))

	b, err := s.BufferByName("main.go")
	require.NoError(t, err)
	require.NotNil(t, b, "publish creates the buffer row")

	diags, err := s.DiagnosticsByBuffer(b.ID)
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, "script", diags[0].Source)
	assert.Equal(t, "todo", diags[0].Code)
	assert.Equal(t, diag.SeverityWarning, diags[0].Severity)
	assert.Equal(t, diag.SeverityError, diags[1].Severity)

	// An empty publish clears only that source.
	require.NoError(t, s.Publish(ctx, "syntax", "main.go", nil))
	diags, err = s.DiagnosticsByBuffer(b.ID)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "script", diags[0].Source)
}

// =============================================================================
// Runs & Metadata
// =============================================================================

func TestRuns_InsertAndRecent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, buf := range []string{"a.go", "b.go", "a.go"} {
		require.NoError(t, s.InsertRun(&Run{
			ID:         "run-" + string(rune('1'+i)),
			Buffer:     buf,
			Outcome:    "completed",
			Strategies: 2,
			StartedAt:  base.Add(time.Duration(i) * time.Second),
			Duration:   15 * time.Millisecond,
		}))
	}
	require.NoError(t, s.InsertRun(&Run{ID: "run-4", Buffer: "b.go", Outcome: "failed", StartedAt: base.Add(time.Minute), Error: "boom"}))

	runs, err := s.RecentRuns("", 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].ID)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Equal(t, "run-3", runs[1].ID)
	assert.Equal(t, 15*time.Millisecond, runs[1].Duration)
	assert.True(t, base.Add(2*time.Second).Equal(runs[1].StartedAt))

	runs, err = s.RecentRuns("a.go", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-1", runs[1].ID)
}

func TestMetadata_SetAndGet(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("scripts_hash")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMetadata("scripts_hash", "abc"))
	require.NoError(t, s.SetMetadata("scripts_hash", "def"))
	v, err = s.GetMetadata("scripts_hash")
	require.NoError(t, err)
	assert.Equal(t, "def", v)
}

// =============================================================================
// Hashes
// =============================================================================

func TestContentHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ContentHash("x"), ContentHash("x"))
	assert.NotEqual(t, ContentHash("x"), ContentHash("y"))
	assert.Len(t, ContentHash(""), 64)
}

func TestSignatureHash_Deterministic(t *testing.T) {
	t.Parallel()
	h1 := ComputeSignatureHash("Foo", "function", []string{"exported", "method"})
	h2 := ComputeSignatureHash("Foo", "function", []string{"method", "exported"})
	assert.Equal(t, h1, h2, "modifier order must not matter")
	assert.NotEmpty(t, h1)
}

func TestSignatureHash_ChangeName(t *testing.T) {
	t.Parallel()
	h1 := ComputeSignatureHash("Foo", "function", nil)
	h2 := ComputeSignatureHash("Bar", "function", nil)
	assert.NotEqual(t, h1, h2)
}

func TestSignatureHash_ChangeKind(t *testing.T) {
	t.Parallel()
	h1 := ComputeSignatureHash("Foo", "function", nil)
	h2 := ComputeSignatureHash("Foo", "type", nil)
	assert.NotEqual(t, h1, h2)
}
