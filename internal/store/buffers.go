package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// --- Buffer operations ---

// UpsertBuffer inserts b or updates the row with the same name, and sets
// b.ID.
func (s *Store) UpsertBuffer(b *Buffer) (int64, error) {
	err := s.db.QueryRow(
		`INSERT INTO buffers (name, language, hash, version, last_reconciled) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   language = excluded.language,
		   hash = excluded.hash,
		   version = excluded.version,
		   last_reconciled = excluded.last_reconciled
		 RETURNING id`,
		b.Name, b.Language, b.Hash, b.Version, nullTime(b.LastReconciled),
	).Scan(&b.ID)
	if err != nil {
		return 0, fmt.Errorf("upsert buffer: %w", err)
	}
	return b.ID, nil
}

// EnsureBuffer returns the ID of the buffer called name, creating an empty
// row when there is none.
func (s *Store) EnsureBuffer(name string) (int64, error) {
	return ensureBufferTx(s.db, name)
}

type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func ensureBufferTx(q queryer, name string) (int64, error) {
	if _, err := q.Exec("INSERT OR IGNORE INTO buffers (name) VALUES (?)", name); err != nil {
		return 0, fmt.Errorf("ensure buffer: %w", err)
	}
	var id int64
	if err := q.QueryRow("SELECT id FROM buffers WHERE name = ?", name).Scan(&id); err != nil {
		return 0, fmt.Errorf("ensure buffer: %w", err)
	}
	return id, nil
}

// BufferByName returns the buffer called name, or nil when there is none.
func (s *Store) BufferByName(name string) (*Buffer, error) {
	b := &Buffer{}
	var last sql.NullTime
	err := s.db.QueryRow(
		"SELECT id, name, language, hash, version, last_reconciled FROM buffers WHERE name = ?", name,
	).Scan(&b.ID, &b.Name, &b.Language, &b.Hash, &b.Version, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("buffer by name: %w", err)
	}
	b.LastReconciled = last.Time
	return b, nil
}

// DeleteBuffer transactionally removes a buffer with its symbols and
// diagnostics.
func (s *Store) DeleteBuffer(bufferID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM symbols WHERE buffer_id = ?",
		"DELETE FROM diagnostics WHERE buffer_id = ?",
		"DELETE FROM buffers WHERE id = ?",
	} {
		if _, err := tx.Exec(q, bufferID); err != nil {
			return fmt.Errorf("delete buffer data: %w", err)
		}
	}
	return tx.Commit()
}

// --- Symbol operations ---

// ReplaceSymbols swaps the buffer's symbols for syms in one transaction and
// sets their IDs.
func (s *Store) ReplaceSymbols(bufferID int64, syms []*Symbol) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace symbols: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM symbols WHERE buffer_id = ?", bufferID); err != nil {
		return fmt.Errorf("replace symbols: delete: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO symbols (buffer_id, name, kind, modifiers, signature_hash,
			start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("replace symbols: prepare: %w", err)
	}
	defer stmt.Close()

	for _, sym := range syms {
		sym.BufferID = bufferID
		if sym.SignatureHash == "" {
			sym.SignatureHash = ComputeSignatureHash(sym.Name, sym.Kind, sym.Modifiers)
		}
		res, err := stmt.Exec(
			bufferID, sym.Name, sym.Kind, marshalModifiers(sym.Modifiers), sym.SignatureHash,
			sym.StartLine, sym.StartCol, sym.EndLine, sym.EndCol,
		)
		if err != nil {
			return fmt.Errorf("replace symbols: symbol %q: %w", sym.Name, err)
		}
		if sym.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("replace symbols: last insert id: %w", err)
		}
	}
	return tx.Commit()
}

const symbolCols = `id, buffer_id, name, kind, modifiers, signature_hash,
	start_line, start_col, end_line, end_col`

func scanSymbol(scanner interface{ Scan(...any) error }) (*Symbol, error) {
	sym := &Symbol{}
	var mods, hash sql.NullString
	err := scanner.Scan(
		&sym.ID, &sym.BufferID, &sym.Name, &sym.Kind, &mods, &hash,
		&sym.StartLine, &sym.StartCol, &sym.EndLine, &sym.EndCol,
	)
	if err != nil {
		return nil, err
	}
	sym.Modifiers = unmarshalModifiers(mods.String)
	sym.SignatureHash = hash.String
	return sym, nil
}

func (s *Store) querySymbols(query string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var symbols []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// SymbolsByBuffer returns the buffer's symbols in source order.
func (s *Store) SymbolsByBuffer(bufferID int64) ([]*Symbol, error) {
	return s.querySymbols("SELECT "+symbolCols+" FROM symbols WHERE buffer_id = ? ORDER BY start_line, start_col", bufferID)
}

// SymbolsByName returns symbols called name across all buffers.
func (s *Store) SymbolsByName(name string) ([]*Symbol, error) {
	return s.querySymbols("SELECT "+symbolCols+" FROM symbols WHERE name = ? ORDER BY buffer_id, start_line", name)
}
