package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jward/reconciler/internal/diag"
)

var _ diag.Sink = (*Store)(nil)

// Publish implements diag.Sink: it replaces the diagnostics source reported
// for the buffer called input.
func (s *Store) Publish(ctx context.Context, source, input string, diags []diag.Diagnostic) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("publish diagnostics: begin: %w", err)
	}
	defer tx.Rollback()

	bufferID, err := ensureBufferTx(tx, input)
	if err != nil {
		return fmt.Errorf("publish diagnostics: %w", err)
	}
	if err := replaceDiagnosticsTx(tx, bufferID, source, diags); err != nil {
		return fmt.Errorf("publish diagnostics: %w", err)
	}
	return tx.Commit()
}

// ReplaceDiagnostics swaps the diagnostics source reported for the buffer.
func (s *Store) ReplaceDiagnostics(bufferID int64, source string, diags []diag.Diagnostic) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace diagnostics: begin: %w", err)
	}
	defer tx.Rollback()

	if err := replaceDiagnosticsTx(tx, bufferID, source, diags); err != nil {
		return fmt.Errorf("replace diagnostics: %w", err)
	}
	return tx.Commit()
}

func replaceDiagnosticsTx(tx *sql.Tx, bufferID int64, source string, diags []diag.Diagnostic) error {
	if _, err := tx.Exec("DELETE FROM diagnostics WHERE buffer_id = ? AND source = ?", bufferID, source); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if len(diags) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(
		`INSERT INTO diagnostics (buffer_id, source, severity, line, col, end_line, end_col, code, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, d := range diags {
		if _, err := stmt.Exec(
			bufferID, source, d.Severity.String(), d.Line, d.Col, d.EndLine, d.EndCol,
			nullString(d.Code), d.Message,
		); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}
	return nil
}

// DiagnosticsByBuffer returns every diagnostic stored for the buffer, sorted
// by position.
func (s *Store) DiagnosticsByBuffer(bufferID int64) ([]diag.Diagnostic, error) {
	rows, err := s.db.Query(
		`SELECT source, severity, line, col, end_line, end_col, code, message
		 FROM diagnostics WHERE buffer_id = ?`, bufferID,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by buffer: %w", err)
	}
	defer rows.Close()

	var out []diag.Diagnostic
	for rows.Next() {
		var (
			d    diag.Diagnostic
			sev  string
			code sql.NullString
		)
		if err := rows.Scan(&d.Source, &sev, &d.Line, &d.Col, &d.EndLine, &d.EndCol, &code, &d.Message); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Severity = diag.ParseSeverity(sev)
		d.Code = code.String
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	diag.Sort(out)
	return out, nil
}
