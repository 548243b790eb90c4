package main

import (
	"time"

	"github.com/jward/reconciler"
	"github.com/jward/reconciler/internal/diag"
	"github.com/jward/reconciler/internal/store"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIDiagnostic is a JSON-friendly diagnostic.
type CLIDiagnostic struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
	EndLine  int    `json:"end_line,omitempty"`
	EndCol   int    `json:"end_col,omitempty"`
	Severity string `json:"severity"`
	Source   string `json:"source"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
}

// CLIRun is a JSON-friendly stored cycle.
type CLIRun struct {
	ID         string    `json:"id"`
	Buffer     string    `json:"buffer"`
	Outcome    string    `json:"outcome"`
	Strategies int       `json:"strategies"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// CLICycle is one finished cycle of the watch command with the diagnostics
// held afterwards.
type CLICycle struct {
	ID          string          `json:"id"`
	File        string          `json:"file"`
	Outcome     string          `json:"outcome"`
	Ran         int             `json:"ran"`
	DurationMS  int64           `json:"duration_ms"`
	Diagnostics []CLIDiagnostic `json:"diagnostics"`
}

func toCLIDiagnostics(file string, ds []diag.Diagnostic) []CLIDiagnostic {
	out := make([]CLIDiagnostic, 0, len(ds))
	for _, d := range ds {
		out = append(out, CLIDiagnostic{
			File:     file,
			Line:     d.Line,
			Col:      d.Col,
			EndLine:  d.EndLine,
			EndCol:   d.EndCol,
			Severity: d.Severity.String(),
			Source:   d.Source,
			Code:     d.Code,
			Message:  d.Message,
		})
	}
	return out
}

func toCLIRuns(runs []*store.Run) []CLIRun {
	out := make([]CLIRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, CLIRun{
			ID:         r.ID,
			Buffer:     r.Buffer,
			Outcome:    r.Outcome,
			Strategies: r.Strategies,
			StartedAt:  r.StartedAt,
			DurationMS: r.Duration.Milliseconds(),
			Error:      r.Error,
		})
	}
	return out
}

func toCLICycle(file string, res reconciler.CycleResult, ds []diag.Diagnostic) CLICycle {
	return CLICycle{
		ID:          res.ID.String(),
		File:        file,
		Outcome:     res.Outcome.String(),
		Ran:         res.Ran,
		DurationMS:  res.Duration.Milliseconds(),
		Diagnostics: toCLIDiagnostics(file, ds),
	}
}

func hasErrors(ds []CLIDiagnostic) bool {
	for _, d := range ds {
		if d.Severity == diag.SeverityError.String() {
			return true
		}
	}
	return false
}
