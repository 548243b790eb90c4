package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

var (
	colorError   = color.New(color.FgRed, color.Bold).SprintFunc()
	colorWarning = color.New(color.FgYellow).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorFaint   = color.New(color.Faint).SprintFunc()
)

func colorSeverity(sev string) string {
	switch sev {
	case "error":
		return colorError(sev)
	case "warning":
		return colorWarning(sev)
	default:
		return colorInfo(sev)
	}
}

// formatDiagnosticsText formats diagnostics as "file:line:col: severity: message [source]".
func formatDiagnosticsText(w io.Writer, ds []CLIDiagnostic) {
	for _, d := range ds {
		fmt.Fprintf(w, "%s:%d:%d: %s: %s %s\n",
			d.File, d.Line, d.Col, colorSeverity(d.Severity), d.Message, colorFaint("["+d.Source+"]"))
	}
}

// formatRunsText formats CLIRun results as aligned columns.
func formatRunsText(w io.Writer, runs []CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tBUFFER\tOUTCOME\tRAN\tDURATION\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dms\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Buffer, r.Outcome, r.Strategies, r.DurationMS, r.Error)
	}
	tw.Flush()
}

// formatCycleText formats one watch cycle: a header line, then its
// diagnostics.
func formatCycleText(w io.Writer, c CLICycle) {
	fmt.Fprintln(w, colorFaint(fmt.Sprintf("-- %s: %s, %d strategies, %dms", c.File, c.Outcome, c.Ran, c.DurationMS)))
	formatDiagnosticsText(w, c.Diagnostics)
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIDiagnostic:
		formatDiagnosticsText(w, v)
	case []CLIRun:
		formatRunsText(w, v)
	case CLICycle:
		formatCycleText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

func outputResult(w io.Writer, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func outputError(w, stderr io.Writer, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
