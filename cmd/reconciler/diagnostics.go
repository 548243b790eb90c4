package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/reconciler/internal/diag"
)

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics FILE",
	Short: "Print the diagnostics stored for a file",
	Long:  "Prints what the last reconcile of FILE stored in the database, without reconciling again.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagnostics,
}

func runDiagnostics(cmd *cobra.Command, args []string) error {
	out, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	file, err := filepath.Abs(args[0])
	if err != nil {
		return outputError(out, stderr, "diagnostics", err)
	}
	st, err := openStore(cfg.DB)
	if err != nil {
		return outputError(out, stderr, "diagnostics", err)
	}
	defer st.Close()

	var ds []diag.Diagnostic
	b, err := st.BufferByName(file)
	if err != nil {
		return outputError(out, stderr, "diagnostics", err)
	}
	if b != nil {
		if ds, err = st.DiagnosticsByBuffer(b.ID); err != nil {
			return outputError(out, stderr, "diagnostics", err)
		}
	}
	return outputResult(out, CLIResult{Command: "diagnostics", Results: toCLIDiagnostics(file, ds)})
}
