package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagRunsBuffer string
	flagRunsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent reconcile cycles",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().StringVar(&flagRunsBuffer, "file", "", "only cycles of this file")
	runsCmd.Flags().IntVar(&flagRunsLimit, "limit", 20, "maximum number of cycles")
}

func runRuns(cmd *cobra.Command, args []string) error {
	out, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	st, err := openStore(cfg.DB)
	if err != nil {
		return outputError(out, stderr, "runs", err)
	}
	defer st.Close()

	buffer := flagRunsBuffer
	if buffer != "" {
		if buffer, err = filepath.Abs(buffer); err != nil {
			return outputError(out, stderr, "runs", err)
		}
	}
	runs, err := st.RecentRuns(buffer, flagRunsLimit)
	if err != nil {
		return outputError(out, stderr, "runs", err)
	}
	return outputResult(out, CLIResult{Command: "runs", Results: toCLIRuns(runs)})
}
