package main

import (
	"context"
	"fmt"
	goruntime "runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jward/reconciler"
	"github.com/jward/reconciler/internal/watch"
)

var flagTimeout time.Duration

var checkCmd = &cobra.Command{
	Use:   "check FILE...",
	Short: "Reconcile files once and print their diagnostics",
	Long:  "Binds each FILE to its own reconciler, waits for the first cycle to finish and prints the diagnostics it produced. Files are checked in parallel. Exits 1 when any diagnostic is an error.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "give up when a file's first cycle has not finished in time")
}

func runCheck(cmd *cobra.Command, args []string) error {
	out, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	sess, err := newSession(cfg, logger)
	if err != nil {
		return outputError(out, stderr, "check", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
	defer cancel()

	// One worker per CPU; each file gets its own reconciler and buffer.
	results := make([][]CLIDiagnostic, len(args))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(goruntime.NumCPU(), len(args))))
	for i, path := range args {
		g.Go(func() error {
			ds, err := checkFile(gctx, sess, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outputError(out, stderr, "check", err)
	}

	all := []CLIDiagnostic{}
	for _, ds := range results {
		all = append(all, ds...)
	}
	if err := outputResult(out, CLIResult{Command: "check", Results: all}); err != nil {
		return err
	}
	if hasErrors(all) {
		return errFindings
	}
	return nil
}

// checkFile reconciles path once and returns the diagnostics held for it.
func checkFile(ctx context.Context, sess *session, path string) ([]CLIDiagnostic, error) {
	fb, err := watch.New(path, watch.WithLogger(sess.log))
	if err != nil {
		return nil, err
	}
	defer fb.Close()
	if err := fb.Load(); err != nil {
		return nil, err
	}

	p, err := sess.newPipeline()
	if err != nil {
		return nil, err
	}
	defer p.Close()

	if err := p.rec.Install(fb.Buffer(), fb); err != nil {
		return nil, err
	}
	res, err := waitCycle(ctx, p.cycles)
	if err != nil {
		return nil, err
	}
	if res.Outcome == reconciler.OutcomeFailed {
		return nil, res.Err
	}
	return toCLIDiagnostics(fb.Name(), sess.collector.All(fb.Name())), nil
}

// waitCycle returns the first cycle that was not cancelled by a newer one.
func waitCycle(ctx context.Context, cycles <-chan reconciler.CycleResult) (reconciler.CycleResult, error) {
	for {
		select {
		case <-ctx.Done():
			return reconciler.CycleResult{}, fmt.Errorf("waiting for reconcile: %w", ctx.Err())
		case res := <-cycles:
			if res.Outcome != reconciler.OutcomeCancelled {
				return res, nil
			}
		}
	}
}
