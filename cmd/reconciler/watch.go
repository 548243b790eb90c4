package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"github.com/jward/reconciler"
	"github.com/jward/reconciler/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch FILE",
	Short: "Reconcile a file on every change",
	Long:  "Binds FILE and re-runs the strategies whenever it is written, printing the diagnostics after each cycle until interrupted.",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	out, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fb, err := watch.New(args[0], watch.WithLogger(logger))
	if err != nil {
		return outputError(out, stderr, "watch", err)
	}
	defer fb.Close()
	if err := fb.Load(); err != nil {
		return outputError(out, stderr, "watch", err)
	}

	sess, err := newSession(cfg, logger)
	if err != nil {
		return outputError(out, stderr, "watch", err)
	}
	defer sess.Close()
	p, err := sess.newPipeline()
	if err != nil {
		return outputError(out, stderr, "watch", err)
	}
	defer p.Close()

	if err := p.rec.Install(fb.Buffer(), fb); err != nil {
		return outputError(out, stderr, "watch", err)
	}
	logger.Info("watching", zap.String("file", fb.Name()), zap.Duration("delay", p.rec.Delay()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return fb.Run(gctx)
	})
	g.Go(func() error {
		return printCycles(gctx, out, fb.Name(), sess, p)
	})
	return g.Wait()
}

// printCycles prints every cycle that was not superseded, until ctx ends.
func printCycles(ctx context.Context, out io.Writer, file string, sess *session, p *pipeline) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case res := <-p.cycles:
			if res.Outcome == reconciler.OutcomeCancelled {
				continue
			}
			c := toCLICycle(file, res, sess.collector.All(file))
			if err := outputResult(out, CLIResult{Command: "watch", Results: c}); err != nil {
				return err
			}
		}
	}
}
