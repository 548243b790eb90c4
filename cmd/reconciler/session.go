package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jward/reconciler"
	"github.com/jward/reconciler/internal/config"
	"github.com/jward/reconciler/internal/diag"
	"github.com/jward/reconciler/internal/runtime"
	"github.com/jward/reconciler/internal/store"
	"github.com/jward/reconciler/internal/strategies"
	"github.com/jward/reconciler/scripts"
)

// session holds what every reconciled file shares: the database, the
// script runtime and the diagnostics collector.
type session struct {
	cfg       config.Config
	log       *zap.Logger
	store     *store.Store
	rt        *runtime.Runtime
	collector *diag.Collector
	sink      diag.Sink
	recorder  *strategies.Recorder
}

// pipeline is one reconciler bound to the configured strategies.
type pipeline struct {
	rec    *reconciler.Reconciler
	syntax *strategies.Syntax
	cycles chan reconciler.CycleResult
}

// openStore opens the database at path, creating its directory.
func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return s, nil
}

func newSession(c config.Config, log *zap.Logger) (*session, error) {
	st, err := openStore(c.DB)
	if err != nil {
		return nil, err
	}

	rtOpts := []runtime.RuntimeOption{runtime.WithStore(st), runtime.WithLogger(log)}
	if c.ScriptsDir == "" {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(scripts.FS))
	}

	collector := diag.NewCollector()
	return &session{
		cfg:       c,
		log:       log,
		store:     st,
		rt:        runtime.NewRuntime(c.ScriptsDir, rtOpts...),
		collector: collector,
		sink:      diag.Multi(collector, st),
		recorder:  strategies.NewRecorder(st, strategies.WithLogger(log)),
	}, nil
}

// Close releases the database.
func (s *session) Close() {
	s.store.Close()
}

// newPipeline creates a reconciler with the configured strategies. Results
// of finished cycles are recorded and sent on the pipeline's cycles channel.
func (s *session) newPipeline() (*pipeline, error) {
	p := &pipeline{cycles: make(chan reconciler.CycleResult, 16)}

	recOpts := []reconciler.Option{
		reconciler.WithDelay(s.cfg.Delay.Duration),
		reconciler.WithLogger(s.log),
		reconciler.WithCycleHook(func(res reconciler.CycleResult) {
			s.recorder.Record(res)
			select {
			case p.cycles <- res:
			default:
				s.log.Debug("cycle result dropped", zap.String("cycle", res.ID.String()))
			}
		}),
	}
	if s.cfg.SkipWhileHidden {
		recOpts = append(recOpts, reconciler.WithGate(reconciler.WhenVisible))
	}
	p.rec = reconciler.New(recOpts...)

	opts := []strategies.Option{
		strategies.WithLogger(s.log),
		strategies.WithSink(s.sink),
		strategies.WithLanguage(s.cfg.Language),
	}
	for _, name := range s.cfg.Strategies {
		var strat reconciler.Strategy
		switch name {
		case config.StrategySyntax:
			p.syntax = strategies.NewSyntax(opts...)
			strat = p.syntax
		case config.StrategyOutline:
			outlineOpts := opts[:len(opts):len(opts)]
			if p.syntax != nil {
				outlineOpts = append(outlineOpts, strategies.WithTrees(p.syntax))
			}
			strat = strategies.NewOutline(s.store, outlineOpts...)
		case config.StrategyScript:
			strat = strategies.NewScript(s.rt, opts...)
		}
		if _, err := p.rec.AddStrategy(strat); err != nil {
			p.Close()
			return nil, fmt.Errorf("adding strategy %s: %w", name, err)
		}
	}
	return p, nil
}

// Close detaches the reconciler and releases the parse tree.
func (p *pipeline) Close() {
	p.rec.Uninstall()
	if p.syntax != nil {
		p.syntax.Close()
	}
}
