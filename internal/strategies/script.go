package strategies

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jward/reconciler"
	"github.com/jward/reconciler/internal/diag"
	"github.com/jward/reconciler/internal/runtime"
)

// ScriptSourcePrefix prefixes the diagnostic source of each check script.
// The script "checks/todo.risor" publishes as "script:todo".
const ScriptSourcePrefix = "script:"

// Script runs Risor check scripts against the buffer. The initial pass lists
// the scripts in the checks directory and validates them; scripts that do
// not parse are left out until the buffer is rebound. Every pass then runs
// the remaining scripts, each with these globals besides the runtime's own:
//
//	text         the buffer content
//	buffer_name  the input name, "-" without one
//	language     the detected language, "" when unknown
//	report       report(line, col, severity, message) or report({...})
type Script struct {
	binding
	rt    *runtime.Runtime
	log   *zap.Logger
	sink  diag.Sink
	fixed string
	dir   string

	smu     sync.Mutex
	scripts []string
}

var (
	_ reconciler.ExtendedStrategy   = (*Script)(nil)
	_ reconciler.InputAwareStrategy = (*Script)(nil)
)

// NewScript creates a Script strategy running checks through rt. It honours
// WithLogger, WithSink, WithLanguage and WithChecksDir.
func NewScript(rt *runtime.Runtime, opts ...Option) *Script {
	o := newOptions(opts)
	return &Script{rt: rt, log: o.log, sink: o.sink, fixed: o.language, dir: o.dir}
}

// InitialReconcile loads and validates the check scripts, then runs them.
func (s *Script) InitialReconcile(ctx context.Context) error {
	paths, err := s.rt.ListScripts(s.dir)
	if err != nil {
		return fmt.Errorf("script: %w", err)
	}
	var valid []string
	for _, p := range paths {
		if err := s.rt.Validate(ctx, p); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("script: check skipped", zap.String("script", p), zap.Error(err))
			continue
		}
		valid = append(valid, p)
	}
	s.smu.Lock()
	s.scripts = valid
	s.smu.Unlock()
	s.log.Debug("script: checks loaded", zap.Strings("scripts", valid))
	return s.runAll(ctx)
}

// Reconcile runs every loaded check script.
func (s *Script) Reconcile(ctx context.Context, _ reconciler.Region) error {
	return s.runAll(ctx)
}

// Scripts returns the check scripts the last initial pass loaded.
func (s *Script) Scripts() []string {
	s.smu.Lock()
	defer s.smu.Unlock()
	return append([]string(nil), s.scripts...)
}

func (s *Script) runAll(ctx context.Context) error {
	buf, err := s.resolve()
	if err != nil {
		return fmt.Errorf("script: %w", err)
	}
	if buf == nil {
		return nil
	}
	text := buf.Get()
	name := publishKey(s.inputName())
	lang, _ := s.language(s.fixed)

	for _, p := range s.Scripts() {
		if err := ctx.Err(); err != nil {
			return err
		}
		source := ScriptSource(p)
		var diags []diag.Diagnostic
		extras := map[string]any{
			"text":        text,
			"buffer_name": name,
			"language":    lang,
			"report":      runtime.MakeReportFn(source, func(d diag.Diagnostic) { diags = append(diags, d) }),
		}
		if err := s.rt.RunScript(ctx, p, extras); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Keep the check's previous findings; a broken check must not
			// stop the others.
			s.log.Warn("script: check failed", zap.String("script", p), zap.Error(err))
			continue
		}
		if s.sink == nil {
			continue
		}
		if err := s.sink.Publish(ctx, source, name, diags); err != nil {
			return fmt.Errorf("script: publish %s: %w", source, err)
		}
	}
	return nil
}

// ScriptSource returns the diagnostic source for the script at p.
func ScriptSource(p string) string {
	return ScriptSourcePrefix + strings.TrimSuffix(path.Base(p), ".risor")
}
