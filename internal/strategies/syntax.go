package strategies

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/jward/reconciler"
	"github.com/jward/reconciler/internal/diag"
	"github.com/jward/reconciler/internal/runtime"
)

// SyntaxSource is the diagnostic source Syntax publishes under.
const SyntaxSource = "syntax"

const (
	maxSyntaxDiagnostics = 100
	// maxPendingEdits bounds the edits kept while the strategy is not run.
	// Past it the next pass parses from scratch.
	maxPendingEdits = 4096
)

// TreeSource hands out the most recent parse of the bound buffer. The caller
// owns the returned tree and must Close it.
type TreeSource interface {
	Tree() (tree *sitter.Tree, src []byte, lang string)
}

// Syntax parses the buffer with tree-sitter and reports ERROR and MISSING
// nodes. The initial pass parses the whole text; regular passes feed the
// edits received since the last parse to the old tree and reparse
// incrementally.
type Syntax struct {
	binding
	log   *zap.Logger
	sink  diag.Sink
	fixed string

	emu      sync.Mutex
	unsub    func()
	pending  []reconciler.Event
	overflow bool

	tmu     sync.RWMutex
	tree    *sitter.Tree
	src     []byte
	lang    string
	version uint64
}

var (
	_ reconciler.ExtendedStrategy   = (*Syntax)(nil)
	_ reconciler.InputAwareStrategy = (*Syntax)(nil)
	_ TreeSource                    = (*Syntax)(nil)
)

// NewSyntax creates a Syntax strategy. It honours WithLogger, WithSink and
// WithLanguage.
func NewSyntax(opts ...Option) *Syntax {
	o := newOptions(opts)
	s := &Syntax{log: o.log, sink: o.sink, fixed: o.language}
	s.onBuffer = s.rebind
	return s
}

// rebind moves the edit subscription to cur and forgets the old tree.
func (s *Syntax) rebind(_, cur reconciler.Buffer) {
	s.emu.Lock()
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	s.pending = nil
	s.overflow = false
	if cur != nil {
		s.unsub = cur.Subscribe(s.record)
	}
	s.emu.Unlock()

	s.tmu.Lock()
	s.closeTreeLocked()
	s.tmu.Unlock()
}

func (s *Syntax) record(ev reconciler.Event) {
	s.emu.Lock()
	defer s.emu.Unlock()
	if s.overflow {
		return
	}
	if len(s.pending) >= maxPendingEdits {
		s.pending = nil
		s.overflow = true
		return
	}
	s.pending = append(s.pending, ev)
}

// InitialReconcile parses the whole buffer.
func (s *Syntax) InitialReconcile(ctx context.Context) error {
	return s.parse(ctx, false)
}

// Reconcile reparses the buffer, reusing the previous tree when every edit
// since that parse is known.
func (s *Syntax) Reconcile(ctx context.Context, _ reconciler.Region) error {
	return s.parse(ctx, true)
}

func (s *Syntax) parse(ctx context.Context, incremental bool) error {
	buf, err := s.resolve()
	if err != nil {
		return fmt.Errorf("syntax: %w", err)
	}
	if buf == nil {
		return nil
	}
	langName, ok := s.language(s.fixed)
	if !ok {
		s.log.Debug("syntax: unsupported language", zap.String("input", s.inputName()))
		return nil
	}
	lang, _ := runtime.ParserForLanguage(langName)

	src, version, versioned := readBuffer(buf)

	s.tmu.RLock()
	floor := s.version
	s.tmu.RUnlock()
	edits, complete := s.takeEdits(floor, version)

	s.tmu.RLock()
	var base *sitter.Tree
	if incremental && versioned && complete && s.tree != nil && s.lang == langName && (len(edits) > 0 || s.version == version) {
		if len(edits) == 0 || edits[0].Version == s.version+1 {
			base = s.tree.Copy()
		}
	}
	s.tmu.RUnlock()

	if base != nil {
		defer base.Close()
		for _, ev := range edits {
			base.Edit(editInput(ev))
		}
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	data := []byte(src)
	tree, err := parser.ParseCtx(ctx, base, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("syntax: parse: %w", err)
	}

	s.tmu.Lock()
	s.closeTreeLocked()
	s.tree, s.src, s.lang, s.version = tree, data, langName, version
	diags := syntaxDiagnostics(tree.RootNode(), data)
	s.tmu.Unlock()

	s.log.Debug("syntax: parsed",
		zap.String("input", s.inputName()),
		zap.Bool("incremental", base != nil),
		zap.Int("errors", len(diags)))

	if s.sink == nil {
		return nil
	}
	if err := s.sink.Publish(ctx, SyntaxSource, publishKey(s.inputName()), diags); err != nil {
		return fmt.Errorf("syntax: publish: %w", err)
	}
	return nil
}

// takeEdits removes the pending edits in (floor, version] and reports
// whether they form an unbroken run, which incremental parsing needs. Edits
// at or below floor are already in the tree; edits newer than version stay
// pending for the next pass.
func (s *Syntax) takeEdits(floor, version uint64) ([]reconciler.Event, bool) {
	s.emu.Lock()
	defer s.emu.Unlock()

	complete := !s.overflow
	s.overflow = false

	var taken, rest []reconciler.Event
	for _, ev := range s.pending {
		if ev.Version <= floor {
			continue
		}
		if ev.Version <= version {
			taken = append(taken, ev)
		} else {
			rest = append(rest, ev)
		}
	}
	s.pending = rest

	for i := 1; i < len(taken); i++ {
		if taken[i].Version != taken[i-1].Version+1 {
			complete = false
		}
	}
	if len(taken) > 0 && taken[len(taken)-1].Version != version {
		complete = false
	}
	return taken, complete
}

func editInput(ev reconciler.Event) sitter.EditInput {
	return sitter.EditInput{
		StartIndex:  ev.StartByte,
		OldEndIndex: ev.OldEndByte,
		NewEndIndex: ev.NewEndByte,
		StartPoint:  sitter.Point{Row: ev.StartPoint.Row, Column: ev.StartPoint.Column},
		OldEndPoint: sitter.Point{Row: ev.OldEndPoint.Row, Column: ev.OldEndPoint.Column},
		NewEndPoint: sitter.Point{Row: ev.NewEndPoint.Row, Column: ev.NewEndPoint.Column},
	}
}

// Tree returns a copy of the latest tree with the source it was parsed
// from, or a nil tree before the first parse.
func (s *Syntax) Tree() (*sitter.Tree, []byte, string) {
	s.tmu.RLock()
	defer s.tmu.RUnlock()
	if s.tree == nil {
		return nil, nil, ""
	}
	return s.tree.Copy(), s.src, s.lang
}

// Close drops the edit subscription and releases the tree.
func (s *Syntax) Close() {
	s.SetBuffer(nil)
}

func (s *Syntax) closeTreeLocked() {
	if s.tree != nil {
		s.tree.Close()
	}
	s.tree, s.src, s.lang, s.version = nil, nil, "", 0
}

// syntaxDiagnostics reports every ERROR and MISSING node under root, without
// descending into ERROR nodes.
func syntaxDiagnostics(root *sitter.Node, src []byte) []diag.Diagnostic {
	var out []diag.Diagnostic
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if len(out) >= maxSyntaxDiagnostics {
			return
		}
		switch {
		case n.IsMissing():
			out = append(out, nodeDiagnostic(n, "missing-node", "missing "+n.Type()))
			return
		case n.IsError():
			out = append(out, nodeDiagnostic(n, "syntax-error", errorMessage(n, src)))
			return
		case !n.HasError():
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return out
}

func nodeDiagnostic(n *sitter.Node, code, msg string) diag.Diagnostic {
	start, end := n.StartPoint(), n.EndPoint()
	return diag.Diagnostic{
		Source:   SyntaxSource,
		Severity: diag.SeverityError,
		Line:     int(start.Row) + 1,
		Col:      int(start.Column) + 1,
		EndLine:  int(end.Row) + 1,
		EndCol:   int(end.Column) + 1,
		Code:     code,
		Message:  msg,
	}
}

func errorMessage(n *sitter.Node, src []byte) string {
	text := strings.TrimSpace(n.Content(src))
	if text == "" || len(text) > 32 || strings.ContainsRune(text, '\n') {
		return "syntax error"
	}
	return fmt.Sprintf("unexpected %q", text)
}
