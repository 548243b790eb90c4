package runtime

import (
	"context"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/jward/reconciler/internal/diag"
)

// sourceStore tracks source bytes and language for each tree a script
// parses. node_text and query need to recover source/language from a Node,
// but smacker/go-tree-sitter doesn't expose Node.Tree(), so mappings are
// keyed by root node pointer.
type sourceStore struct {
	mu      sync.RWMutex
	sources map[uintptr][]byte
	langs   map[uintptr]*sitter.Language
	trees   []*sitter.Tree
}

func newSourceStore() *sourceStore {
	return &sourceStore{
		sources: make(map[uintptr][]byte),
		langs:   make(map[uintptr]*sitter.Language),
	}
}

func (s *sourceStore) store(tree *sitter.Tree, src []byte, lang *sitter.Language) {
	key := uintptr(unsafe.Pointer(tree.RootNode()))
	s.mu.Lock()
	s.sources[key] = src
	s.langs[key] = lang
	s.trees = append(s.trees, tree)
	s.mu.Unlock()
}

// closeAll releases every tree parsed through the store.
func (s *sourceStore) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trees {
		t.Close()
	}
	s.trees = nil
	clear(s.sources)
	clear(s.langs)
}

// rootOf walks a node up to its root via Parent().
func rootOf(node *sitter.Node) *sitter.Node {
	for node.Parent() != nil {
		node = node.Parent()
	}
	return node
}

func (s *sourceStore) sourceForNode(node *sitter.Node) ([]byte, bool) {
	key := uintptr(unsafe.Pointer(rootOf(node)))
	s.mu.RLock()
	src, ok := s.sources[key]
	s.mu.RUnlock()
	return src, ok
}

func (s *sourceStore) languageForNode(node *sitter.Node) (*sitter.Language, bool) {
	key := uintptr(unsafe.Pointer(rootOf(node)))
	s.mu.RLock()
	lang, ok := s.langs[key]
	s.mu.RUnlock()
	return lang, ok
}

// makeParseSrcFn creates "parse_src".
//
// parse_src(source, language) → *sitter.Tree
func makeParseSrcFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse_src", 2, len(args))
		}
		src, err := toString(args[0])
		if err != nil {
			return object.Errorf("parse_src: source: %v", err)
		}
		langName, err := toString(args[1])
		if err != nil {
			return object.Errorf("parse_src: language: %v", err)
		}

		lang, found := ParserForLanguage(langName)
		if !found {
			return object.Errorf("parse_src: unsupported language %q", langName)
		}

		parser := sitter.NewParser()
		defer parser.Close()
		parser.SetLanguage(lang)

		data := []byte(src)
		tree, perr := parser.ParseCtx(ctx, nil, data)
		if perr != nil {
			return object.Errorf("parse_src: tree-sitter parse failed: %v", perr)
		}
		ss.store(tree, data, lang)

		proxy, perr := object.NewProxy(tree)
		if perr != nil {
			return object.Errorf("parse_src: proxy error: %v", perr)
		}
		return proxy
	})
}

// nodeArg unwraps a proxied *sitter.Node argument.
func nodeArg(fn string, obj object.Object) (*sitter.Node, *object.Error) {
	proxy, ok := obj.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected proxy (Node), got %s", fn, obj.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

// makeNodeTextFn creates the "node_text" host function.
//
// node_text(node) → string
//
// Exists because Risor's proxy system cannot convert strings to []byte
// for node.Content([]byte).
func makeNodeTextFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		src, found := ss.sourceForNode(node)
		if !found {
			return object.Errorf("node_text: no source found for node's tree")
		}
		return object.NewString(node.Content(src))
	})
}

// makeQueryFn creates the "query" host function.
//
// query(pattern, node) → []map[string]Node
func makeQueryFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, err := toString(args[0])
		if err != nil {
			return object.Errorf("query: pattern: %v", err)
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}

		lang, found := ss.languageForNode(node)
		if !found {
			return object.Errorf("query: no language found for node's tree")
		}
		src, _ := ss.sourceForNode(node)

		q, qerr := sitter.NewQuery([]byte(pattern), lang)
		if qerr != nil {
			return object.Errorf("query: invalid pattern: %v", qerr)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, src)

			matchMap := make(map[string]object.Object)
			for _, capture := range match.Captures {
				name := q.CaptureNameForId(capture.Index)
				nodeP, perr := object.NewProxy(capture.Node)
				if perr != nil {
					return object.Errorf("query: proxy error for capture %q: %v", name, perr)
				}
				matchMap[name] = nodeP
			}
			results = append(results, object.NewMap(matchMap))
		}
		return object.NewList(results)
	})
}

// makeNodeChildFn creates "node_child", a wrapper for ChildByFieldName that
// returns Risor nil instead of a proxied Go nil pointer.
//
// node_child(node, fieldName) → Node or nil
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, err := toString(args[1])
		if err != nil {
			return object.Errorf("node_child: field: %v", err)
		}

		child := node.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		p, perr := object.NewProxy(child)
		if perr != nil {
			return object.Errorf("node_child: proxy error: %v", perr)
		}
		return p
	})
}

// MakeReportFn creates the "report" host function check scripts use to emit
// diagnostics. Each call hands one Diagnostic tagged with source to emit.
//
// report(line, col, severity, message)
// report({"line": 3, "col": 1, "severity": "warning", "message": "...", "code": "..."})
func MakeReportFn(source string, emit func(diag.Diagnostic)) *object.Builtin {
	return object.NewBuiltin("report", func(ctx context.Context, args ...object.Object) object.Object {
		d := diag.Diagnostic{Source: source}
		switch len(args) {
		case 1:
			m, err := extractMap(args[0])
			if err != nil {
				return object.Errorf("report: %v", err)
			}
			d.Line = getInt(m, "line")
			d.Col = getInt(m, "col")
			d.EndLine = getInt(m, "end_line")
			d.EndCol = getInt(m, "end_col")
			d.Severity = diag.ParseSeverity(getString(m, "severity"))
			d.Code = getString(m, "code")
			d.Message = getString(m, "message")
		case 4:
			line, err := toInt64(args[0])
			if err != nil {
				return object.Errorf("report: line: %v", err)
			}
			col, err := toInt64(args[1])
			if err != nil {
				return object.Errorf("report: col: %v", err)
			}
			sev, err := toString(args[2])
			if err != nil {
				return object.Errorf("report: severity: %v", err)
			}
			msg, err := toString(args[3])
			if err != nil {
				return object.Errorf("report: message: %v", err)
			}
			d.Line, d.Col = int(line), int(col)
			d.Severity = diag.ParseSeverity(sev)
			d.Message = msg
		default:
			return object.Errorf("report: expected 1 or 4 arguments, got %d", len(args))
		}
		if d.Message == "" {
			return object.Errorf("report: message is required")
		}
		emit(d)
		return object.Nil
	})
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	log *zap.Logger
}

func (l *logObject) Info(msg string) {
	l.log.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.log.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.log.Error(msg)
}
