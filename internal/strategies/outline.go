package strategies

import (
	"context"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/jward/reconciler"
	"github.com/jward/reconciler/internal/runtime"
	"github.com/jward/reconciler/internal/store"
)

// outlineQueries select the top-level declarations per language. Every
// pattern captures the declaration under its kind and its name as @name.
var outlineQueries = map[string]string{
	"go": `
(function_declaration name: (identifier) @name) @function
(method_declaration name: (field_identifier) @name) @method
(source_file (type_declaration (type_spec name: (type_identifier) @name) @type))
(source_file (const_declaration (const_spec name: (identifier) @name) @const))
(source_file (var_declaration (var_spec name: (identifier) @name) @var))
`,
	"python": `
(module (function_definition name: (identifier) @name) @function)
(module (class_definition name: (identifier) @name) @class)
`,
	"javascript": `
(program (function_declaration name: (identifier) @name) @function)
(program (class_declaration name: (identifier) @name) @class)
`,
	"typescript": `
(program (function_declaration name: (identifier) @name) @function)
(program (class_declaration name: (type_identifier) @name) @class)
(program (interface_declaration name: (type_identifier) @name) @interface)
`,
	"rust": `
(source_file (function_item name: (identifier) @name) @function)
(source_file (struct_item name: (type_identifier) @name) @struct)
(source_file (enum_item name: (type_identifier) @name) @enum)
(source_file (trait_item name: (type_identifier) @name) @trait)
`,
	"java": `
(program (class_declaration name: (identifier) @name) @class)
(program (interface_declaration name: (identifier) @name) @interface)
`,
}

// Outline extracts the top-level declarations of the buffer and stores them
// as the buffer's symbols. A pass over content whose hash matches the stored
// one does nothing.
type Outline struct {
	binding
	store *store.Store
	log   *zap.Logger
	fixed string
	trees TreeSource
	now   func() time.Time
}

var _ reconciler.InputAwareStrategy = (*Outline)(nil)

// NewOutline creates an Outline writing to s. It honours WithLogger,
// WithLanguage and WithTrees.
func NewOutline(s *store.Store, opts ...Option) *Outline {
	o := newOptions(opts)
	return &Outline{
		store: s,
		log:   o.log,
		fixed: o.language,
		trees: o.trees,
		now:   time.Now,
	}
}

// Reconcile implements reconciler.Strategy.
func (o *Outline) Reconcile(ctx context.Context, _ reconciler.Region) error {
	buf, err := o.resolve()
	if err != nil {
		return fmt.Errorf("outline: %w", err)
	}
	if buf == nil {
		return nil
	}
	lang, ok := o.language(o.fixed)
	if !ok {
		return nil
	}
	pattern, ok := outlineQueries[lang]
	if !ok {
		o.log.Debug("outline: no query for language", zap.String("language", lang))
		return nil
	}

	tree, src, err := o.parse(ctx, buf, lang)
	if err != nil {
		return err
	}
	defer tree.Close()

	name := publishKey(o.inputName())
	hash := store.ContentHash(string(src))
	existing, err := o.store.BufferByName(name)
	if err != nil {
		return fmt.Errorf("outline: %w", err)
	}
	if existing != nil && existing.Hash == hash && existing.Language == lang {
		o.log.Debug("outline: unchanged", zap.String("buffer", name))
		return nil
	}

	syms, err := extractSymbols(tree.RootNode(), src, lang, pattern)
	if err != nil {
		return fmt.Errorf("outline: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b := &store.Buffer{Name: name, Language: lang, Hash: hash, Version: 1, LastReconciled: o.now().UTC()}
	if existing != nil {
		b.Version = existing.Version + 1
	}
	id, err := o.store.UpsertBuffer(b)
	if err != nil {
		return fmt.Errorf("outline: %w", err)
	}
	if err := o.store.ReplaceSymbols(id, syms); err != nil {
		return fmt.Errorf("outline: %w", err)
	}
	o.log.Debug("outline: stored", zap.String("buffer", name), zap.Int("symbols", len(syms)))
	return nil
}

// parse returns a tree for buf. The tree source's parse is reused when it is
// for the same language and was made from the buffer's current text; a stale
// one, left behind when the source has not run yet this cycle, is discarded.
func (o *Outline) parse(ctx context.Context, buf reconciler.Buffer, lang string) (*sitter.Tree, []byte, error) {
	text, _, _ := readBuffer(buf)
	if o.trees != nil {
		if tree, src, tl := o.trees.Tree(); tree != nil {
			if tl == lang && string(src) == text {
				return tree, src, nil
			}
			tree.Close()
			o.log.Debug("outline: shared tree is stale", zap.String("language", tl))
		}
	}

	grammar, _ := runtime.ParserForLanguage(lang)
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	src := []byte(text)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, fmt.Errorf("outline: parse: %w", err)
	}
	return tree, src, nil
}

func extractSymbols(root *sitter.Node, src []byte, lang, pattern string) ([]*store.Symbol, error) {
	grammar, _ := runtime.ParserForLanguage(lang)
	q, err := sitter.NewQuery([]byte(pattern), grammar)
	if err != nil {
		return nil, fmt.Errorf("query for %s: %w", lang, err)
	}
	defer q.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q, root)

	var syms []*store.Symbol
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		var decl, name *sitter.Node
		var kind string
		for _, c := range match.Captures {
			capture := q.CaptureNameForId(c.Index)
			if capture == "name" {
				name = c.Node
			} else {
				decl, kind = c.Node, capture
			}
		}
		if decl == nil || name == nil {
			continue
		}
		start, end := decl.StartPoint(), decl.EndPoint()
		sym := &store.Symbol{
			Name:      name.Content(src),
			Kind:      kind,
			StartLine: int(start.Row),
			StartCol:  int(start.Column),
			EndLine:   int(end.Row),
			EndCol:    int(end.Column),
		}
		if lang == "go" && isExported(sym.Name) {
			sym.Modifiers = []string{"exported"}
		}
		syms = append(syms, sym)
	}
	return syms, nil
}

func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
