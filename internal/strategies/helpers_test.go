package strategies

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/require"

	"github.com/jward/reconciler/internal/runtime"
)

func mustParse(t *testing.T, lang, src string) *sitter.Node {
	t.Helper()
	grammar, ok := runtime.ParserForLanguage(lang)
	require.True(t, ok, lang)
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree.RootNode()
}
