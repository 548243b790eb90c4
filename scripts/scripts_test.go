package scripts_test

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/reconciler/internal/diag"
	"github.com/jward/reconciler/internal/runtime"
	"github.com/jward/reconciler/scripts"
)

// runCheck runs the embedded check name over text and returns what it
// reported.
func runCheck(t *testing.T, name, text, language string) []diag.Diagnostic {
	t.Helper()
	rt := runtime.NewRuntime("", runtime.WithRuntimeFS(scripts.FS))

	var got []diag.Diagnostic
	extras := map[string]any{
		"text":        text,
		"buffer_name": "test",
		"language":    language,
		"report":      runtime.MakeReportFn("script:"+name, func(d diag.Diagnostic) { got = append(got, d) }),
	}
	require.NoError(t, rt.RunScript(context.Background(), runtime.CheckScriptPath(name), extras))
	return got
}

func TestEmbeddedChecks_AllValidate(t *testing.T) {
	rt := runtime.NewRuntime("", runtime.WithRuntimeFS(scripts.FS))
	paths, err := rt.ListScripts(runtime.ChecksDir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"checks/go_panic.risor",
		"checks/long_lines.risor",
		"checks/todo.risor",
		"checks/trailing_whitespace.risor",
	}, paths)

	for _, p := range paths {
		assert.NoError(t, rt.Validate(context.Background(), p), p)
	}

	entries, err := fs.ReadDir(scripts.FS, "checks")
	require.NoError(t, err)
	assert.Len(t, entries, len(paths))
}

func TestTodo(t *testing.T) {
	got := runCheck(t, "todo", "package a\n\n// TODO: tidy\nvar x = 1 // FIXME\n", "go")
	require.Len(t, got, 2)

	assert.Equal(t, diag.Diagnostic{
		Source: "script:todo", Severity: diag.SeverityWarning,
		Line: 3, Col: 4, EndLine: 3, EndCol: 8, Code: "todo", Message: "TODO marker",
	}, got[0])
	assert.Equal(t, 4, got[1].Line)
	assert.Equal(t, "fixme", got[1].Code)
}

func TestTodo_Clean(t *testing.T) {
	assert.Empty(t, runCheck(t, "todo", "package a\n", "go"))
}

func TestLongLines(t *testing.T) {
	text := "short\n" + strings.Repeat("x", 130) + "\n"
	got := runCheck(t, "long_lines", text, "")
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Line)
	assert.Equal(t, 121, got[0].Col)
	assert.Equal(t, diag.SeverityInfo, got[0].Severity)
	assert.Equal(t, "line is 130 bytes long, limit is 120", got[0].Message)
}

func TestTrailingWhitespace(t *testing.T) {
	got := runCheck(t, "trailing_whitespace", "a \nb\nc\t\n", "")
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Line)
	assert.Equal(t, 2, got[0].Col)
	assert.Equal(t, 3, got[1].Line)
}

func TestGoPanic(t *testing.T) {
	src := "package a\n\nfunc f() {\n\tpanic(\"no\")\n}\n"
	got := runCheck(t, "go_panic", src, "go")
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Line)
	assert.Equal(t, 2, got[0].Col)
	assert.Equal(t, "explicit panic", got[0].Message)

	assert.Empty(t, runCheck(t, "go_panic", src, "python"), "only Go buffers are inspected")
}
