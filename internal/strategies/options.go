package strategies

import (
	"go.uber.org/zap"

	"github.com/jward/reconciler/internal/diag"
	"github.com/jward/reconciler/internal/runtime"
)

type options struct {
	log      *zap.Logger
	language string
	sink     diag.Sink
	dir      string
	trees    TreeSource
}

func newOptions(opts []Option) options {
	o := options{
		log: zap.NewNop(),
		dir: runtime.ChecksDir,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a strategy.
type Option func(*options)

// WithLogger sets the strategy's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithLanguage fixes the language instead of deriving it from the input name.
func WithLanguage(lang string) Option {
	return func(o *options) {
		o.language = lang
	}
}

// WithSink sets where diagnostics are published. Without a sink they are
// computed and dropped.
func WithSink(s diag.Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithChecksDir sets the directory Script lists check scripts from.
func WithChecksDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithTrees lets Outline reuse the trees another strategy parsed.
func WithTrees(ts TreeSource) Option {
	return func(o *options) {
		o.trees = ts
	}
}

// publishKey is the input name diagnostics and buffers are filed under.
func publishKey(name string) string {
	if name == "" {
		return "-"
	}
	return name
}
