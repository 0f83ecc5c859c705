// Package relationships hydrates association trees onto query results.
//
// Two strategies share one record graph model. Preload issues one statement
// per tree level (chunked by parent key) and stitches children onto their
// parents; join-load compiles the whole tree into a single LEFT-joined
// statement and walks each row top-down. Both produce the same graph for
// the same data.
package relationships

import (
	"go.uber.org/zap"

	"github.com/conduit-lang/assoc/internal/orm/query"
)

const (
	// DefaultBatchSize bounds the parent keys bound into one preload statement
	DefaultBatchSize = 500

	// DefaultMaxDepth bounds preload tree nesting
	DefaultMaxDepth = 10

	parentKeyColumn = "__parent_key"
	throughPrefix   = "__through__"
)

// Loader implements query.Loader
type Loader struct {
	batchSize int
	maxDepth  int
	logger    *zap.Logger
}

var _ query.Loader = (*Loader)(nil)

// Option configures a Loader
type Option func(*Loader)

// WithBatchSize sets how many parent keys one preload statement binds.
// Non-positive values keep the default.
func WithBatchSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithMaxDepth sets the deepest preload level allowed
func WithMaxDepth(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxDepth = n
		}
	}
}

// WithLogger sets the loader's logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a relationship loader
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		batchSize: DefaultBatchSize,
		maxDepth:  DefaultMaxDepth,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BatchSize returns the configured batch size
func (l *Loader) BatchSize() int {
	return l.batchSize
}

// chunk splits keys into slices of at most n
func chunk(keys []any, n int) [][]any {
	var out [][]any
	for len(keys) > n {
		out = append(out, keys[:n:n])
		keys = keys[n:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
