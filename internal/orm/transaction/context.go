package transaction

import (
	"context"
)

type contextKey string

const contextKeyTransaction contextKey = "assoc:transaction"

// FromContext returns the ambient transaction, if any
func FromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(contextKeyTransaction).(*Transaction)
	return tx, ok && tx != nil
}

// WithContext attaches tx to ctx
func WithContext(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, contextKeyTransaction, tx)
}
