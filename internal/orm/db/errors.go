package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Store errors a read query can surface
var (
	// ErrUndefinedTable is returned when a statement names a missing table
	ErrUndefinedTable = errors.New("undefined table")

	// ErrUndefinedColumn is returned when a statement names a missing column
	ErrUndefinedColumn = errors.New("undefined column")

	// ErrSerializationFailure is returned when a serializable or repeatable
	// read transaction must be retried
	ErrSerializationFailure = errors.New("serialization failure")

	// ErrQueryCanceled is returned when the server or the context canceled
	// the statement
	ErrQueryCanceled = errors.New("query canceled")
)

// ConvertError maps driver errors from pgx and lib/pq onto the sentinels
// above. Other errors are returned unchanged.
func ConvertError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrQueryCanceled, err)
	}

	code, detail := "", ""
	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		code, detail = pgErr.Code, pgErr.Message
	case errors.As(err, &pqErr):
		code, detail = string(pqErr.Code), pqErr.Message
	default:
		return err
	}

	switch code {
	case "42P01": // undefined_table
		return fmt.Errorf("%w: %s", ErrUndefinedTable, detail)
	case "42703": // undefined_column
		return fmt.Errorf("%w: %s", ErrUndefinedColumn, detail)
	case "40001": // serialization_failure
		return fmt.Errorf("%w: %s", ErrSerializationFailure, detail)
	case "57014": // query_canceled
		return fmt.Errorf("%w: %s", ErrQueryCanceled, detail)
	}
	return err
}

// IsRetryable reports whether a transaction failing with err can be retried
func IsRetryable(err error) bool {
	return errors.Is(ConvertError(err), ErrSerializationFailure)
}
