package clause

import (
	"errors"
	"fmt"
)

var (
	// ErrCannotPassUndefinedAsAValueToAWhereClause is returned when a where
	// statement carries the Undefined sentinel. NULL must be spelled nil or Null.
	ErrCannotPassUndefinedAsAValueToAWhereClause = errors.New("cannot pass undefined as a value to a where clause")

	// ErrCannotNegateSimilarityClause is returned when a fuzzy similarity
	// operator appears in a negated where statement
	ErrCannotNegateSimilarityClause = errors.New("cannot negate similarity clause")

	// ErrMissingRequiredPassthroughForAssociationAndClause is returned when a
	// Passthrough sentinel has no value in the query's passthrough map
	ErrMissingRequiredPassthroughForAssociationAndClause = errors.New("missing required passthrough for association and clause")

	// ErrSimilarityNotAllowed is returned when a fuzzy operator is used where
	// similarity matching is not enabled
	ErrSimilarityNotAllowed = errors.New("similarity operator not allowed here")

	// ErrInvalidOperator is returned for an unknown comparison operator
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrInvalidOrder is returned when an order term cannot be parsed
	ErrInvalidOrder = errors.New("invalid order term")
)

// ClauseError ties a clause-value failure to the column it occurred on.
type ClauseError struct {
	Err    error
	Column string
}

// Error implements the error interface
func (e *ClauseError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Column)
}

// Unwrap returns the sentinel error
func (e *ClauseError) Unwrap() error {
	return e.Err
}
