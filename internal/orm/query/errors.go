package query

import "errors"

var (
	// ErrNotFound is returned by First, Last and Find when nothing matches
	ErrNotFound = errors.New("record not found")

	// ErrInvalidPathToken is returned for a join or preload path token that is
	// neither an association name, a where map nor a nested branch
	ErrInvalidPathToken = errors.New("invalid path token")

	// ErrDuplicateAlias is returned when an explicit alias is used twice
	ErrDuplicateAlias = errors.New("duplicate join alias")

	// ErrAliasConflict is returned when one alias names two different associations
	ErrAliasConflict = errors.New("alias names two different associations")

	// ErrJoinLoadWithLimitOrOffset is returned when a join-load query carries
	// a row limit or offset
	ErrJoinLoadWithLimitOrOffset = errors.New("join-load cannot be combined with limit or offset")

	// ErrNoDatabase is returned when a terminal runs without a connection
	ErrNoDatabase = errors.New("no database connection")

	// ErrNoLoader is returned when a preload or join-load runs without a loader
	ErrNoLoader = errors.New("no relationship loader configured")

	// ErrNoColumns is returned when a model without declared columns has to
	// be projected column by column
	ErrNoColumns = errors.New("model declares no columns")
)
