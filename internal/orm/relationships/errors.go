package relationships

import "errors"

var (
	// ErrMaxDepthExceeded is returned when a preload tree nests deeper than
	// the loader allows
	ErrMaxDepthExceeded = errors.New("maximum preload depth exceeded")

	// ErrUnknownPolymorphicType is returned when a discriminator column names
	// a model the registry does not know
	ErrUnknownPolymorphicType = errors.New("unknown polymorphic type")

	// ErrForeignParents is returned when preload parents come from more than
	// one record graph
	ErrForeignParents = errors.New("preload parents belong to different graphs")
)
