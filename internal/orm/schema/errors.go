package schema

import (
	"errors"
	"strings"
)

var (
	// ErrJoinAttemptedOnMissingAssociation is returned when a join path names
	// an association the model does not declare
	ErrJoinAttemptedOnMissingAssociation = errors.New("join attempted on missing association")

	// ErrMissingThroughAssociation is returned when a through association
	// names a through association the model does not declare
	ErrMissingThroughAssociation = errors.New("missing through association")

	// ErrMissingThroughAssociationSource is returned when the source of a
	// through association is not declared on the through target
	ErrMissingThroughAssociationSource = errors.New("missing through association source")

	// ErrCannotJoinPolymorphicBelongsTo is returned when a polymorphic
	// belongs-to is joined directly; its target table is only known per row
	ErrCannotJoinPolymorphicBelongsTo = errors.New("cannot join polymorphic belongs-to association")

	// ErrCannotAssociateThroughPolymorphic is returned when a through chain
	// passes through a polymorphic belongs-to
	ErrCannotAssociateThroughPolymorphic = errors.New("cannot associate through polymorphic association")

	// ErrMissingRequiredAssociationAndClause is returned when a column the
	// association marks required is not constrained at the join site
	ErrMissingRequiredAssociationAndClause = errors.New("missing required association and clause")

	// ErrThroughAssociationCycle is returned when a through chain revisits
	// an association it already passed through
	ErrThroughAssociationCycle = errors.New("through association cycle")

	// ErrUnknownModel is returned for an unregistered model name
	ErrUnknownModel = errors.New("unknown model")

	// ErrUnknownAssociation is returned for an undeclared association name
	ErrUnknownAssociation = errors.New("unknown association")

	// ErrModelAlreadyRegistered is returned when a model name is registered twice
	ErrModelAlreadyRegistered = errors.New("model already registered")

	// ErrInvalidModel is returned for a structurally invalid declaration
	ErrInvalidModel = errors.New("invalid model declaration")
)

// AssociationError ties an association failure to the declaration it
// occurred on. It unwraps to one of the sentinel errors above.
type AssociationError struct {
	Err         error
	Model       string
	Association string

	// Through and ThroughTarget name the through association and its target
	// model when the failure happened while bridging
	Through       string
	ThroughTarget string
	Source        string

	// Column is set for required-clause failures
	Column string
}

// Error implements the error interface
func (e *AssociationError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Err.Error())
	sb.WriteString(": ")
	sb.WriteString(e.Model)
	if e.Association != "" {
		sb.WriteString(".")
		sb.WriteString(e.Association)
	}
	if e.Through != "" {
		sb.WriteString(" through ")
		sb.WriteString(e.Through)
	}
	if e.Source != "" {
		sb.WriteString(" (source ")
		sb.WriteString(e.Source)
		if e.ThroughTarget != "" {
			sb.WriteString(" not found on ")
			sb.WriteString(e.ThroughTarget)
		}
		sb.WriteString(")")
	}
	if e.Column != "" {
		sb.WriteString(" column ")
		sb.WriteString(e.Column)
	}
	return sb.String()
}

// Unwrap returns the sentinel error
func (e *AssociationError) Unwrap() error {
	return e.Err
}
