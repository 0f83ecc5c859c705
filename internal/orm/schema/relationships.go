package schema

import (
	"errors"
	"fmt"

	"github.com/go-openapi/inflect"
)

// SourceOf finds the association a through association continues into on
// its through target. An explicit Source must exist as declared; otherwise
// the association's own name is tried, then its singular and plural forms.
func SourceOf(throughTarget *Model, a *Association) (*Association, bool) {
	if a.Source != "" {
		src, ok := throughTarget.Associations[a.Source]
		return src, ok
	}
	for _, name := range []string{a.Name, inflect.Singularize(a.Name), inflect.Pluralize(a.Name)} {
		if src, ok := throughTarget.Associations[name]; ok {
			return src, true
		}
	}
	return nil, false
}

// SourceName is the name SourceOf looks up first
func SourceName(a *Association) string {
	if a.Source != "" {
		return a.Source
	}
	return a.Name
}

// TargetOf resolves the model an association ends on, following through
// chains. It is the eager counterpart of the check a join performs lazily.
func (r *Registry) TargetOf(owner *Model, a *Association) (*Model, error) {
	return r.targetOf(owner, a, make(map[string]bool))
}

func (r *Registry) targetOf(owner *Model, a *Association, visiting map[string]bool) (*Model, error) {
	key := owner.Name + "." + a.Name
	if visiting[key] {
		return nil, &AssociationError{Err: ErrThroughAssociationCycle, Model: owner.Name, Association: a.Name, Through: a.Through}
	}
	visiting[key] = true
	defer delete(visiting, key)

	if !a.IsThrough() {
		if a.IsPolymorphicBelongsTo() {
			return nil, &AssociationError{Err: ErrCannotJoinPolymorphicBelongsTo, Model: owner.Name, Association: a.Name}
		}
		target, err := r.Model(a.Target)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", owner.Name, a.Name, err)
		}
		return target, nil
	}

	through, ok := owner.Associations[a.Through]
	if !ok {
		return nil, &AssociationError{Err: ErrMissingThroughAssociation, Model: owner.Name, Association: a.Name, Through: a.Through}
	}
	if through.IsPolymorphicBelongsTo() {
		return nil, &AssociationError{Err: ErrCannotAssociateThroughPolymorphic, Model: owner.Name, Association: a.Name, Through: a.Through}
	}
	throughTarget, err := r.targetOf(owner, through, visiting)
	if err != nil {
		return nil, err
	}

	src, ok := SourceOf(throughTarget, a)
	if !ok {
		return nil, &AssociationError{
			Err:           ErrMissingThroughAssociationSource,
			Model:         owner.Name,
			Association:   a.Name,
			Through:       a.Through,
			ThroughTarget: throughTarget.Name,
			Source:        SourceName(a),
		}
	}
	if src.IsPolymorphicBelongsTo() {
		return nil, &AssociationError{Err: ErrCannotAssociateThroughPolymorphic, Model: owner.Name, Association: a.Name, Through: a.Through, Source: src.Name}
	}
	return r.targetOf(throughTarget, src, visiting)
}

// ValidateAll walks every association chain and reports every problem a
// join would hit. Nothing calls it implicitly; queries validate lazily.
func (r *Registry) ValidateAll() error {
	var errs []error
	for _, name := range r.Names() {
		m, err := r.Model(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, assocName := range m.AssociationNames() {
			a := m.Associations[assocName]
			if a.IsPolymorphicBelongsTo() {
				for _, t := range a.Targets {
					if _, err := r.Model(t); err != nil {
						errs = append(errs, fmt.Errorf("%s.%s: %w", m.Name, a.Name, err))
					}
				}
				continue
			}
			if _, err := r.TargetOf(m, a); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
