package schema

import (
	"errors"
	"reflect"
	"testing"

	"github.com/conduit-lang/assoc/internal/orm/clause"
)

func TestParseAssociationKind(t *testing.T) {
	tests := []struct {
		in   string
		want AssociationKind
	}{
		{"belongs_to", BelongsTo},
		{"has_one", HasOne},
		{"has_many", HasMany},
		{" Has_Many ", HasMany},
	}

	for _, tt := range tests {
		got, err := ParseAssociationKind(tt.in)
		if err != nil {
			t.Fatalf("ParseAssociationKind(%q): unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseAssociationKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if got.String() != tt.want.String() {
			t.Errorf("String() = %s, want %s", got.String(), tt.want.String())
		}
	}

	if _, err := ParseAssociationKind("has_and_belongs_to_many"); !errors.Is(err, ErrInvalidModel) {
		t.Errorf("expected ErrInvalidModel, got %v", err)
	}
}

func TestModelScopes(t *testing.T) {
	t.Run("soft delete scope is appended last", func(t *testing.T) {
		m := NewModel("Pet")
		m.DefaultScopes = []Scope{{Name: "alive", Where: clause.Map{"status": "alive"}}}
		m.SoftDelete = "deleted_at"

		scopes := m.Scopes()
		if len(scopes) != 2 {
			t.Fatalf("expected 2 scopes, got %d", len(scopes))
		}
		if scopes[0].Name != "alive" {
			t.Errorf("expected alive first, got %s", scopes[0].Name)
		}
		if scopes[1].Name != SoftDeleteScope {
			t.Errorf("expected %s last, got %s", SoftDeleteScope, scopes[1].Name)
		}
		v, ok := scopes[1].Where["deleted_at"]
		if !ok || v != nil {
			t.Errorf("soft delete scope should require deleted_at IS NULL, got %v", scopes[1].Where)
		}
	})

	t.Run("no scopes", func(t *testing.T) {
		if got := NewModel("Pet").Scopes(); len(got) != 0 {
			t.Errorf("expected no scopes, got %v", got)
		}
	})
}

func TestModelBaseName(t *testing.T) {
	dog := NewModel("Dog")
	dog.STIBase = "Pet"
	if dog.BaseName() != "Pet" || !dog.IsSTIChild() {
		t.Errorf("STI child should report its base, got %s", dog.BaseName())
	}

	pet := NewModel("Pet")
	if pet.BaseName() != "Pet" || pet.IsSTIChild() {
		t.Errorf("base model should report itself, got %s", pet.BaseName())
	}
}

func TestAssociationHelpers(t *testing.T) {
	a := &Association{
		Name: "collars",
		Kind: HasMany,
		And: clause.Map{
			"tag_name": clause.Required,
			"locale":   clause.Passthrough,
			"color":    clause.Required,
			"size":     "large",
		},
		WithoutDefaultScopes: []string{"active"},
	}

	if got := a.RequiredColumns(); !reflect.DeepEqual(got, []string{"color", "tag_name"}) {
		t.Errorf("RequiredColumns() = %v", got)
	}
	if !a.ToMany() {
		t.Error("has_many should be to-many")
	}
	if a.IsThrough() {
		t.Error("association without through reported as through")
	}
	if !a.SkipsScope("active") || a.SkipsScope("soft_delete") {
		t.Error("SkipsScope should only match listed names")
	}

	poly := &Association{Name: "owner", Kind: BelongsTo, Polymorphic: true}
	if !poly.IsPolymorphicBelongsTo() {
		t.Error("expected polymorphic belongs_to")
	}
}

func TestAssociationErrorMessage(t *testing.T) {
	err := &AssociationError{
		Err:           ErrMissingThroughAssociationSource,
		Model:         "A",
		Association:   "b",
		Through:       "c",
		ThroughTarget: "C",
		Source:        "d",
	}

	want := "missing through association source: A.b through c (source d not found on C)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrMissingThroughAssociationSource) {
		t.Error("AssociationError should unwrap to its sentinel")
	}
}
