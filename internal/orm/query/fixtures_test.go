package query

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/assoc/internal/orm/clause"
	"github.com/conduit-lang/assoc/internal/orm/schema"
)

// blogRegistry declares a blog domain covering direct, through,
// polymorphic, STI and scoped associations.
func blogRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry()
	models := []*schema.Model{
		{
			Name:    "Author",
			Columns: []string{"id", "name"},
			Associations: map[string]*schema.Association{
				"posts":    {Kind: schema.HasMany},
				"pictures": {Kind: schema.HasMany, Polymorphic: true, ForeignKey: "imageable_id"},
			},
		},
		{
			Name:       "Post",
			Columns:    []string{"id", "author_id", "title", "status", "deleted_at"},
			SoftDelete: "deleted_at",
			Associations: map[string]*schema.Association{
				"author":       {Kind: schema.BelongsTo},
				"comments":     {Kind: schema.HasMany, Order: []clause.Order{{Column: "id", Desc: true}}},
				"taggings":     {Kind: schema.HasMany},
				"tags":         {Kind: schema.HasMany, Through: "taggings", ThroughColumns: []string{"position"}},
				"commenters":   {Kind: schema.HasMany, Through: "comments", Source: "author"},
				"pictures":     {Kind: schema.HasMany, Polymorphic: true, ForeignKey: "imageable_id"},
				"translations": {Kind: schema.HasMany, And: clause.Map{"locale": clause.Required}},
			},
		},
		{
			Name:    "Comment",
			Columns: []string{"id", "post_id", "author_id", "body", "approved"},
			DefaultScopes: []schema.Scope{
				{Name: "approved", Where: clause.Map{"approved": true}},
			},
			Associations: map[string]*schema.Association{
				"post":   {Kind: schema.BelongsTo},
				"author": {Kind: schema.BelongsTo},
			},
		},
		{
			Name:    "Tagging",
			Columns: []string{"id", "post_id", "tag_id", "position"},
			Associations: map[string]*schema.Association{
				"post": {Kind: schema.BelongsTo},
				"tag":  {Kind: schema.BelongsTo},
			},
		},
		{Name: "Tag", Columns: []string{"id", "name"}},
		{
			Name:    "Picture",
			Columns: []string{"id", "imageable_id", "imageable_type", "url"},
			Associations: map[string]*schema.Association{
				"imageable": {Kind: schema.BelongsTo, Polymorphic: true, Targets: []string{"Author", "Post"}},
			},
		},
		{Name: "Translation", Columns: []string{"id", "post_id", "locale", "body"}},

		// single-table inheritance
		{
			Name: "Garage",
			Associations: map[string]*schema.Association{
				"cars": {Kind: schema.HasMany},
			},
		},
		{Name: "Vehicle"},
		{Name: "Car", STIBase: "Vehicle"},

		// pets and their collars
		{
			Name:  "Person",
			Table: "people",
			Associations: map[string]*schema.Association{
				"pets":          {Kind: schema.HasMany},
				"collars":       {Kind: schema.HasMany, Through: "pets"},
				"hello_collars": {Kind: schema.HasMany, Through: "pets", Source: "collars", And: clause.Map{"tag_name": "hello"}},
			},
		},
		{
			Name: "Pet",
			Associations: map[string]*schema.Association{
				"person":  {Kind: schema.BelongsTo},
				"collars": {Kind: schema.HasMany},
			},
		},
		{Name: "Collar", Columns: []string{"id", "pet_id", "tag_name"}},

		// two levels of bridging
		{
			Name: "Org",
			Associations: map[string]*schema.Association{
				"teams": {Kind: schema.HasMany},
				"users": {Kind: schema.HasMany, Through: "teams"},
			},
		},
		{
			Name: "Team",
			Associations: map[string]*schema.Association{
				"memberships": {Kind: schema.HasMany},
				"users":       {Kind: schema.HasMany, Through: "memberships", Order: []clause.Order{{Column: "name"}}},
			},
		},
		{
			Name: "Membership",
			Associations: map[string]*schema.Association{
				"user": {Kind: schema.BelongsTo},
			},
		},
		{Name: "User"},

		// misdeclared chains
		{
			Name: "A",
			Associations: map[string]*schema.Association{
				"cs": {Kind: schema.HasMany, Target: "C", ForeignKey: "a_id"},
				"bs": {Kind: schema.HasMany, Through: "cs", Source: "d"},
			},
		},
		{Name: "C"},
		{
			Name: "Loop",
			Associations: map[string]*schema.Association{
				"a": {Kind: schema.HasMany, Through: "b"},
				"b": {Kind: schema.HasMany, Through: "a"},
			},
		},
	}
	for _, m := range models {
		require.NoError(t, reg.Register(m))
	}
	return reg
}

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}
