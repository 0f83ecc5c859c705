package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/assoc/internal/config"
	"github.com/conduit-lang/assoc/internal/orm/clause"
	"github.com/conduit-lang/assoc/internal/orm/query"
	"github.com/conduit-lang/assoc/internal/orm/schema"
	"github.com/conduit-lang/assoc/pkg/orm"
)

// environment carries the persistent flags shared by every subcommand
type environment struct {
	configPath  string
	models      string
	databaseURL string
	logLevel    string
}

// config loads configuration and applies flag overrides
func (e *environment) config() (*config.Config, error) {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return nil, err
	}
	if e.models != "" {
		cfg.Models = e.models
	}
	if e.databaseURL != "" {
		cfg.Database.URL = e.databaseURL
	}
	if e.logLevel != "" {
		cfg.Log.Level = e.logLevel
	}
	return cfg, nil
}

// registry loads the configured model file
func (e *environment) registry(cfg *config.Config) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	if err := schema.LoadInto(reg, cfg.Models); err != nil {
		return nil, fmt.Errorf("failed to load models from %s: %w", cfg.Models, err)
	}
	return reg, nil
}

// queryFlags are the query-shaping flags shared by sql and query
type queryFlags struct {
	joins     []string
	leftJoins []string
	joinLoads []string
	filters   []string
	sorts     []string
	includes  []string
	distinct  []string
	limit     int
	offset    int
	unscoped  bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVar(&f.joins, "join", nil, "Inner-join a dotted association path (repeatable)")
	flags.StringArrayVar(&f.leftJoins, "left-join", nil, "Left-join a dotted association path (repeatable)")
	flags.StringArrayVarP(&f.filters, "filter", "f", nil, "Equality filter col=value; value null matches NULL, a,b is a list (repeatable)")
	flags.StringSliceVarP(&f.sorts, "sort", "s", nil, "Sort columns, '-' prefix for descending")
	flags.StringSliceVar(&f.distinct, "distinct", nil, "DISTINCT ON columns")
	flags.IntVar(&f.limit, "limit", 0, "Limit")
	flags.IntVar(&f.offset, "offset", 0, "Offset")
	flags.BoolVar(&f.unscoped, "unscoped", false, "Remove every default scope, on associations too")
}

func (f *queryFlags) registerLoading(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceVarP(&f.includes, "include", "i", nil, "Preload dotted association paths")
	flags.StringArrayVar(&f.joinLoads, "join-load", nil, "Join-load a dotted association path (repeatable)")
}

// build applies the flags to a query on model
func (f *queryFlags) build(o *orm.ORM, model string) (query.Query, error) {
	params := orm.Params{
		Filter:  make(map[string]string, len(f.filters)),
		Sort:    f.sorts,
		Include: f.includes,
		Limit:   f.limit,
		Offset:  f.offset,
	}
	for _, kv := range f.filters {
		col, value, ok := strings.Cut(kv, "=")
		if !ok || col == "" {
			return query.Query{}, fmt.Errorf("invalid filter %q: want col=value", kv)
		}
		params.Filter[col] = value
	}

	q := o.Query(model)
	if f.unscoped {
		q = q.RemoveAllDefaultScopes()
	}
	for _, p := range f.joins {
		q = q.InnerJoin(pathTokens(p)...)
	}
	for _, p := range f.leftJoins {
		q = q.LeftJoin(pathTokens(p)...)
	}
	for _, p := range f.joinLoads {
		q = q.JoinLoad(pathTokens(p)...)
	}
	for _, col := range f.distinct {
		q = q.Distinct(col)
	}
	return params.Apply(q)
}

// pathTokens splits "comments.author" into a chained path
func pathTokens(path string) []any {
	segments := strings.Split(path, ".")
	tokens := make([]any, len(segments))
	for i, s := range segments {
		tokens[i] = s
	}
	return tokens
}

// dialectFor maps a --dialect value onto a dialect
func dialectFor(name string) (clause.Dialect, error) {
	switch name {
	case "", "postgres", "pgx":
		return clause.Postgres{}, nil
	case "sqlite", "sqlite3":
		return clause.SQLite{}, nil
	}
	return nil, fmt.Errorf("unknown dialect %q: want postgres or sqlite3", name)
}
