// Package orm wires a model registry, a database handle and the relationship
// loader into ready-to-use queries.
//
//	o, err := orm.Open(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer o.Close()
//
//	posts, err := o.Query("Post").
//		Where(clause.Map{"status": "published"}).
//		Preload("comments", "author").
//		All(ctx)
package orm

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/assoc/internal/config"
	"github.com/conduit-lang/assoc/internal/logging"
	"github.com/conduit-lang/assoc/internal/orm/clause"
	"github.com/conduit-lang/assoc/internal/orm/db"
	"github.com/conduit-lang/assoc/internal/orm/query"
	"github.com/conduit-lang/assoc/internal/orm/relationships"
	"github.com/conduit-lang/assoc/internal/orm/schema"
	"github.com/conduit-lang/assoc/internal/orm/transaction"
)

// ORM holds everything a query needs to run
type ORM struct {
	registry *schema.Registry
	conn     *sql.DB
	dialect  clause.Dialect
	logger   *zap.Logger
	loader   *relationships.Loader
	txm      *transaction.Manager
	owned    bool
}

// Option configures an ORM
type Option func(*options)

type options struct {
	dialect    clause.Dialect
	logger     *zap.Logger
	loaderOpts []relationships.Option
}

// WithDialect sets the SQL dialect. Postgres is the default.
func WithDialect(d clause.Dialect) Option {
	return func(o *options) { o.dialect = d }
}

// WithLogger sets the logger shared by queries and the loader
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLoaderOptions tunes the relationship loader
func WithLoaderOptions(opts ...relationships.Option) Option {
	return func(o *options) { o.loaderOpts = append(o.loaderOpts, opts...) }
}

// New wires reg and conn. conn may be nil for compile-only use; terminal
// operations then fail with query.ErrNoDatabase unless a transaction is
// carried by the context.
func New(reg *schema.Registry, conn *sql.DB, opts ...Option) *ORM {
	o := options{dialect: clause.Postgres{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	loaderOpts := append([]relationships.Option{relationships.WithLogger(o.logger)}, o.loaderOpts...)
	m := &ORM{
		registry: reg,
		conn:     conn,
		dialect:  o.dialect,
		logger:   o.logger,
		loader:   relationships.NewLoader(loaderOpts...),
	}
	if conn != nil {
		m.txm = transaction.NewManager(conn)
	}
	return m
}

// Open builds an ORM from configuration: the logger, the model file and
// the database connection. The ORM owns the connection and closes it.
func Open(ctx context.Context, cfg *config.Config) (*ORM, error) {
	logger, err := logging.New(cfg.Log.LoggingOptions())
	if err != nil {
		return nil, err
	}

	reg := schema.NewRegistry()
	if err := schema.LoadInto(reg, cfg.Models); err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}

	h, err := db.Open(ctx, cfg.Database.URL, cfg.Database.DBOptions())
	if err != nil {
		return nil, err
	}
	logger.Info("connected",
		zap.String("driver", h.Driver),
		zap.Int("models", reg.Count()))

	o := New(reg, h.DB,
		WithDialect(h.Dialect),
		WithLogger(logger),
		WithLoaderOptions(
			relationships.WithBatchSize(cfg.Preload.BatchSize),
			relationships.WithMaxDepth(cfg.Preload.MaxDepth),
		))
	o.owned = true
	return o, nil
}

// Query starts a query against model
func (o *ORM) Query(model string) query.Query {
	opts := []query.Option{
		query.WithDialect(o.dialect),
		query.WithLogger(o.logger),
		query.WithLoader(o.loader),
	}
	if o.conn != nil {
		opts = append(opts, query.WithDB(o.conn))
	}
	return query.New(o.registry, model, opts...)
}

// Transaction runs fn in a transaction at level. Queries run with the
// context fn receives use the transaction. fn's error or a panic rolls it
// back.
func (o *ORM) Transaction(ctx context.Context, level transaction.IsolationLevel, fn func(ctx context.Context) error) error {
	if o.txm == nil {
		return query.ErrNoDatabase
	}
	return o.txm.Run(ctx, level, fn)
}

// Snapshot runs fn in a read-only repeatable-read transaction, so every
// preload level reads the same snapshot.
func (o *ORM) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if o.txm == nil {
		return query.ErrNoDatabase
	}
	tx, err := o.txm.BeginSnapshot(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx.Context()); err != nil {
		return err
	}
	return tx.Commit()
}

// Registry returns the model registry
func (o *ORM) Registry() *schema.Registry { return o.registry }

// DB returns the connection, or nil
func (o *ORM) DB() *sql.DB { return o.conn }

// Dialect returns the SQL dialect
func (o *ORM) Dialect() clause.Dialect { return o.dialect }

// Logger returns the shared logger
func (o *ORM) Logger() *zap.Logger { return o.logger }

// Close flushes the logger and closes a connection opened by Open
func (o *ORM) Close() error {
	_ = o.logger.Sync()
	if o.owned && o.conn != nil {
		return o.conn.Close()
	}
	return nil
}
