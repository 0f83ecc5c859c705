// Package transaction carries an ambient transaction through a context so
// that every statement of one resolution, including each preload level,
// runs on the same connection and sees the same snapshot.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrTransactionDone is returned when a finished transaction is used again
	ErrTransactionDone = errors.New("transaction already finished")
)

// IsolationLevel selects the isolation of a new transaction
type IsolationLevel int

const (
	// Default leaves isolation to the driver
	Default IsolationLevel = iota
	// ReadCommitted prevents dirty reads
	ReadCommitted
	// RepeatableRead gives every statement the transaction's first snapshot
	RepeatableRead
	// Serializable provides full isolation
	Serializable
)

// String returns the SQL spelling of the level
func (l IsolationLevel) String() string {
	switch l {
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "DEFAULT"
	}
}

func (l IsolationLevel) txOptions(readOnly bool) *sql.TxOptions {
	opts := &sql.TxOptions{ReadOnly: readOnly}
	switch l {
	case ReadCommitted:
		opts.Isolation = sql.LevelReadCommitted
	case RepeatableRead:
		opts.Isolation = sql.LevelRepeatableRead
	case Serializable:
		opts.Isolation = sql.LevelSerializable
	}
	if !readOnly && opts.Isolation == sql.LevelDefault {
		return nil
	}
	return opts
}

// Transaction is an open transaction usable as a query connection
type Transaction struct {
	tx        *sql.Tx
	ctx       context.Context
	isolation IsolationLevel
	done      atomic.Bool
}

// Manager opens transactions on a database
type Manager struct {
	db *sql.DB
}

// NewManager creates a transaction manager
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// Begin opens a transaction with the given isolation
func (m *Manager) Begin(ctx context.Context, level IsolationLevel) (*Transaction, error) {
	return m.begin(ctx, level, false)
}

// BeginSnapshot opens a read-only repeatable-read transaction, so a
// multi-statement resolution reads one consistent snapshot
func (m *Manager) BeginSnapshot(ctx context.Context) (*Transaction, error) {
	return m.begin(ctx, RepeatableRead, true)
}

func (m *Manager) begin(ctx context.Context, level IsolationLevel, readOnly bool) (*Transaction, error) {
	tx, err := m.db.BeginTx(ctx, level.txOptions(readOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{tx: tx, ctx: ctx, isolation: level}, nil
}

// Run calls fn with a context carrying a new transaction. The transaction
// commits when fn succeeds and rolls back when it fails or panics.
func (m *Manager) Run(ctx context.Context, level IsolationLevel, fn func(ctx context.Context) error) error {
	tx, err := m.Begin(ctx, level)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx.Context()); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// Context returns the transaction's context with the transaction attached
func (t *Transaction) Context() context.Context {
	return WithContext(t.ctx, t)
}

// Tx returns the underlying sql.Tx
func (t *Transaction) Tx() *sql.Tx {
	return t.tx
}

// IsolationLevel returns the transaction's isolation
func (t *Transaction) IsolationLevel() IsolationLevel {
	return t.isolation
}

// QueryContext runs a query inside the transaction
func (t *Transaction) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if t.done.Load() {
		return nil, ErrTransactionDone
	}
	return t.tx.QueryContext(ctx, query, args...)
}

// ExecContext runs a statement inside the transaction
func (t *Transaction) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.done.Load() {
		return nil, ErrTransactionDone
	}
	return t.tx.ExecContext(ctx, query, args...)
}

// Commit commits the transaction
func (t *Transaction) Commit() error {
	if !t.done.CompareAndSwap(false, true) {
		return ErrTransactionDone
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction. Rolling back a finished transaction
// is a no-op.
func (t *Transaction) Rollback() error {
	if !t.done.CompareAndSwap(false, true) {
		return nil
	}
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// Done reports whether the transaction has committed or rolled back
func (t *Transaction) Done() bool {
	return t.done.Load()
}
