package state

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so component helpers can
// run either standalone or inside a caller's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB

	mu  sync.RWMutex
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Now returns the store clock in UTC. All server-assigned timestamps come
// from here.
func (s *Store) Now() time.Time {
	s.mu.RLock()
	fn := s.now
	s.mu.RUnlock()
	return fn().UTC()
}

// SetClock replaces the store clock; nil restores time.Now.
func (s *Store) SetClock(fn func() time.Time) {
	if fn == nil {
		fn = time.Now
	}
	s.mu.Lock()
	s.now = fn
	s.mu.Unlock()
}

// WithTx runs fn inside a single transaction, committing when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithReadTx runs fn inside a read-only transaction so that every query it
// issues observes the same snapshot.
func (s *Store) WithReadTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	return fn(tx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
