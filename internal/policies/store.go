// Package policies keeps named JSON policy documents that agents consult,
// such as spending caps or approval rules.
package policies

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flitsinc/agentboard/internal/idgen"
	"github.com/flitsinc/agentboard/internal/state"
)

type Policy struct {
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type Store struct {
	store *state.Store
}

func NewStore(store *state.Store) *Store {
	return &Store{store: store}
}

func (s *Store) Get(ctx context.Context, key string) (Policy, error) {
	p := Policy{Key: key}
	var value, updatedAt string
	err := s.store.DB().QueryRowContext(ctx, `SELECT value, updated_at FROM policies WHERE key = ?`, key).Scan(&value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Policy{}, state.NotFound("policy", key)
	}
	if err != nil {
		return Policy{}, fmt.Errorf("get policy: %w", err)
	}
	p.Value = state.DecodeMap(value)
	p.UpdatedAt = state.ParseTime(updatedAt)
	return p, nil
}

// Set replaces the policy document stored under key.
func (s *Store) Set(ctx context.Context, key string, value map[string]any) (Policy, error) {
	if key == "" {
		return Policy{}, state.Invalid("policy", "key")
	}
	if err := idgen.ValidateKey(key); err != nil {
		return Policy{}, state.Rejected("policy", "key", key, err.Error())
	}
	if value == nil {
		value = map[string]any{}
	}
	encoded, err := state.EncodeMap(value)
	if err != nil {
		return Policy{}, fmt.Errorf("encode policy: %w", err)
	}
	now := s.store.Now()
	_, err = s.store.DB().ExecContext(ctx, `
		INSERT INTO policies (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, encoded, state.FormatTime(now))
	if err != nil {
		return Policy{}, fmt.Errorf("set policy: %w", err)
	}
	return Policy{Key: key, Value: value, UpdatedAt: now}, nil
}

func (s *Store) List(ctx context.Context) ([]Policy, error) {
	rows, err := s.store.DB().QueryContext(ctx, `SELECT key, value, updated_at FROM policies ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	out := []Policy{}
	for rows.Next() {
		var p Policy
		var value, updatedAt string
		if err := rows.Scan(&p.Key, &value, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		p.Value = state.DecodeMap(value)
		p.UpdatedAt = state.ParseTime(updatedAt)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}
	return out, nil
}
