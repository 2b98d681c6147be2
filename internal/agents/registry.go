package agents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/flitsinc/agentboard/internal/state"
)

// StaleThreshold is how long a busy agent may go without a report before it
// is displayed as idle.
const StaleThreshold = 20 * time.Minute

// PlaceholderRole is given to agents created implicitly rather than seeded.
const PlaceholderRole = "Agent"

type Registry struct {
	store  *state.Store
	roster Roster
	logger *slog.Logger
}

func NewRegistry(store *state.Store, roster Roster, logger *slog.Logger) *Registry {
	if roster == nil {
		roster = DefaultRoster()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{store: store, roster: roster, logger: logger}
}

func (r *Registry) Roster() Roster {
	return r.roster
}

// Seed creates missing roster agents and re-syncs name and role of existing
// ones in one transaction. Stored status and current task are preserved.
func (r *Registry) Seed(ctx context.Context) error {
	now := r.store.Now()
	created, synced := 0, 0
	err := r.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, m := range r.roster {
			existing, err := Load(ctx, tx, m.ID)
			if errors.Is(err, state.ErrNotFound) {
				status := m.Status
				if status == "" {
					status = StatusOffline
				}
				if !status.Valid() {
					return state.InvalidValue("roster", "status", string(status), statusNames())
				}
				if _, err := tx.ExecContext(ctx, `INSERT INTO agents (id, name, role, status, current_task, updated_at) VALUES (?, ?, ?, ?, NULL, ?)`,
					m.ID, m.Name, m.Role, string(status), state.FormatTime(now)); err != nil {
					return fmt.Errorf("seed agent %s: %w", m.ID, err)
				}
				created++
				continue
			}
			if err != nil {
				return err
			}
			if existing.Name == m.Name && existing.Role == m.Role {
				continue
			}
			if _, err := tx.ExecContext(ctx, `UPDATE agents SET name = ?, role = ?, updated_at = ? WHERE id = ?`,
				m.Name, m.Role, state.FormatTime(now), m.ID); err != nil {
				return fmt.Errorf("sync agent %s: %w", m.ID, err)
			}
			synced++
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Info("roster seeded", "agents", len(r.roster), "created", created, "synced", synced)
	return nil
}

// ListActive returns the roster agents in roster order. Stored agents that
// are not on the roster are skipped.
func (r *Registry) ListActive(ctx context.Context) ([]Agent, error) {
	return r.ListActiveFrom(ctx, r.store.DB())
}

func (r *Registry) ListActiveFrom(ctx context.Context, q state.Querier) ([]Agent, error) {
	if len(r.roster) == 0 {
		return []Agent{}, nil
	}
	ids := r.roster.IDs()
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT id, name, role, status, current_task, updated_at FROM agents WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Agent, len(ids))
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		byID[agent.ID] = agent
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}

	out := make([]Agent, 0, len(byID))
	for _, id := range ids {
		if agent, ok := byID[id]; ok {
			out = append(out, agent)
		}
	}
	return out, nil
}

func (r *Registry) Get(ctx context.Context, id string) (Agent, error) {
	return Load(ctx, r.store.DB(), id)
}

// Upsert creates the agent if needed and applies the supplied fields. The
// timestamp is refreshed on every call.
func (r *Registry) Upsert(ctx context.Context, id string, upd Update) (Agent, error) {
	var agent Agent
	err := r.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		agent, err = Apply(ctx, tx, id, upd, r.store.Now())
		return err
	})
	if err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// EffectiveStatus is the display status at now. A busy agent whose last
// report is older than StaleThreshold is shown idle with no task. The stored
// record is not changed.
func EffectiveStatus(agent Agent, now time.Time) (Status, *string) {
	if agent.Status.Busy() && !agent.UpdatedAt.IsZero() && now.Sub(agent.UpdatedAt) > StaleThreshold {
		return StatusIdle, nil
	}
	return agent.Status, agent.CurrentTask
}

func Load(ctx context.Context, q state.Querier, id string) (Agent, error) {
	row := q.QueryRowContext(ctx, `SELECT id, name, role, status, current_task, updated_at FROM agents WHERE id = ?`, id)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, state.NotFound("agent", id)
	}
	if err != nil {
		return Agent{}, err
	}
	return agent, nil
}

// Exists reports whether an agent with id is stored.
func Exists(ctx context.Context, q state.Querier, id string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM agents WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup agent: %w", err)
	}
	return n > 0, nil
}

// Ensure creates a placeholder agent for id when none is stored.
func Ensure(ctx context.Context, q state.Querier, id string, now time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO agents (id, name, role, status, current_task, updated_at) VALUES (?, ?, ?, ?, NULL, ?) ON CONFLICT(id) DO NOTHING`,
		id, id, PlaceholderRole, string(StatusOffline), state.FormatTime(now))
	if err != nil {
		return false, fmt.Errorf("ensure agent: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Apply is the upsert body, usable inside a caller's transaction.
func Apply(ctx context.Context, q state.Querier, id string, upd Update, now time.Time) (Agent, error) {
	if strings.TrimSpace(id) == "" {
		return Agent{}, state.Invalid("agent", "id")
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return Agent{}, state.InvalidValue("agent", "status", string(*upd.Status), statusNames())
	}

	next := Agent{ID: id, Name: id, Role: PlaceholderRole, Status: StatusOffline}
	existing, err := Load(ctx, q, id)
	switch {
	case err == nil:
		next = existing
	case !errors.Is(err, state.ErrNotFound):
		return Agent{}, err
	}

	if upd.Name != nil && *upd.Name != "" {
		next.Name = *upd.Name
	}
	if upd.Role != nil && *upd.Role != "" {
		next.Role = *upd.Role
	}
	if upd.Status != nil && *upd.Status != "" {
		next.Status = *upd.Status
	}
	next.CurrentTask = upd.CurrentTask.Or(next.CurrentTask)
	next.UpdatedAt = now

	_, err = q.ExecContext(ctx, `
		INSERT INTO agents (id, name, role, status, current_task, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			status = excluded.status,
			current_task = excluded.current_task,
			updated_at = excluded.updated_at
	`, next.ID, next.Name, next.Role, string(next.Status), state.NullString(next.CurrentTask), state.FormatTime(now))
	if err != nil {
		return Agent{}, fmt.Errorf("upsert agent: %w", err)
	}
	return next, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (Agent, error) {
	var agent Agent
	var status, updatedAt string
	var task sql.NullString
	if err := row.Scan(&agent.ID, &agent.Name, &agent.Role, &status, &task, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, err
		}
		return Agent{}, fmt.Errorf("scan agent: %w", err)
	}
	agent.Status = Status(status)
	agent.CurrentTask = state.StringPtr(task)
	agent.UpdatedAt = state.ParseTime(updatedAt)
	return agent, nil
}

func statusNames() []string {
	out := make([]string, len(allStatuses))
	for i, s := range allStatuses {
		out[i] = string(s)
	}
	return out
}
