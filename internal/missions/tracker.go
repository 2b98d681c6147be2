package missions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/flitsinc/agentboard/internal/agents"
	"github.com/flitsinc/agentboard/internal/state"
)

const missionColumns = `id, title, description, status, agent_id, proposed_by, created_at, updated_at, completed_at`
const stepColumns = `id, mission_id, kind, description, status, agent_id, result, created_at, updated_at`

// Tracker owns the mission and step lifecycle. Status transitions are not
// restricted to an adjacency graph; any valid status may follow any other.
type Tracker struct {
	store  *state.Store
	logger *slog.Logger
}

func NewTracker(store *state.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tracker{store: store, logger: logger}
}

func (t *Tracker) Create(ctx context.Context, in NewMission) (Mission, error) {
	if strings.TrimSpace(in.Title) == "" {
		return Mission{}, state.Invalid("mission", "title")
	}
	status := in.Status
	if status == "" {
		status = StatusProposed
	}
	if !status.Valid() {
		return Mission{}, state.InvalidValue("mission", "status", string(status), statusNames())
	}

	var m Mission
	err := t.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := requireAgent(ctx, tx, "mission", "agentId", in.AgentID); err != nil {
			return err
		}
		now := state.FormatTime(t.store.Now())
		var completedAt any
		if status.Terminal() {
			completedAt = now
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO missions (title, description, status, agent_id, proposed_by, created_at, updated_at, completed_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			in.Title, state.NullString(emptyToNil(in.Description)), string(status), state.NullString(emptyToNil(in.AgentID)), state.NullString(emptyToNil(in.ProposedBy)), now, now, completedAt)
		if err != nil {
			return fmt.Errorf("insert mission: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("mission id: %w", err)
		}
		m, err = loadMission(ctx, tx, id)
		return err
	})
	if err != nil {
		return Mission{}, err
	}
	t.logger.Info("mission created", "mission_id", m.ID, "status", m.Status)
	return m, nil
}

// Get returns the mission with its steps in insertion order.
func (t *Tracker) Get(ctx context.Context, id int64) (Mission, error) {
	var m Mission
	err := t.store.WithReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = loadMission(ctx, tx, id)
		return err
	})
	return m, err
}

// List returns missions most recently updated first, each with its steps.
func (t *Tracker) List(ctx context.Context, f Filter) ([]Mission, error) {
	var where []string
	var args []any
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			if !s.Valid() {
				return nil, state.InvalidValue("mission", "status", string(s), statusNames())
			}
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, f.AgentID)
	}

	query := `SELECT ` + missionColumns + ` FROM missions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var out []Mission
	err := t.store.WithReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list missions: %w", err)
		}
		defer rows.Close()
		out = []Mission{}
		for rows.Next() {
			m, err := scanMission(rows)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate missions: %w", err)
		}
		_ = rows.Close()

		ids := make([]int64, len(out))
		for i, m := range out {
			ids[i] = m.ID
		}
		steps, err := loadSteps(ctx, tx, ids...)
		if err != nil {
			return err
		}
		for i := range out {
			out[i].attachSteps(steps[out[i].ID])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies the patch. An empty patch returns the mission unchanged.
// Entering a terminal status stamps completed_at unless it is already set.
func (t *Tracker) Update(ctx context.Context, id int64, p Patch) (Mission, error) {
	if p.Empty() {
		return t.Get(ctx, id)
	}
	if p.Status != nil && !p.Status.Valid() {
		return Mission{}, state.InvalidValue("mission", "status", string(*p.Status), statusNames())
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return Mission{}, state.Invalid("mission", "title")
	}

	var before, after Mission
	err := t.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		before, err = loadMission(ctx, tx, id)
		if err != nil {
			return err
		}

		now := state.FormatTime(t.store.Now())
		var sets []string
		var args []any
		if p.Status != nil {
			sets = append(sets, "status = ?")
			args = append(args, string(*p.Status))
			if p.Status.Terminal() {
				sets = append(sets, "completed_at = COALESCE(completed_at, ?)")
				args = append(args, now)
			}
		}
		if p.Title != nil {
			sets = append(sets, "title = ?")
			args = append(args, *p.Title)
		}
		if p.Description.Set {
			sets = append(sets, "description = ?")
			args = append(args, state.NullString(p.Description.Value))
		}
		if p.AgentID.Set {
			agentID := emptyToNil(p.AgentID.Value)
			if err := requireAgent(ctx, tx, "mission", "agentId", agentID); err != nil {
				return err
			}
			sets = append(sets, "agent_id = ?")
			args = append(args, state.NullString(agentID))
		}
		sets = append(sets, "updated_at = ?")
		args = append(args, now, id)

		if _, err := tx.ExecContext(ctx, `UPDATE missions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
			return fmt.Errorf("update mission: %w", err)
		}
		after, err = loadMission(ctx, tx, id)
		return err
	})
	if err != nil {
		return Mission{}, err
	}
	if before.Status != after.Status {
		t.logger.Info("mission status changed", "mission_id", id, "from", before.Status, "to", after.Status)
	}
	return after, nil
}

func (t *Tracker) AddStep(ctx context.Context, missionID int64, in NewStep) (Step, error) {
	var missing []string
	if strings.TrimSpace(in.Kind) == "" {
		missing = append(missing, "kind")
	}
	if strings.TrimSpace(in.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return Step{}, state.Invalid("step", missing...)
	}
	status := in.Status
	if status == "" {
		status = StepQueued
	}
	if !status.Valid() {
		return Step{}, state.InvalidValue("step", "status", string(status), stepStatusNames())
	}

	var st Step
	err := t.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := requireMission(ctx, tx, missionID); err != nil {
			return err
		}
		agentID := emptyToNil(in.AgentID)
		if err := requireAgent(ctx, tx, "step", "agentId", agentID); err != nil {
			return err
		}
		now := state.FormatTime(t.store.Now())
		res, err := tx.ExecContext(ctx, `INSERT INTO mission_steps (mission_id, kind, description, status, agent_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			missionID, in.Kind, in.Description, string(status), state.NullString(agentID), now, now)
		if err != nil {
			return fmt.Errorf("insert step: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("step id: %w", err)
		}
		st, err = loadStep(ctx, tx, missionID, id)
		return err
	})
	if err != nil {
		return Step{}, err
	}
	return st, nil
}

// UpdateStep applies the patch to a step of the given mission. A step that
// belongs to another mission is reported as not found.
func (t *Tracker) UpdateStep(ctx context.Context, missionID, stepID int64, p StepPatch) (Step, error) {
	if p.Status != nil && !p.Status.Valid() {
		return Step{}, state.InvalidValue("step", "status", string(*p.Status), stepStatusNames())
	}

	var st Step
	err := t.store.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := loadStep(ctx, tx, missionID, stepID)
		if err != nil {
			return err
		}
		if p.Empty() {
			st = current
			return nil
		}

		var sets []string
		var args []any
		if p.Status != nil {
			sets = append(sets, "status = ?")
			args = append(args, string(*p.Status))
		}
		if p.Result.Set {
			sets = append(sets, "result = ?")
			args = append(args, state.NullString(p.Result.Value))
		}
		if p.AgentID.Set {
			agentID := emptyToNil(p.AgentID.Value)
			if err := requireAgent(ctx, tx, "step", "agentId", agentID); err != nil {
				return err
			}
			sets = append(sets, "agent_id = ?")
			args = append(args, state.NullString(agentID))
		}
		sets = append(sets, "updated_at = ?")
		args = append(args, state.FormatTime(t.store.Now()), stepID, missionID)

		if _, err := tx.ExecContext(ctx, `UPDATE mission_steps SET `+strings.Join(sets, ", ")+` WHERE id = ? AND mission_id = ?`, args...); err != nil {
			return fmt.Errorf("update step: %w", err)
		}
		st, err = loadStep(ctx, tx, missionID, stepID)
		return err
	})
	if err != nil {
		return Step{}, err
	}
	return st, nil
}

func loadMission(ctx context.Context, q state.Querier, id int64) (Mission, error) {
	m, err := scanMission(q.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Mission{}, state.NotFound("mission", id)
	}
	if err != nil {
		return Mission{}, err
	}
	steps, err := loadSteps(ctx, q, id)
	if err != nil {
		return Mission{}, err
	}
	m.attachSteps(steps[id])
	return m, nil
}

func loadStep(ctx context.Context, q state.Querier, missionID, stepID int64) (Step, error) {
	st, err := scanStep(q.QueryRowContext(ctx, `SELECT `+stepColumns+` FROM mission_steps WHERE id = ? AND mission_id = ?`, stepID, missionID))
	if errors.Is(err, sql.ErrNoRows) {
		return Step{}, state.NotFound("step", stepID)
	}
	return st, err
}

// loadSteps returns the steps of the given missions keyed by mission id,
// each slice ordered by step id.
func loadSteps(ctx context.Context, q state.Querier, missionIDs ...int64) (map[int64][]Step, error) {
	out := make(map[int64][]Step, len(missionIDs))
	if len(missionIDs) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(missionIDs))
	args := make([]any, len(missionIDs))
	for i, id := range missionIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := q.QueryContext(ctx, `SELECT `+stepColumns+` FROM mission_steps WHERE mission_id IN (`+strings.Join(placeholders, ",")+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out[st.MissionID] = append(out[st.MissionID], st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return out, nil
}

func requireMission(ctx context.Context, q state.Querier, id int64) error {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM missions WHERE id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("lookup mission: %w", err)
	}
	if n == 0 {
		return state.NotFound("mission", id)
	}
	return nil
}

func requireAgent(ctx context.Context, q state.Querier, entity, field string, id *string) error {
	if id == nil {
		return nil
	}
	ok, err := agents.Exists(ctx, q, *id)
	if err != nil {
		return err
	}
	if !ok {
		return state.Unresolved(entity, field, *id)
	}
	return nil
}

func emptyToNil(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMission(row scanner) (Mission, error) {
	var m Mission
	var status, createdAt, updatedAt string
	var description, agentID, proposedBy, completedAt sql.NullString
	if err := row.Scan(&m.ID, &m.Title, &description, &status, &agentID, &proposedBy, &createdAt, &updatedAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Mission{}, err
		}
		return Mission{}, fmt.Errorf("scan mission: %w", err)
	}
	m.Status = Status(status)
	m.Description = state.StringPtr(description)
	m.AgentID = state.StringPtr(agentID)
	m.ProposedBy = state.StringPtr(proposedBy)
	m.CreatedAt = state.ParseTime(createdAt)
	m.UpdatedAt = state.ParseTime(updatedAt)
	m.CompletedAt = state.ParseNullTime(completedAt)
	return m, nil
}

func scanStep(row scanner) (Step, error) {
	var st Step
	var status, createdAt, updatedAt string
	var agentID, result sql.NullString
	if err := row.Scan(&st.ID, &st.MissionID, &st.Kind, &st.Description, &status, &agentID, &result, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Step{}, err
		}
		return Step{}, fmt.Errorf("scan step: %w", err)
	}
	st.Status = StepStatus(status)
	st.AgentID = state.StringPtr(agentID)
	st.Result = state.StringPtr(result)
	st.CreatedAt = state.ParseTime(createdAt)
	st.UpdatedAt = state.ParseTime(updatedAt)
	return st, nil
}
