package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/flitsinc/agentboard/internal/agents"
	"github.com/flitsinc/agentboard/internal/idgen"
	"github.com/flitsinc/agentboard/internal/state"
)

const DefaultLimit = 50

type Log struct {
	store  *state.Store
	logger *slog.Logger
}

func NewLog(store *state.Store, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Log{store: store, logger: logger}
}

// Append records an event. An unknown agent id gets a placeholder agent so
// logging never fails on a missing roster entry.
func (l *Log) Append(ctx context.Context, in Input) (Event, error) {
	var evt Event
	var created bool
	err := l.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		evt, created, err = AppendTo(ctx, tx, in, l.store.Now())
		return err
	})
	if err != nil {
		return Event{}, err
	}
	if created {
		l.logger.Info("placeholder agent created", "agent_id", evt.AgentID)
	}
	return evt, nil
}

// AppendTo is the append body, usable inside a caller's transaction. The
// boolean reports whether a placeholder agent was created.
func AppendTo(ctx context.Context, q state.Querier, in Input, now time.Time) (Event, bool, error) {
	var missing []string
	if strings.TrimSpace(in.AgentID) == "" {
		missing = append(missing, "agentId")
	}
	if strings.TrimSpace(in.Type) == "" {
		missing = append(missing, "type")
	}
	if strings.TrimSpace(in.Message) == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return Event{}, false, state.Invalid("event", missing...)
	}

	created, err := agents.Ensure(ctx, q, in.AgentID, now)
	if err != nil {
		return Event{}, false, err
	}

	metadata := in.Metadata
	if metadata == nil {
		metadata = Metadata{}
	}
	metadataJSON, err := state.EncodeMap(metadata)
	if err != nil {
		return Event{}, false, fmt.Errorf("encode metadata: %w", err)
	}

	uid := idgen.EventUID()
	res, err := q.ExecContext(ctx, `INSERT INTO events (uid, agent_id, type, message, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uid, in.AgentID, in.Type, in.Message, metadataJSON, state.FormatTime(now))
	if err != nil {
		return Event{}, false, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Event{}, false, fmt.Errorf("event id: %w", err)
	}
	return Event{
		ID:        id,
		UID:       uid,
		AgentID:   in.AgentID,
		Type:      in.Type,
		Message:   in.Message,
		Metadata:  metadata,
		CreatedAt: now,
	}, created, nil
}

// Recent pages through all events newest first, optionally for one agent.
func (l *Log) Recent(ctx context.Context, query Query) ([]Event, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	where := ""
	var args []any
	if query.AgentID != "" {
		where = "WHERE e.agent_id = ?"
		args = append(args, query.AgentID)
	}
	args = append(args, limit, offset)
	return queryEvents(ctx, l.store.DB(), where+" ORDER BY e.created_at DESC, e.id DESC LIMIT ? OFFSET ?", args...)
}

// Window returns at most limit events created within the trailing hours
// before now, newest first.
func (l *Log) Window(ctx context.Context, now time.Time, hours, limit int) ([]Event, error) {
	return l.WindowFrom(ctx, l.store.DB(), now, hours, limit)
}

func (l *Log) WindowFrom(ctx context.Context, q state.Querier, now time.Time, hours, limit int) ([]Event, error) {
	if hours <= 0 {
		return []Event{}, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	since := now.Add(-time.Duration(hours) * time.Hour)
	return queryEvents(ctx, q, "WHERE e.created_at > ? ORDER BY e.created_at DESC, e.id DESC LIMIT ?", state.FormatTime(since), limit)
}

// RecordStatus applies a status report to the agent and, when the report
// carries a status, appends the matching status_change event in the same
// transaction.
func (l *Log) RecordStatus(ctx context.Context, agentID string, upd agents.Update) (agents.Agent, *Event, error) {
	var agent agents.Agent
	var evt *Event
	now := l.store.Now()
	err := l.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		agent, err = agents.Apply(ctx, tx, agentID, upd, now)
		if err != nil {
			return err
		}
		if upd.Status == nil || *upd.Status == "" {
			return nil
		}
		e, _, err := AppendTo(ctx, tx, Input{
			AgentID: agentID,
			Type:    TypeStatusChange,
			Message: StatusMessage(*upd.Status, upd.CurrentTask.Value),
		}, now)
		if err != nil {
			return err
		}
		e.AgentName = agent.Name
		evt = &e
		return nil
	})
	if err != nil {
		return agents.Agent{}, nil, err
	}
	l.logger.Debug("agent status recorded", "agent_id", agentID, "status", agent.Status)
	return agent, evt, nil
}

func StatusMessage(status agents.Status, task *string) string {
	if task != nil && *task != "" {
		return fmt.Sprintf("Status: %s — %s", status, *task)
	}
	return fmt.Sprintf("Status: %s", status)
}

func queryEvents(ctx context.Context, q state.Querier, clause string, args ...any) ([]Event, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT e.id, e.uid, e.agent_id, COALESCE(a.name, e.agent_id), e.type, e.message, e.metadata, e.created_at
		FROM events e
		LEFT JOIN agents a ON a.id = e.agent_id
		`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var e Event
		var metadataStr sql.NullString
		var createdAtStr string
		if err := rows.Scan(&e.ID, &e.UID, &e.AgentID, &e.AgentName, &e.Type, &e.Message, &metadataStr, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Metadata = Metadata(state.DecodeMap(metadataStr.String))
		e.CreatedAt = state.ParseTime(createdAtStr)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
