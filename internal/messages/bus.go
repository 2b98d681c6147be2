package messages

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/flitsinc/agentboard/internal/agents"
	"github.com/flitsinc/agentboard/internal/state"
)

// Bus delivers directed messages between agents. Delivery is by polling:
// recipients list their pending messages and mark them read.
type Bus struct {
	store  *state.Store
	logger *slog.Logger
}

func NewBus(store *state.Store, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{store: store, logger: logger}
}

// Send stores a pending message. Sender, recipient and the referenced
// message must all exist.
func (b *Bus) Send(ctx context.Context, out Outgoing) (Message, error) {
	var missing []string
	if strings.TrimSpace(out.From) == "" {
		missing = append(missing, "from")
	}
	if strings.TrimSpace(out.To) == "" {
		missing = append(missing, "to")
	}
	if strings.TrimSpace(out.Body) == "" {
		missing = append(missing, "body")
	}
	if len(missing) > 0 {
		return Message{}, state.Invalid("message", missing...)
	}
	kind := out.Type
	if kind == "" {
		kind = DefaultType
	}
	subject := out.Subject
	if subject != nil && *subject == "" {
		subject = nil
	}

	var msg Message
	err := b.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, ref := range []struct{ field, id string }{{"from", out.From}, {"to", out.To}} {
			ok, err := agents.Exists(ctx, tx, ref.id)
			if err != nil {
				return err
			}
			if !ok {
				return state.Unresolved("message", ref.field, ref.id)
			}
		}
		if out.RefID != nil {
			var n int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages WHERE id = ?`, *out.RefID).Scan(&n); err != nil {
				return fmt.Errorf("lookup ref message: %w", err)
			}
			if n == 0 {
				return state.Unresolved("message", "refId", *out.RefID)
			}
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO messages (from_agent, to_agent, type, subject, body, ref_id, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			out.From, out.To, kind, state.NullString(subject), out.Body, state.NullInt(out.RefID), string(StatusPending), state.FormatTime(b.store.Now()))
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("message id: %w", err)
		}
		msg, err = load(ctx, tx, id)
		return err
	})
	if err != nil {
		return Message{}, err
	}
	b.logger.Debug("message sent", "message_id", msg.ID, "from", msg.From, "to", msg.To, "type", msg.Type)
	return msg, nil
}

func (b *Bus) Get(ctx context.Context, id int64) (Message, error) {
	return load(ctx, b.store.DB(), id)
}

// List returns matching messages newest first with sender and recipient
// names attached.
func (b *Bus) List(ctx context.Context, f Filter) ([]Message, error) {
	var where []string
	var args []any
	if f.To != "" {
		where = append(where, "m.to_agent = ?")
		args = append(args, f.To)
	}
	if f.From != "" {
		where = append(where, "m.from_agent = ?")
		args = append(args, f.From)
	}
	if f.Status != "" {
		if !f.Status.Valid() {
			_, err := ParseStatus(string(f.Status))
			return nil, err
		}
		where = append(where, "m.status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		where = append(where, "m.type = ?")
		args = append(args, f.Type)
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}
	clause += " ORDER BY m.created_at DESC, m.id DESC"
	if f.Limit > 0 {
		clause += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return query(ctx, b.store.DB(), clause, args...)
}

// UpdateStatus moves a message to status. read_at is stamped on the first
// transition to read and never again.
func (b *Bus) UpdateStatus(ctx context.Context, id int64, status Status) (Message, error) {
	if !status.Valid() {
		_, err := ParseStatus(string(status))
		return Message{}, err
	}
	var msg Message
	err := b.store.WithTx(ctx, func(tx *sql.Tx) error {
		now := state.FormatTime(b.store.Now())
		var res sql.Result
		var err error
		switch status {
		case StatusRead:
			res, err = tx.ExecContext(ctx, `UPDATE messages SET status = ?, read_at = COALESCE(read_at, ?) WHERE id = ?`, string(status), now, id)
		case StatusPending, StatusArchived:
			res, err = tx.ExecContext(ctx, `UPDATE messages SET status = ? WHERE id = ?`, string(status), id)
		}
		if err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return state.NotFound("message", id)
		}
		msg, err = load(ctx, tx, id)
		return err
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (b *Bus) PendingCountFor(ctx context.Context, agentID string) (int, error) {
	return PendingCountFrom(ctx, b.store.DB(), agentID)
}

func PendingCountFrom(ctx context.Context, q state.Querier, agentID string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages WHERE to_agent = ? AND status = ?`, agentID, string(StatusPending)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending messages: %w", err)
	}
	return n, nil
}

// Counts reports pending, read and total messages addressed to agentID.
func (b *Bus) Counts(ctx context.Context, agentID string) (Counts, error) {
	var c Counts
	err := b.store.DB().QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COUNT(1)
		FROM messages WHERE to_agent = ?
	`, string(StatusPending), string(StatusRead), agentID).Scan(&c.Pending, &c.Read, &c.Total)
	if err != nil {
		return Counts{}, fmt.Errorf("count messages: %w", err)
	}
	return c, nil
}

func load(ctx context.Context, q state.Querier, id int64) (Message, error) {
	items, err := query(ctx, q, "WHERE m.id = ?", id)
	if err != nil {
		return Message{}, err
	}
	if len(items) == 0 {
		return Message{}, state.NotFound("message", id)
	}
	return items[0], nil
}

func query(ctx context.Context, q state.Querier, clause string, args ...any) ([]Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT m.id, m.from_agent, m.to_agent, COALESCE(fa.name, m.from_agent), COALESCE(ta.name, m.to_agent),
			m.type, m.subject, m.body, m.ref_id, m.status, m.created_at, m.read_at
		FROM messages m
		LEFT JOIN agents fa ON fa.id = m.from_agent
		LEFT JOIN agents ta ON ta.id = m.to_agent
		`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		var status, createdAt string
		var subject, readAt sql.NullString
		var refID sql.NullInt64
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.FromName, &m.ToName, &m.Type, &subject, &m.Body, &refID, &status, &createdAt, &readAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Subject = state.StringPtr(subject)
		m.RefID = state.Int64Ptr(refID)
		m.Status = Status(status)
		m.CreatedAt = state.ParseTime(createdAt)
		m.ReadAt = state.ParseNullTime(readAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}
