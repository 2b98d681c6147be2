package status

import (
	"context"
	"database/sql"
	"time"

	"github.com/flitsinc/agentboard/internal/agents"
	"github.com/flitsinc/agentboard/internal/eventlog"
	"github.com/flitsinc/agentboard/internal/messages"
	"github.com/flitsinc/agentboard/internal/state"
)

const (
	ActivityWindowHours = 6
	ActivityLimit       = 30
)

type AgentView struct {
	Name            string        `json:"name"`
	Status          agents.Status `json:"status"`
	CurrentTask     *string       `json:"currentTask"`
	Role            string        `json:"role"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	PendingMessages int           `json:"pendingMessages"`
}

type Activity struct {
	Agent     string            `json:"agent"`
	AgentName string            `json:"agentName"`
	Message   string            `json:"message"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  eventlog.Metadata `json:"metadata"`
}

type Snapshot struct {
	GeneratedAt time.Time            `json:"generatedAt"`
	Order       []string             `json:"order"`
	Agents      map[string]AgentView `json:"agents"`
	Activity    []Activity           `json:"activity"`
}

// Aggregator composes the registry, event log and message bus into the
// read-side snapshot. It never writes.
type Aggregator struct {
	store    *state.Store
	registry *agents.Registry
	log      *eventlog.Log
}

func NewAggregator(store *state.Store, registry *agents.Registry, log *eventlog.Log) *Aggregator {
	return &Aggregator{store: store, registry: registry, log: log}
}

// Snapshot builds the view at now inside a single read transaction.
func (a *Aggregator) Snapshot(ctx context.Context, now time.Time) (Snapshot, error) {
	snap := Snapshot{
		GeneratedAt: now.UTC(),
		Order:       []string{},
		Agents:      map[string]AgentView{},
		Activity:    []Activity{},
	}
	err := a.store.WithReadTx(ctx, func(tx *sql.Tx) error {
		roster, err := a.registry.ListActiveFrom(ctx, tx)
		if err != nil {
			return err
		}
		for _, agent := range roster {
			status, task := agents.EffectiveStatus(agent, now)
			pending, err := messages.PendingCountFrom(ctx, tx, agent.ID)
			if err != nil {
				return err
			}
			snap.Order = append(snap.Order, agent.ID)
			snap.Agents[agent.ID] = AgentView{
				Name:            agent.Name,
				Status:          status,
				CurrentTask:     task,
				Role:            agent.Role,
				UpdatedAt:       agent.UpdatedAt,
				PendingMessages: pending,
			}
		}

		events, err := a.log.WindowFrom(ctx, tx, now, ActivityWindowHours, ActivityLimit)
		if err != nil {
			return err
		}
		for _, e := range events {
			snap.Activity = append(snap.Activity, Activity{
				Agent:     e.AgentID,
				AgentName: e.AgentName,
				Message:   e.Message,
				Type:      e.Type,
				Timestamp: e.CreatedAt,
				Metadata:  e.Metadata,
			})
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
