package eventlog

import "time"

// Metadata is a free-form JSON object attached to an event.
type Metadata map[string]any

type Event struct {
	ID        int64     `json:"id"`
	UID       string    `json:"uid"`
	AgentID   string    `json:"agent_id"`
	AgentName string    `json:"agent_name,omitempty"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

type Input struct {
	AgentID  string   `json:"agentId"`
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	Metadata Metadata `json:"metadata"`
}

type Query struct {
	Limit   int
	Offset  int
	AgentID string
}

// Common event types. Type is free-form; these are the ones the system
// itself emits or that consumers give special treatment.
const (
	TypeStatusChange = "status_change"
	TypeThought      = "thought"
	TypeMessage      = "message"
)
