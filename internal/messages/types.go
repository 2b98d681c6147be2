package messages

import (
	"time"

	"github.com/flitsinc/agentboard/internal/state"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRead     Status = "read"
	StatusArchived Status = "archived"
)

var allStatuses = []Status{StatusPending, StatusRead, StatusArchived}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRead, StatusArchived:
		return true
	}
	return false
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		names := make([]string, len(allStatuses))
		for i, st := range allStatuses {
			names[i] = string(st)
		}
		return "", state.InvalidValue("message", "status", v, names)
	}
	return s, nil
}

const DefaultType = "notification"

type Message struct {
	ID        int64      `json:"id"`
	From      string     `json:"from_agent"`
	To        string     `json:"to_agent"`
	FromName  string     `json:"from_name,omitempty"`
	ToName    string     `json:"to_name,omitempty"`
	Type      string     `json:"type"`
	Subject   *string    `json:"subject"`
	Body      string     `json:"body"`
	RefID     *int64     `json:"ref_id"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}

type Outgoing struct {
	From    string  `json:"from"`
	To      string  `json:"to"`
	Type    string  `json:"type,omitempty"`
	Subject *string `json:"subject,omitempty"`
	Body    string  `json:"body"`
	RefID   *int64  `json:"refId,omitempty"`
}

type Filter struct {
	To     string
	From   string
	Status Status
	Type   string
	Limit  int
}

// Counts summarises one agent's inbox.
type Counts struct {
	Pending int `json:"pending"`
	Read    int `json:"read"`
	Total   int `json:"total"`
}
