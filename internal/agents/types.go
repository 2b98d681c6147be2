package agents

import (
	"time"

	"github.com/flitsinc/agentboard/internal/state"
)

type Status string

const (
	StatusOffline Status = "offline"
	StatusIdle    Status = "idle"
	StatusActive  Status = "active"
	StatusWorking Status = "working"
	StatusWaiting Status = "waiting"
)

var allStatuses = []Status{StatusOffline, StatusIdle, StatusActive, StatusWorking, StatusWaiting}

func (s Status) Valid() bool {
	switch s {
	case StatusOffline, StatusIdle, StatusActive, StatusWorking, StatusWaiting:
		return true
	}
	return false
}

// Busy reports whether the status is subject to staleness.
func (s Status) Busy() bool {
	switch s {
	case StatusActive, StatusWorking:
		return true
	case StatusOffline, StatusIdle, StatusWaiting:
		return false
	}
	return false
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", state.InvalidValue("agent", "status", v, statusNames())
	}
	return s, nil
}

type Agent struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Status      Status    `json:"status"`
	CurrentTask *string   `json:"current_task"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Update holds the fields of a status report. Nil and unset fields keep
// their stored value.
type Update struct {
	Name        *string                `json:"name,omitempty"`
	Role        *string                `json:"role,omitempty"`
	Status      *Status                `json:"status,omitempty"`
	CurrentTask state.Optional[string] `json:"currentTask"`
}
