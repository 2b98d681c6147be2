package missions

import (
	"math"
	"time"

	"github.com/flitsinc/agentboard/internal/state"
)

type Status string

const (
	StatusProposed  Status = "proposed"
	StatusApproved  Status = "approved"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

var allStatuses = []Status{StatusProposed, StatusApproved, StatusRunning, StatusSucceeded, StatusFailed, StatusRejected}

func (s Status) Valid() bool {
	switch s {
	case StatusProposed, StatusApproved, StatusRunning, StatusSucceeded, StatusFailed, StatusRejected:
		return true
	}
	return false
}

// Terminal statuses stamp completed_at the first time they are entered.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusRejected:
		return true
	case StatusProposed, StatusApproved, StatusRunning:
		return false
	}
	return false
}

type StepStatus string

const (
	StepQueued    StepStatus = "queued"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

var allStepStatuses = []StepStatus{StepQueued, StepRunning, StepSucceeded, StepFailed}

func (s StepStatus) Valid() bool {
	switch s {
	case StepQueued, StepRunning, StepSucceeded, StepFailed:
		return true
	}
	return false
}

type Mission struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      Status     `json:"status"`
	AgentID     *string    `json:"agent_id"`
	ProposedBy  *string    `json:"proposed_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Steps       []Step     `json:"steps"`
	DoneCount   int        `json:"done_count"`
	TotalSteps  int        `json:"total_steps"`
	ProgressPct *int       `json:"progress_pct,omitempty"`
}

type Step struct {
	ID          int64      `json:"id"`
	MissionID   int64      `json:"mission_id"`
	Kind        string     `json:"kind"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	AgentID     *string    `json:"agent_id"`
	Result      *string    `json:"result"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type NewMission struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	AgentID     *string `json:"agentId,omitempty"`
	ProposedBy  *string `json:"proposedBy,omitempty"`
	Status      Status  `json:"status,omitempty"`
}

// Patch lists the mission fields to change. Unset fields are left alone.
type Patch struct {
	Status      *Status                `json:"status,omitempty"`
	Title       *string                `json:"title,omitempty"`
	Description state.Optional[string] `json:"description"`
	AgentID     state.Optional[string] `json:"agentId"`
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.Title == nil && !p.Description.Set && !p.AgentID.Set
}

type NewStep struct {
	Kind        string     `json:"kind"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status,omitempty"`
	AgentID     *string    `json:"agentId,omitempty"`
}

type StepPatch struct {
	Status  *StepStatus            `json:"status,omitempty"`
	Result  state.Optional[string] `json:"result"`
	AgentID state.Optional[string] `json:"agentId"`
}

func (p StepPatch) Empty() bool {
	return p.Status == nil && !p.Result.Set && !p.AgentID.Set
}

type Filter struct {
	Statuses []Status
	AgentID  string
	Limit    int
}

// Progress counts succeeded steps. pct is nil when there are no steps.
func Progress(steps []Step) (done, total int, pct *int) {
	total = len(steps)
	for _, st := range steps {
		if st.Status == StepSucceeded {
			done++
		}
	}
	if total == 0 {
		return done, total, nil
	}
	p := int(math.Round(100 * float64(done) / float64(total)))
	return done, total, &p
}

func (m *Mission) attachSteps(steps []Step) {
	if steps == nil {
		steps = []Step{}
	}
	m.Steps = steps
	m.DoneCount, m.TotalSteps, m.ProgressPct = Progress(steps)
}

func statusNames() []string {
	out := make([]string, len(allStatuses))
	for i, s := range allStatuses {
		out[i] = string(s)
	}
	return out
}

func stepStatusNames() []string {
	out := make([]string, len(allStepStatuses))
	for i, s := range allStepStatuses {
		out[i] = string(s)
	}
	return out
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", state.InvalidValue("mission", "status", v, statusNames())
	}
	return s, nil
}
