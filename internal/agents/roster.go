package agents

// Member is one roster entry. Status is only used when the agent is first
// created; reseeding never overwrites a stored status.
type Member struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Role   string `json:"role" yaml:"role"`
	Status Status `json:"status,omitempty" yaml:"status,omitempty"`
}

// Roster is ordered by display priority.
type Roster []Member

func DefaultRoster() Roster {
	return Roster{
		{ID: "main", Name: "Winston", Role: "Chief of Staff", Status: StatusIdle},
		{ID: "engineering", Name: "Donatello", Role: "Full-Stack Dev Lead"},
		{ID: "designer", Name: "Issey", Role: "Visual & UI/UX"},
		{ID: "writer", Name: "Lee", Role: "Content & Copy"},
		{ID: "observer", Name: "Niccolo", Role: "Narrator & Chronicler"},
		{ID: "finance", Name: "Mark", Role: "Monetary Policy"},
		{ID: "marketing", Name: "Steve", Role: "Strategy & Campaigns"},
		{ID: "research", Name: "Quill", Role: "Market Intel"},
		{ID: "operations", Name: "Tim", Role: "Systems & Automation"},
		{ID: "legal", Name: "Mallory", Role: "Contracts & Risk"},
	}
}

func (r Roster) IDs() []string {
	out := make([]string, len(r))
	for i, m := range r {
		out[i] = m.ID
	}
	return out
}

func (r Roster) Contains(id string) bool {
	for _, m := range r {
		if m.ID == id {
			return true
		}
	}
	return false
}
