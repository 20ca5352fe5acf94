package intake

import (
	"time"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseResolved
	PhasePendingReset
)

func (p Phase) String() string {
	switch p {
	case PhaseResolved:
		return "resolved"
	case PhasePendingReset:
		return "pending-reset"
	default:
		return "idle"
	}
}

// Session is the per-user form state. It is owned by exactly one interaction
// at a time; callers serialize access per session.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	// Log is the session's copy of the request log, seeded from the
	// persisted snapshot when the session starts. Append-only.
	Log []RequestRecord `json:"log"`

	EmployeeInput string    `json:"employeeInput"`
	Employee      *Employee `json:"employee,omitempty"`
	Site          string    `json:"site"`

	Checked    map[string]bool `json:"checked,omitempty"`
	Quantities map[string]int  `json:"quantities,omitempty"`

	DownloadOK       bool `json:"downloadOk"`
	DownloadAttempts int  `json:"downloadAttempts"`

	PendingReset bool     `json:"pendingReset"`
	ResetTools   []string `json:"resetTools,omitempty"`
}

func NewSession(id string, seed []RequestRecord, now time.Time) *Session {
	log := make([]RequestRecord, len(seed))
	copy(log, seed)
	return &Session{
		ID:         id,
		CreatedAt:  now,
		Log:        log,
		Checked:    map[string]bool{},
		Quantities: map[string]int{},
	}
}

func (s *Session) Phase() Phase {
	switch {
	case s.PendingReset:
		return PhasePendingReset
	case s.Employee != nil:
		return PhaseResolved
	default:
		return PhaseIdle
	}
}

// Records returns a copy of the session log.
func (s *Session) Records() []RequestRecord {
	out := make([]RequestRecord, len(s.Log))
	copy(out, s.Log)
	return out
}

// SetWidget records the checkbox and quantity entry for one tool.
func (s *Session) SetWidget(tool string, checked bool, quantity int) {
	if s.Checked == nil {
		s.Checked = map[string]bool{}
	}
	if s.Quantities == nil {
		s.Quantities = map[string]int{}
	}
	if !checked {
		delete(s.Checked, tool)
		delete(s.Quantities, tool)
		return
	}
	s.Checked[tool] = true
	s.Quantities[tool] = quantity
}

// Selections builds the SelectionSet from the checked widgets, restricted to
// and ordered by the eligible tool list.
func (s *Session) Selections(eligible []string) []Selection {
	selections := []Selection{}
	for _, tool := range eligible {
		if !s.Checked[tool] {
			continue
		}
		qty, ok := s.Quantities[tool]
		if !ok {
			qty = 1
		}
		selections = append(selections, Selection{ToolName: tool, Quantity: qty})
	}
	return selections
}

func (s *Session) setEmployee(emp *Employee) {
	if s.Employee != nil && (emp == nil || *emp != *s.Employee) {
		s.clearAllWidgets()
	}
	s.Employee = emp
}

func (s *Session) clearWidgets(tools []string) {
	for _, tool := range tools {
		delete(s.Checked, tool)
		delete(s.Quantities, tool)
	}
}

func (s *Session) clearAllWidgets() {
	s.Checked = map[string]bool{}
	s.Quantities = map[string]int{}
}
