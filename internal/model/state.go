package model

type PlanStatus string

const (
	PlanNone     PlanStatus = "none"
	PlanReady    PlanStatus = "ready"
	PlanApproved PlanStatus = "approved"
)

type PRStatus string

const (
	PRNone PRStatus = "none"
	PROpen PRStatus = "open"
)

// TicketState is derived from a ticket's messages and kept current by
// applying each appended message once.
type TicketState struct {
	PlanStatus PlanStatus `json:"plan_status"`
	PRStatus   PRStatus   `json:"pr_status"`
	PRLink     string     `json:"pr_link,omitempty"`
}

func NewTicketState() TicketState {
	return TicketState{PlanStatus: PlanNone, PRStatus: PRNone}
}

func (s *TicketState) Apply(m Message) {
	switch meta := m.Metadata.(type) {
	case *PlanMetadata:
		s.planReady()
	case *DiffMetadata:
		s.prOpened(meta.PRLink)
	case *AgentMetadata:
		if meta.PRLink != "" {
			s.prOpened(meta.PRLink)
		}
	case *SystemMetadata:
		if meta.Event == SystemEventPlanApproved && s.PlanStatus != PlanNone {
			s.PlanStatus = PlanApproved
		}
	default:
		switch m.Kind {
		case KindArchitectPlan:
			s.planReady()
		case KindDiffGenerated:
			s.prOpened("")
		}
	}
}

// a newer plan supersedes an approved one
func (s *TicketState) planReady() {
	s.PlanStatus = PlanReady
}

func (s *TicketState) prOpened(link string) {
	s.PRStatus = PROpen
	if link != "" {
		s.PRLink = link
	}
}

func RebuildTicketState(messages []Message) TicketState {
	state := NewTicketState()
	for _, m := range messages {
		state.Apply(m)
	}
	return state
}
