package model

import (
	"time"

	"github.com/google/uuid"
)

type TicketList []Ticket

// Ticket is the unit of collaboration. ID is the internal key messages point
// to, Identifier is the human-facing key (e.g. "REL-123").
type Ticket struct {
	ID           uuid.UUID `json:"id"`
	Identifier   string    `json:"ticket_identifier"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	Priority     *int      `json:"priority,omitempty"`
	RepoURL      *string   `json:"repo_url,omitempty"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TicketDetails is the subset of ticket fields the issue tracker owns.
type TicketDetails struct {
	Identifier  string  `json:"identifier"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
}
