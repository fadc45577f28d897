package model

import "github.com/google/uuid"

type Error struct {
	Error string `json:"error"`
}

type CreateTicketRequest struct {
	Identifier   string   `json:"ticket_identifier"`
	Name         string   `json:"name"`
	Description  *string  `json:"description,omitempty"`
	Priority     *int     `json:"priority,omitempty"`
	RepoURL      *string  `json:"repo_url,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

type TicketListResponse struct {
	Tickets TicketList `json:"tickets"`
}

type OpenConversationRequest struct {
	// Empty closes the open conversation.
	Identifier string `json:"ticket_identifier"`
}

type SyncRequest struct {
	Enabled bool `json:"enabled"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type SendMessageResponse struct {
	MessageID uuid.UUID `json:"message_id"`
	Timestamp string    `json:"timestamp"`
}

type ConversationResponse struct {
	Ticket   *Ticket     `json:"ticket,omitempty"`
	Messages []Message   `json:"messages"`
	Loading  bool        `json:"loading"`
	Syncing  bool        `json:"syncing"`
	Error    string      `json:"error,omitempty"`
	State    TicketState `json:"state"`
	User     string      `json:"user"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	Channel   string `json:"channel,omitempty"`
}
