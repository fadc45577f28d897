// Package transcript renders a ticket and its conversation as the plain-text
// context handed to the command backend.
package transcript

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/s21platform/ticketchat-service/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

type Store interface {
	GetTicketByID(ctx context.Context, ticketID uuid.UUID) (*model.Ticket, error)
	ListMessages(ctx context.Context, ticketID uuid.UUID) (model.MessageList, error)
}

type Builder struct {
	store Store
}

func New(store Store) *Builder {
	return &Builder{store: store}
}

// Gather loads the ticket and its whole conversation and renders them.
func (b *Builder) Gather(ctx context.Context, ticketID uuid.UUID) (string, error) {
	ticket, err := b.store.GetTicketByID(ctx, ticketID)
	if err != nil {
		return "", fmt.Errorf("failed to load ticket: %w", err)
	}

	messages, err := b.store.ListMessages(ctx, ticketID)
	if err != nil {
		return "", fmt.Errorf("failed to load messages: %w", err)
	}

	return Render(*ticket, messages), nil
}

func Render(ticket model.Ticket, messages []model.Message) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Ticket %s: %s\n", ticket.Identifier, ticket.Name)
	if ticket.Priority != nil {
		fmt.Fprintf(&b, "Priority: %d\n", *ticket.Priority)
	}
	if ticket.RepoURL != nil && *ticket.RepoURL != "" {
		fmt.Fprintf(&b, "Repository: %s\n", *ticket.RepoURL)
	}
	if len(ticket.Participants) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(ticket.Participants, ", "))
	}
	if ticket.Description != nil && strings.TrimSpace(*ticket.Description) != "" {
		fmt.Fprintf(&b, "\nDescription:\n%s\n", strings.TrimSpace(*ticket.Description))
	}

	b.WriteString("\n## Conversation\n")

	n := 0
	for _, m := range messages {
		if m.IsStreamingPlaceholder() {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. [%s] %s: %s\n", n, m.Timestamp.UTC().Format(timeLayout), speaker(m), m.Text())
	}
	if n == 0 {
		b.WriteString("No previous conversation.\n")
	}

	return b.String()
}

func speaker(m model.Message) string {
	switch m.Kind {
	case model.KindSystem:
		return model.SenderSystem
	case model.KindArchitectPlan:
		return model.AgentArchitect
	case model.KindDiffGenerated:
		return model.AgentDeveloper
	}
	if m.Sender == "" {
		return "Unknown"
	}
	return m.Sender
}
