//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package rest

import (
	"context"

	"github.com/google/uuid"

	"github.com/s21platform/ticketchat-service/internal/model"
)

type DBRepo interface {
	CreateTicket(ctx context.Context, ticket *model.Ticket) error
	GetTicketByIdentifier(ctx context.Context, identifier string) (*model.Ticket, error)
	ListTickets(ctx context.Context) (model.TicketList, error)
	DeleteTicket(ctx context.Context, ticketID uuid.UUID) error
	CreateMessage(ctx context.Context, message *model.Message) error

	WithTx(ctx context.Context, cb func(ctx context.Context) error) error
}

type Conversation interface {
	User() string
	Open(ctx context.Context, identifier string) (model.ConversationResponse, error)
	Snapshot() model.ConversationResponse
	Refetch(ctx context.Context) error
	SetSyncEnabled(ctx context.Context, enabled bool) (model.ConversationResponse, error)
	Send(ctx context.Context, content string) (model.Message, error)
	ApprovePlan(ctx context.Context) (model.Message, error)
	Forget(ctx context.Context, ticketID uuid.UUID)
}

type CetrifugeClient interface {
	PublishMessage(ctx context.Context, msg model.Message) error
}

type CommandBackend interface {
	PrepareWorkspace(ctx context.Context, ticketID, repoURL string) error
}

type Validator interface {
	ValidateIdentifier(identifier string) error
	ValidateCreateTicket(req *model.CreateTicketRequest) error
	ValidateSendMessage(req *model.SendMessageRequest) error
}

type JWTGenerator interface {
	GenerateConnectToken(user string) (string, int64, error)
	GenerateSubscribeToken(user, ticketID string) (string, int64, error)
}
