//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package conversation

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/s21platform/ticketchat-service/internal/model"
)

type Store interface {
	GetTicketByID(ctx context.Context, ticketID uuid.UUID) (*model.Ticket, error)
	GetTicketByIdentifier(ctx context.Context, identifier string) (*model.Ticket, error)
	CreateMessage(ctx context.Context, message *model.Message) error
	DeleteMessage(ctx context.Context, messageID uuid.UUID) error
	ListMessages(ctx context.Context, ticketID uuid.UUID) (model.MessageList, error)
	ListMessagesAfter(ctx context.Context, ticketID uuid.UUID, cursor time.Time) (model.MessageList, error)
}

type Publisher interface {
	Publish(ctx context.Context, channel string, data interface{}) error
	PublishMessage(ctx context.Context, msg model.Message) error
	PublishMessageDeleted(ctx context.Context, ticketID, messageID string) error
}

type Backend interface {
	Execute(ctx context.Context, ticketID string, action model.CommandType, message string) iter.Seq2[string, error]
}

type Metrics interface {
	Increment(name string)
}
