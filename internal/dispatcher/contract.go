//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package dispatcher

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/s21platform/ticketchat-service/internal/model"
)

type Store interface {
	GetTicketByID(ctx context.Context, ticketID uuid.UUID) (*model.Ticket, error)
	CreateMessage(ctx context.Context, message *model.Message) error
	DeleteMessage(ctx context.Context, messageID uuid.UUID) error
}

type ContextGatherer interface {
	Gather(ctx context.Context, ticketID uuid.UUID) (string, error)
}

type Backend interface {
	Execute(ctx context.Context, ticketID string, action model.CommandType, message string) iter.Seq2[string, error]
}

type Notifier interface {
	Notify(ctx context.Context, notification model.Notification)
}

type Metrics interface {
	Increment(name string)
}
