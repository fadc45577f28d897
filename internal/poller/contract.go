//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package poller

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/s21platform/ticketchat-service/internal/model"
)

type Store interface {
	ListMessages(ctx context.Context, ticketID uuid.UUID) (model.MessageList, error)
	ListMessagesAfter(ctx context.Context, ticketID uuid.UUID, cursor time.Time) (model.MessageList, error)
}

type Metrics interface {
	Increment(name string)
}
