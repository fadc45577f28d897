//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package ticket

import (
	"context"

	"github.com/s21platform/ticketchat-service/internal/model"
)

type DBRepo interface {
	UpdateTicketDetails(ctx context.Context, details model.TicketDetails) error
}
