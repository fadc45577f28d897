// Package ticket applies issue tracker updates to the tickets they mirror.
package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/s21platform/ticketchat-service/internal/config"
	"github.com/s21platform/ticketchat-service/internal/model"
)

type Handler struct {
	dbR DBRepo
}

func New(dbR DBRepo) *Handler {
	return &Handler{dbR: dbR}
}

// Handler consumes one tracker event. Events for tickets this service does
// not know are skipped.
func (h *Handler) Handler(ctx context.Context, in []byte) error {
	logger := logger_lib.FromContext(ctx, config.KeyLogger)
	logger.AddFuncName("TicketUpdated")

	var details model.TicketDetails
	if err := json.Unmarshal(in, &details); err != nil {
		logger.Error(fmt.Sprintf("failed to unmarshal ticket event: %v", err))
		return fmt.Errorf("failed to unmarshal ticket event: %w", err)
	}

	details.Identifier = strings.TrimSpace(details.Identifier)
	details.Name = strings.TrimSpace(details.Name)
	if details.Identifier == "" || details.Name == "" {
		logger.Error("ticket event without identifier or name")
		return fmt.Errorf("ticket event without identifier or name")
	}

	if err := h.dbR.UpdateTicketDetails(ctx, details); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			logger.Warn(fmt.Sprintf("ticket %s is not tracked here, skipping", details.Identifier))
			return nil
		}
		logger.Error(fmt.Sprintf("failed to update ticket %s: %v", details.Identifier, err))
		return fmt.Errorf("failed to update ticket %s: %w", details.Identifier, err)
	}

	logger.Info(fmt.Sprintf("ticket %s updated from tracker", details.Identifier))
	return nil
}
