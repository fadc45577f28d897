package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/s21platform/ticketchat-service/internal/config"
	"github.com/s21platform/ticketchat-service/internal/model"
)

// publishingStore pushes every message written through it to the channel of
// one ticket. Publishing is best effort: the store write decides the outcome.
type publishingStore struct {
	Store
	publisher Publisher
	ticketID  uuid.UUID
	onDelete  func(messageID uuid.UUID)
}

func (s *publishingStore) CreateMessage(ctx context.Context, message *model.Message) error {
	if err := s.Store.CreateMessage(ctx, message); err != nil {
		return err
	}

	if err := s.publisher.PublishMessage(ctx, *message); err != nil {
		logger := logger_lib.FromContext(ctx, config.KeyLogger)
		logger.Warn(fmt.Sprintf("failed to publish message %s: %v", message.ID, err))
	}
	return nil
}

func (s *publishingStore) DeleteMessage(ctx context.Context, messageID uuid.UUID) error {
	if err := s.Store.DeleteMessage(ctx, messageID); err != nil {
		return err
	}

	if s.onDelete != nil {
		s.onDelete(messageID)
	}

	if err := s.publisher.PublishMessageDeleted(ctx, s.ticketID.String(), messageID.String()); err != nil {
		logger := logger_lib.FromContext(ctx, config.KeyLogger)
		logger.Warn(fmt.Sprintf("failed to publish deletion of %s: %v", messageID, err))
	}
	return nil
}

// notifier delivers toasts to the local user over the realtime channel and
// keeps them in the log.
type notifier struct {
	publisher Publisher
	user      string
}

func (n *notifier) Notify(ctx context.Context, notification model.Notification) {
	logger := logger_lib.FromContext(ctx, config.KeyLogger)
	logger.AddFuncName("Notify")

	text := notification.Title
	if notification.Text != "" {
		text += ": " + notification.Text
	}
	if notification.Level == model.NotificationError {
		logger.Warn(text)
	} else {
		logger.Info(text)
	}

	event := model.RealtimeEvent{Type: model.RealtimeNotification, Notification: &notification}
	if err := n.publisher.Publish(ctx, model.NotificationChannel(n.user), event); err != nil {
		logger.Warn(fmt.Sprintf("failed to publish notification: %v", err))
	}
}
