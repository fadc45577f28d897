package model

import "github.com/golang-jwt/jwt/v5"

type CentrifugoEvent struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type CentrifugoEventParams struct {
	Channel string      `json:"channel"`
	Data    interface{} `json:"data"`
}

type CentrifugoConnectClaims struct {
	jwt.RegisteredClaims
}

type CentrifugoSubscribeClaims struct {
	jwt.RegisteredClaims

	Channel string `json:"channel"`
	Client  string `json:"client,omitempty"`

	User     string `json:"user"`
	TicketID string `json:"ticket_id"`
}

func TicketChannel(ticketID string) string {
	return "ticket:" + ticketID
}

func NotificationChannel(user string) string {
	return "notifications:" + user
}

type NotificationLevel string

const (
	NotificationInfo    NotificationLevel = "info"
	NotificationSuccess NotificationLevel = "success"
	NotificationError   NotificationLevel = "error"
)

// Notification is an ephemeral toast for the local user.
type Notification struct {
	Level    NotificationLevel `json:"level"`
	Title    string            `json:"title"`
	Text     string            `json:"text,omitempty"`
	TicketID string            `json:"ticket_id,omitempty"`
}

type RealtimeEventType string

const (
	RealtimeMessageCreated RealtimeEventType = "message_created"
	RealtimeMessageDeleted RealtimeEventType = "message_deleted"
	RealtimeNotification   RealtimeEventType = "notification"
)

// RealtimeEvent is the payload published on ticket and notification channels.
type RealtimeEvent struct {
	Type         RealtimeEventType `json:"type"`
	Message      *Message          `json:"message,omitempty"`
	MessageID    string            `json:"message_id,omitempty"`
	Notification *Notification     `json:"notification,omitempty"`
}
