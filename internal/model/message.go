package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindHuman         MessageKind = "human"
	KindAgent         MessageKind = "agent"
	KindSystem        MessageKind = "system"
	KindArchitectPlan MessageKind = "architect-plan"
	KindDiffGenerated MessageKind = "diff-generated"
)

func (k MessageKind) Valid() bool {
	switch k {
	case KindHuman, KindAgent, KindSystem, KindArchitectPlan, KindDiffGenerated:
		return true
	}
	return false
}

const (
	SenderSystem = "System"

	SystemEventTicketCreated = "ticket_created"
	SystemEventCommandFailed = "command_failed"
	SystemEventPlanApproved  = "plan_approved"
)

type MessageList []Message

// Message is one entry of a ticket conversation. Timestamp orders the
// conversation and is set by the writer; CreatedAt is the row creation time.
type Message struct {
	ID        uuid.UUID   `json:"id"`
	TicketID  uuid.UUID   `json:"ticket_id"`
	Sender    string      `json:"user_or_agent"`
	Kind      MessageKind `json:"message_type"`
	Content   *string     `json:"content,omitempty"`
	Metadata  Metadata    `json:"metadata,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	CreatedAt time.Time   `json:"created_at"`
}

func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// IsStreamingPlaceholder reports whether m is the transient "thinking" row
// an agent writes while its answer is still being generated.
func (m Message) IsStreamingPlaceholder() bool {
	meta, ok := m.Metadata.(*AgentMetadata)
	return ok && m.Kind == KindAgent && meta.Streaming
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		*alias
		Metadata json.RawMessage `json:"metadata,omitempty"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	meta, err := DecodeMetadata(m.Kind, aux.Metadata)
	if err != nil {
		return err
	}
	m.Metadata = meta

	return nil
}

// Metadata is the kind-specific payload of a message. Each message kind owns
// exactly one concrete metadata type.
type Metadata interface {
	Kind() MessageKind
}

type HumanMetadata struct {
	Avatar string `json:"avatar,omitempty"`
}

type AgentMetadata struct {
	Agent     string `json:"agent,omitempty"`
	Streaming bool   `json:"streaming,omitempty"`
	PRLink    string `json:"pr_link,omitempty"`
}

type SystemMetadata struct {
	Event string `json:"event,omitempty"`
}

type PlanMetadata struct {
	Agent string `json:"agent,omitempty"`
}

type DiffMetadata struct {
	PRLink string `json:"pr_link,omitempty"`
	Branch string `json:"branch,omitempty"`
}

func (*HumanMetadata) Kind() MessageKind  { return KindHuman }
func (*AgentMetadata) Kind() MessageKind  { return KindAgent }
func (*SystemMetadata) Kind() MessageKind { return KindSystem }
func (*PlanMetadata) Kind() MessageKind   { return KindArchitectPlan }
func (*DiffMetadata) Kind() MessageKind   { return KindDiffGenerated }

// DecodeMetadata decodes a raw metadata document into the payload type owned
// by kind. Empty and null documents decode to nil.
func DecodeMetadata(kind MessageKind, raw []byte) (Metadata, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" {
		return nil, nil
	}

	var meta Metadata
	switch kind {
	case KindHuman:
		meta = &HumanMetadata{}
	case KindAgent:
		meta = &AgentMetadata{}
	case KindSystem:
		meta = &SystemMetadata{}
	case KindArchitectPlan:
		meta = &PlanMetadata{}
	case KindDiffGenerated:
		meta = &DiffMetadata{}
	default:
		return nil, fmt.Errorf("unknown message kind %q", kind)
	}

	if err := json.Unmarshal(raw, meta); err != nil {
		return nil, fmt.Errorf("failed to decode %s metadata: %w", kind, err)
	}

	return meta, nil
}

// EncodeMetadata is the inverse of DecodeMetadata. It refuses payloads that
// do not belong to kind.
func EncodeMetadata(kind MessageKind, meta Metadata) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	if meta.Kind() != kind {
		return nil, fmt.Errorf("metadata of kind %q cannot be attached to a %q message", meta.Kind(), kind)
	}
	return json.Marshal(meta)
}

// Initials builds the avatar label shown next to a human message.
func Initials(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "?"
	}

	initials := make([]rune, 0, 2)
	for _, f := range fields[:min(len(fields), 2)] {
		initials = append(initials, []rune(strings.ToUpper(f))[0])
	}
	return string(initials)
}

func StringPtr(s string) *string {
	return &s
}
