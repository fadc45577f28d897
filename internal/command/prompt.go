package command

import (
	"errors"
	"fmt"

	"github.com/s21platform/ticketchat-service/internal/model"
)

var ErrEmptyChat = errors.New("@chat requires a question")

const (
	defaultPlanInstruction = "Create a detailed, step-by-step implementation plan for this ticket based on the conversation so far."
	defaultDevInstruction  = "Implement the approved plan for this ticket and open a pull request with the changes."
)

// Validate rejects commands that must never reach the backend.
func Validate(cmd model.Command) error {
	if cmd.Type == model.CommandChat && cmd.Payload == "" {
		return ErrEmptyChat
	}
	return nil
}

// BuildPrompt renders the message sent to the backend for cmd. transcript is
// only used by @chat; plans and implementations run inside the backend's own
// per-ticket session.
func BuildPrompt(cmd model.Command, transcript string) (string, error) {
	if err := Validate(cmd); err != nil {
		return "", err
	}

	switch cmd.Type {
	case model.CommandChat:
		return fmt.Sprintf(`You are an assistant taking part in a ticket discussion.

%s

Question from the team:
%s

Answer in 2-3 sentences. Do not modify any files and do not propose code changes unless asked.`, transcript, cmd.Payload), nil
	case model.CommandMakePlan:
		if cmd.Payload == "" {
			return defaultPlanInstruction, nil
		}
		return cmd.Payload, nil
	case model.CommandDev:
		if cmd.Payload == "" {
			return defaultDevInstruction, nil
		}
		return cmd.Payload, nil
	}

	return "", fmt.Errorf("unsupported command %q", cmd.Type)
}

// PhaseLabel is the text of the placeholder shown while the backend works.
func PhaseLabel(t model.CommandType) string {
	switch t {
	case model.CommandChat:
		return "Thinking..."
	case model.CommandMakePlan:
		return "Drafting an implementation plan..."
	case model.CommandDev:
		return "Implementing changes..."
	}
	return "Working..."
}
