package validator

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/s21platform/ticketchat-service/internal/model"
)

const (
	maxMessageLength = 10000
	maxNameLength    = 255
	maxPriority      = 4
)

// Tracker keys look like "REL-123"; tickets created by hand use a slug.
var identifierRe = regexp.MustCompile(`^(?:[A-Z][A-Z0-9]*-[0-9]+|[a-z0-9]+(?:[-_][a-z0-9]+)*)$`)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

func (v *Validator) ValidateIdentifier(identifier string) error {
	if identifier == "" {
		return fmt.Errorf("ticket identifier is required")
	}
	if !identifierRe.MatchString(identifier) {
		return fmt.Errorf("ticket identifier '%s' is malformed", identifier)
	}
	return nil
}

func (v *Validator) ValidateCreateTicket(req *model.CreateTicketRequest) error {
	if err := v.ValidateIdentifier(req.Identifier); err != nil {
		return err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len([]rune(name)) > maxNameLength {
		return fmt.Errorf("name exceeds maximum length of %d characters", maxNameLength)
	}

	if req.Priority != nil && (*req.Priority < 0 || *req.Priority > maxPriority) {
		return fmt.Errorf("priority must be between 0 and %d", maxPriority)
	}

	if req.RepoURL != nil && *req.RepoURL != "" {
		u, err := url.Parse(*req.RepoURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return fmt.Errorf("repo_url '%s' is not an http(s) URL", *req.RepoURL)
		}
	}

	for _, p := range req.Participants {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("participant names cannot be empty")
		}
	}

	return nil
}

func (v *Validator) ValidateSendMessage(req *model.SendMessageRequest) error {
	if strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("content cannot be empty")
	}

	if len([]rune(req.Content)) > maxMessageLength {
		return fmt.Errorf("content exceeds maximum length of %d characters", maxMessageLength)
	}

	return nil
}
