package backend

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/s21platform/ticketchat-service/internal/config"
)

var ErrNoSession = errors.New("no session found in session list")

var sessionPattern = regexp.MustCompile(`\[([0-9a-fA-F-]{36})\]`)

// Sessions keeps one long-lived LLM CLI session per ticket so that chat,
// planning and development share what the agent learnt about the repository.
type Sessions struct {
	cli    string
	runner Runner

	mu       sync.Mutex
	byTicket map[string]string
}

func NewSessions(cli string, runner Runner) *Sessions {
	return &Sessions{
		cli:      cli,
		runner:   runner,
		byTicket: make(map[string]string),
	}
}

// Get returns the session of ticketID, starting one in dir on first use.
func (s *Sessions) Get(ctx context.Context, ticketID, dir string) (string, error) {
	logger := logger_lib.FromContext(ctx, config.KeyLogger)
	logger.AddFuncName("GetSession")

	s.mu.Lock()
	id, ok := s.byTicket[ticketID]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	initPrompt := fmt.Sprintf("Initialize a long-lived development session for ticket %s.", ticketID)
	if _, err := s.runner.Run(ctx, dir, []string{s.cli, "-p", initPrompt}); err != nil {
		logger.Warn(fmt.Sprintf("session init for %s failed: %v", ticketID, err))
	}

	out, err := s.runner.Run(ctx, dir, []string{s.cli, "--list-sessions"})
	if err != nil {
		return "", fmt.Errorf("failed to list sessions for ticket '%s': %w", ticketID, err)
	}

	id, err = latestSession(string(out))
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byTicket[ticketID]; ok {
		return existing, nil
	}
	s.byTicket[ticketID] = id

	logger.Info(fmt.Sprintf("ticket %s uses session %s", ticketID, id))
	return id, nil
}

// latestSession picks the last bracketed uuid of a session listing.
func latestSession(listing string) (string, error) {
	matches := sessionPattern.FindAllStringSubmatch(listing, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if id, err := uuid.Parse(matches[i][1]); err == nil {
			return id.String(), nil
		}
	}
	return "", ErrNoSession
}
