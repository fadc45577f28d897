package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/s21platform/ticketchat-service/internal/config"
	"github.com/s21platform/ticketchat-service/internal/model"
)

const endSentinel = "__END__"

type CommandRequest struct {
	TicketID string  `json:"ticket_id"`
	Action   string  `json:"action"`
	Message  *string `json:"message,omitempty"`
}

type CreateTicketResponse struct {
	Status   string `json:"status"`
	TicketID string `json:"ticket_id"`
	Message  string `json:"message"`
}

type Server struct {
	workspaces *Workspaces
	agent      *Agent
}

func NewServer(workspaces *Workspaces, agent *Agent) *Server {
	return &Server{workspaces: workspaces, agent: agent}
}

func (s *Server) Register(router chi.Router) {
	router.Post("/create_ticket", s.CreateTicket)
	router.Post("/command", s.Command)
}

// CreateTicket creates or reloads the workspace of a ticket. Parameters come
// from the query string.
func (s *Server) CreateTicket(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("CreateTicket")

	ticketID := r.URL.Query().Get("ticket_id")
	repoURL := r.URL.Query().Get("repo_url")

	created, err := s.workspaces.Prepare(r.Context(), ticketID, repoURL)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to prepare workspace %s: %v", ticketID, err))
		status := http.StatusInternalServerError
		if errors.Is(err, ErrInvalidTicketID) || errors.Is(err, ErrRepoURLRequired) {
			status = http.StatusBadRequest
		}
		writeError(w, err.Error(), status)
		return
	}

	resp := CreateTicketResponse{
		Status:   "ok",
		TicketID: ticketID,
		Message:  "Existing ticket loaded and branch prepared.",
	}
	if created {
		resp.Message = "New ticket created, repo cloned, and branch initialized."
	}
	writeJSON(w, resp, http.StatusOK)
}

// Command streams the agent's output for one command as server-sent events.
// Once the body decodes, the answer is always 200; failures are reported in
// the stream, which always ends with the sentinel.
func (s *Server) Command(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("Command")

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error(fmt.Sprintf("failed to decode request: %v", err))
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	events := newEventWriter(w)
	defer events.data(endSentinel)

	if _, err := s.workspaces.Ensure(req.TicketID); err != nil {
		logger.Warn(fmt.Sprintf("command for %s rejected: %v", req.TicketID, err))
		events.data(fmt.Sprintf("Workspace for ticket '%s' does not exist. Call /create_ticket.", req.TicketID))
		return
	}

	if err := s.workspaces.Checkout(r.Context(), req.TicketID); err != nil {
		logger.Warn(fmt.Sprintf("failed to check out ticket branch of %s: %v", req.TicketID, err))
	}

	var message string
	if req.Message != nil {
		message = *req.Message
	}

	lines, err := s.agent.Run(r.Context(), model.CommandType(req.Action), req.TicketID, message)
	if err != nil {
		events.data(fmt.Sprintf("Unknown action '%s'", req.Action))
		return
	}

	logger.Info(fmt.Sprintf("running %s for ticket %s", req.Action, req.TicketID))
	for line, err := range lines {
		if err != nil {
			logger.Error(fmt.Sprintf("%s for ticket %s failed: %v", req.Action, req.TicketID, err))
			events.data("Error: " + err.Error())
			return
		}
		events.data(strings.TrimSpace(line))
	}
}

// eventWriter frames text as server-sent events and flushes after each one.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	return &eventWriter{w: w, flusher: flusher}
}

// data sends text as one event per line; a data field cannot hold a newline.
func (e *eventWriter) data(text string) {
	for _, line := range strings.Split(text, "\n") {
		_, _ = fmt.Fprintf(e.w, "data: %s\n\n", strings.TrimRight(line, "\r"))
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, model.Error{Error: message}, statusCode)
}
