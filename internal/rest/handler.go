package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/s21platform/ticketchat-service/internal/config"
	"github.com/s21platform/ticketchat-service/internal/conversation"
	"github.com/s21platform/ticketchat-service/internal/model"
	"github.com/s21platform/ticketchat-service/internal/pkg/tx"
)

type Handler struct {
	repository       DBRepo
	conversation     Conversation
	centrifugeClient CetrifugeClient
	commandBackend   CommandBackend
	validator        Validator
	jwtGenerator     JWTGenerator
}

func New(
	repo DBRepo,
	conv Conversation,
	centrifugeClient CetrifugeClient,
	commandBackend CommandBackend,
	validator Validator,
	jwtGenerator JWTGenerator,
) *Handler {
	return &Handler{
		repository:       repo,
		conversation:     conv,
		centrifugeClient: centrifugeClient,
		commandBackend:   commandBackend,
		validator:        validator,
		jwtGenerator:     jwtGenerator,
	}
}

func (h *Handler) Register(router chi.Router) {
	router.Route("/api", func(r chi.Router) {
		r.Get("/tickets", h.ListTickets)
		r.Post("/tickets", h.CreateTicket)
		r.Get("/tickets/{identifier}", h.GetTicket)
		r.Delete("/tickets/{identifier}", h.DeleteTicket)
		r.Post("/tickets/{identifier}/workspace", h.PrepareWorkspace)
		r.Get("/tickets/{identifier}/subscribe-token", h.GetTicketSubscribeToken)

		r.Get("/conversation", h.GetConversation)
		r.Put("/conversation", h.OpenConversation)
		r.Post("/conversation/refetch", h.RefetchConversation)
		r.Put("/conversation/sync", h.SetConversationSync)
		r.Post("/conversation/messages", h.SendMessage)
		r.Post("/conversation/plan/approve", h.ApprovePlan)

		r.Get("/realtime/token", h.GetConnectAccessToken)
	})
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("ListTickets")

	tickets, err := h.repository.ListTickets(r.Context())
	if err != nil {
		logger.Error(fmt.Sprintf("failed to list tickets: %v", err))
		h.writeError(w, fmt.Sprintf("failed to list tickets: %v", err), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, model.TicketListResponse{Tickets: tickets}, http.StatusOK)
}

func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("CreateTicket")

	var req model.CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error(fmt.Sprintf("failed to decode request: %v", err))
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validator.ValidateCreateTicket(&req); err != nil {
		logger.Error(fmt.Sprintf("ticket validation failed: %v", err))
		h.writeError(w, fmt.Sprintf("ticket validation failed: %v", err), http.StatusBadRequest)
		return
	}

	user := h.conversation.User()
	ticket := model.Ticket{
		Identifier:   req.Identifier,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Priority:     req.Priority,
		RepoURL:      req.RepoURL,
		Participants: withParticipant(req.Participants, user),
	}

	var opening model.Message
	err := tx.TxExecute(r.Context(), func(ctx context.Context) error {
		if err := h.repository.CreateTicket(ctx, &ticket); err != nil {
			return err
		}

		opening = model.Message{
			TicketID:  ticket.ID,
			Sender:    model.SenderSystem,
			Kind:      model.KindSystem,
			Content:   model.StringPtr(fmt.Sprintf("Ticket %s created by %s.", ticket.Identifier, user)),
			Metadata:  &model.SystemMetadata{Event: model.SystemEventTicketCreated},
			Timestamp: time.Now(),
		}
		if err := h.repository.CreateMessage(ctx, &opening); err != nil {
			return fmt.Errorf("failed to save opening message: %w", err)
		}

		return nil
	})

	if errors.Is(err, model.ErrAlreadyExists) {
		logger.Warn(fmt.Sprintf("ticket %s already exists", req.Identifier))
		h.writeError(w, fmt.Sprintf("ticket %s already exists", req.Identifier), http.StatusConflict)
		return
	}
	if err != nil {
		logger.Error(fmt.Sprintf("failed to complete ticket creation transaction: %v", err))
		h.writeError(w, fmt.Sprintf("failed to create ticket: %v", err), http.StatusInternalServerError)
		return
	}

	if err := h.centrifugeClient.PublishMessage(r.Context(), opening); err != nil {
		logger.Error(fmt.Sprintf("failed to publish opening message: %v", err))
	}

	// the ticket stands without a workspace; PrepareWorkspace can retry
	if ticket.RepoURL != nil && *ticket.RepoURL != "" {
		if err := h.commandBackend.PrepareWorkspace(r.Context(), ticket.Identifier, *ticket.RepoURL); err != nil {
			logger.Warn(fmt.Sprintf("failed to prepare workspace of %s: %v", ticket.Identifier, err))
		}
	}

	logger.Info(fmt.Sprintf("created ticket %s", ticket.Identifier))
	h.writeJSON(w, ticket, http.StatusCreated)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("GetTicket")

	ticket, ok := h.lookupTicket(w, r, logger)
	if !ok {
		return
	}

	h.writeJSON(w, ticket, http.StatusOK)
}

func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("DeleteTicket")

	ticket, ok := h.lookupTicket(w, r, logger)
	if !ok {
		return
	}

	err := tx.TxExecute(r.Context(), func(ctx context.Context) error {
		return h.repository.DeleteTicket(ctx, ticket.ID)
	})
	if err != nil {
		logger.Error(fmt.Sprintf("failed to delete ticket %s: %v", ticket.Identifier, err))
		h.writeError(w, fmt.Sprintf("failed to delete ticket: %v", err), http.StatusInternalServerError)
		return
	}

	h.conversation.Forget(r.Context(), ticket.ID)

	logger.Info(fmt.Sprintf("deleted ticket %s", ticket.Identifier))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PrepareWorkspace(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("PrepareWorkspace")

	ticket, ok := h.lookupTicket(w, r, logger)
	if !ok {
		return
	}

	if ticket.RepoURL == nil || *ticket.RepoURL == "" {
		h.writeError(w, fmt.Sprintf("ticket %s has no repository", ticket.Identifier), http.StatusConflict)
		return
	}

	if err := h.commandBackend.PrepareWorkspace(r.Context(), ticket.Identifier, *ticket.RepoURL); err != nil {
		logger.Error(fmt.Sprintf("failed to prepare workspace of %s: %v", ticket.Identifier, err))
		h.writeError(w, fmt.Sprintf("failed to prepare workspace: %v", err), http.StatusBadGateway)
		return
	}

	logger.Info(fmt.Sprintf("workspace of %s prepared", ticket.Identifier))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetConversation(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, h.conversation.Snapshot(), http.StatusOK)
}

func (h *Handler) OpenConversation(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("OpenConversation")

	var req model.OpenConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error(fmt.Sprintf("failed to decode request: %v", err))
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Identifier != "" {
		if err := h.validator.ValidateIdentifier(req.Identifier); err != nil {
			logger.Error(fmt.Sprintf("identifier validation failed: %v", err))
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	resp, err := h.conversation.Open(r.Context(), req.Identifier)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to open conversation %s: %v", req.Identifier, err))
		h.writeError(w, fmt.Sprintf("failed to open conversation: %v", err), statusFor(err))
		return
	}

	h.writeJSON(w, resp, http.StatusOK)
}

func (h *Handler) RefetchConversation(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("RefetchConversation")

	if err := h.conversation.Refetch(r.Context()); err != nil {
		logger.Error(fmt.Sprintf("failed to refetch conversation: %v", err))
		h.writeError(w, fmt.Sprintf("failed to refetch conversation: %v", err), statusFor(err))
		return
	}

	h.writeJSON(w, h.conversation.Snapshot(), http.StatusOK)
}

func (h *Handler) SetConversationSync(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("SetConversationSync")

	var req model.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error(fmt.Sprintf("failed to decode request: %v", err))
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.conversation.SetSyncEnabled(r.Context(), req.Enabled)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to switch sync to %t: %v", req.Enabled, err))
		h.writeError(w, fmt.Sprintf("failed to switch sync: %v", err), statusFor(err))
		return
	}

	h.writeJSON(w, resp, http.StatusOK)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("SendMessage")

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error(fmt.Sprintf("failed to decode request: %v", err))
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validator.ValidateSendMessage(&req); err != nil {
		logger.Error(fmt.Sprintf("message validation failed: %v", err))
		h.writeError(w, fmt.Sprintf("message validation failed: %v", err), http.StatusBadRequest)
		return
	}

	msg, err := h.conversation.Send(r.Context(), req.Content)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to send message: %v", err))
		h.writeError(w, fmt.Sprintf("failed to send message: %v", err), statusFor(err))
		return
	}

	h.writeJSON(w, model.SendMessageResponse{
		MessageID: msg.ID,
		Timestamp: msg.Timestamp.Format(time.RFC3339Nano),
	}, http.StatusCreated)
}

func (h *Handler) ApprovePlan(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("ApprovePlan")

	msg, err := h.conversation.ApprovePlan(r.Context())
	if err != nil {
		logger.Error(fmt.Sprintf("failed to approve plan: %v", err))
		h.writeError(w, fmt.Sprintf("failed to approve plan: %v", err), statusFor(err))
		return
	}

	h.writeJSON(w, msg, http.StatusCreated)
}

func (h *Handler) GetConnectAccessToken(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("GetConnectAccessToken")

	user := h.conversation.User()
	token, expiresAt, err := h.jwtGenerator.GenerateConnectToken(user)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to generate access token: %v", err))
		h.writeError(w, fmt.Sprintf("failed to generate access token: %v", err), http.StatusInternalServerError)
		return
	}

	logger.Info(fmt.Sprintf("generated access token for user %s", user))

	h.writeJSON(w, model.TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Channel:   model.NotificationChannel(user),
	}, http.StatusOK)
}

func (h *Handler) GetTicketSubscribeToken(w http.ResponseWriter, r *http.Request) {
	logger := logger_lib.FromContext(r.Context(), config.KeyLogger)
	logger.AddFuncName("GetTicketSubscribeToken")

	ticket, ok := h.lookupTicket(w, r, logger)
	if !ok {
		return
	}

	user := h.conversation.User()
	token, expiresAt, err := h.jwtGenerator.GenerateSubscribeToken(user, ticket.ID.String())
	if err != nil {
		logger.Error(fmt.Sprintf("failed to generate subscribe token: %v", err))
		h.writeError(w, fmt.Sprintf("failed to generate subscribe token: %v", err), http.StatusInternalServerError)
		return
	}

	logger.Info(fmt.Sprintf("generated subscribe token for user %s, ticket %s", user, ticket.Identifier))

	h.writeJSON(w, model.TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Channel:   model.TicketChannel(ticket.ID.String()),
	}, http.StatusOK)
}

// ----------------------------- helpers -----------------------------

func (h *Handler) lookupTicket(w http.ResponseWriter, r *http.Request, logger logger_lib.LoggerInterface) (*model.Ticket, bool) {
	identifier := chi.URLParam(r, "identifier")
	if err := h.validator.ValidateIdentifier(identifier); err != nil {
		logger.Error(fmt.Sprintf("identifier validation failed: %v", err))
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	ticket, err := h.repository.GetTicketByIdentifier(r.Context(), identifier)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to get ticket %s: %v", identifier, err))
		h.writeError(w, fmt.Sprintf("failed to get ticket: %v", err), statusFor(err))
		return nil, false
	}

	return ticket, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrNoConversation), errors.Is(err, conversation.ErrNoPlan):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func withParticipant(participants []string, user string) []string {
	out := make([]string, 0, len(participants)+1)
	seen := make(map[string]struct{}, len(participants)+1)
	for _, p := range append([]string{user}, participants...) {
		p = strings.TrimSpace(p)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(model.Error{Error: message})
}
