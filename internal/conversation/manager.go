// Package conversation owns the single conversation view of the local user:
// the open ticket, its synchronised message list, its derived state and the
// dispatcher reacting to directives.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/s21platform/ticketchat-service/internal/config"
	"github.com/s21platform/ticketchat-service/internal/dispatcher"
	"github.com/s21platform/ticketchat-service/internal/model"
	"github.com/s21platform/ticketchat-service/internal/poller"
	"github.com/s21platform/ticketchat-service/internal/transcript"
)

var (
	ErrNoConversation = errors.New("no conversation is open")
	ErrNoPlan         = errors.New("there is no plan to approve")
	ErrClosed         = errors.New("conversation manager is closed")
)

type Manager struct {
	store     Store
	publisher Publisher
	backend   Backend
	metrics   Metrics
	notifier  *notifier
	user      string
	poller    *poller.Poller

	current atomic.Pointer[session]

	// serialises view switches; held across the full fetch
	switchMu sync.Mutex

	mu     sync.Mutex
	closed bool

	// dispatches outlive the request that triggered them but not the manager
	lifetime context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

type session struct {
	ticket     model.Ticket
	dispatcher *dispatcher.Dispatcher

	mu    sync.Mutex
	state model.TicketState
}

func (s *session) apply(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Apply(msg)
}

func (s *session) reset(messages []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = model.RebuildTicketState(messages)
}

func (s *session) snapshotState() model.TicketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func New(cfg *config.Config, store Store, publisher Publisher, backend Backend, metrics Metrics) *Manager {
	lifetime, stop := context.WithCancel(context.Background())
	m := &Manager{
		store:     store,
		publisher: publisher,
		backend:   backend,
		metrics:   metrics,
		user:      cfg.Chat.User(),
		lifetime:  lifetime,
		stop:      stop,
	}
	m.notifier = &notifier{publisher: publisher, user: m.user}

	m.poller = poller.New(store, poller.Options{
		Interval: cfg.Chat.PollingInterval(),
		Metrics:  metrics,
		OnNew:    m.onNew,
		OnLoad:   m.onLoad,
	})

	return m
}

func (m *Manager) User() string {
	return m.user
}

// Open makes the ticket with identifier the open conversation. An empty
// identifier closes the view. Opening another ticket starts from fresh
// state: a new dispatcher, a new processed set and a new aggregate.
func (m *Manager) Open(ctx context.Context, identifier string) (model.ConversationResponse, error) {
	logger := logger_lib.FromContext(ctx, config.KeyLogger)
	logger.AddFuncName("Open")

	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	if m.isClosed() {
		return model.ConversationResponse{}, ErrClosed
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		m.current.Store(nil)
		if err := m.poller.SetTicket(ctx, uuid.Nil); err != nil {
			return model.ConversationResponse{}, err
		}
		return m.Snapshot(), nil
	}

	ticket, err := m.store.GetTicketByIdentifier(ctx, identifier)
	if err != nil {
		return model.ConversationResponse{}, fmt.Errorf("failed to load ticket %s: %w", identifier, err)
	}

	if cur := m.current.Load(); cur != nil && cur.ticket.ID == ticket.ID {
		return m.Snapshot(), nil
	}

	m.current.Store(m.newSession(*ticket))
	logger.Info(fmt.Sprintf("opened conversation of %s for %s", ticket.Identifier, m.user))

	if err := m.poller.SetTicket(ctx, ticket.ID); err != nil {
		return m.Snapshot(), err
	}
	return m.Snapshot(), nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SetSyncEnabled pauses or resumes polling of the open conversation.
// Resuming reloads the whole list.
func (m *Manager) SetSyncEnabled(ctx context.Context, enabled bool) (model.ConversationResponse, error) {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	if m.isClosed() {
		return model.ConversationResponse{}, ErrClosed
	}

	if err := m.poller.SetEnabled(ctx, enabled); err != nil {
		return m.Snapshot(), err
	}
	return m.Snapshot(), nil
}

func (m *Manager) newSession(ticket model.Ticket) *session {
	store := &publishingStore{
		Store:     m.store,
		publisher: m.publisher,
		ticketID:  ticket.ID,
		onDelete:  m.poller.Remove,
	}

	return &session{
		ticket:     ticket,
		dispatcher: dispatcher.New(store, transcript.New(m.store), m.backend, m.notifier, m.metrics, m.user),
		state:      model.NewTicketState(),
	}
}

// Forget closes the view if it shows ticketID, used when the ticket is gone.
func (m *Manager) Forget(ctx context.Context, ticketID uuid.UUID) {
	if cur := m.current.Load(); cur == nil || cur.ticket.ID != ticketID {
		return
	}
	_, _ = m.Open(ctx, "")
}

func (m *Manager) Refetch(ctx context.Context) error {
	if m.current.Load() == nil {
		return ErrNoConversation
	}
	return m.poller.Refetch(ctx)
}

// Send writes a message of the local user to the open conversation and
// dispatches the directive it carries, if any, in the background.
func (m *Manager) Send(ctx context.Context, content string) (model.Message, error) {
	logger := logger_lib.FromContext(ctx, config.KeyLogger)
	logger.AddFuncName("Send")

	s := m.current.Load()
	if s == nil {
		return model.Message{}, ErrNoConversation
	}

	msg := model.Message{
		TicketID:  s.ticket.ID,
		Sender:    m.user,
		Kind:      model.KindHuman,
		Content:   model.StringPtr(content),
		Metadata:  &model.HumanMetadata{Avatar: model.Initials(m.user)},
		Timestamp: time.Now(),
	}

	if err := m.write(ctx, s, &msg); err != nil {
		return model.Message{}, err
	}

	if err := m.goDispatch(ctx, func(ctx context.Context) {
		s.dispatcher.HandleOwn(ctx, msg)
	}); err != nil {
		logger.Warn(fmt.Sprintf("message %s saved but not dispatched: %v", msg.ID, err))
	}

	return msg, nil
}

// ApprovePlan records the local user's approval of the latest plan.
func (m *Manager) ApprovePlan(ctx context.Context) (model.Message, error) {
	s := m.current.Load()
	if s == nil {
		return model.Message{}, ErrNoConversation
	}
	if s.snapshotState().PlanStatus != model.PlanReady {
		return model.Message{}, ErrNoPlan
	}

	msg := model.Message{
		TicketID:  s.ticket.ID,
		Sender:    model.SenderSystem,
		Kind:      model.KindSystem,
		Content:   model.StringPtr(fmt.Sprintf("Plan approved by %s.", m.user)),
		Metadata:  &model.SystemMetadata{Event: model.SystemEventPlanApproved},
		Timestamp: time.Now(),
	}

	if err := m.write(ctx, s, &msg); err != nil {
		return model.Message{}, err
	}
	s.apply(msg)

	return msg, nil
}

// write persists and publishes msg and echoes it into the view. A view with
// no cursor yet is refetched so polling can start.
func (m *Manager) write(ctx context.Context, s *session, msg *model.Message) error {
	store := &publishingStore{Store: m.store, publisher: m.publisher, ticketID: s.ticket.ID}
	if err := store.CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	m.poller.Append(*msg)

	if m.poller.Snapshot().Cursor == nil {
		if err := m.poller.Refetch(ctx); err != nil {
			logger := logger_lib.FromContext(ctx, config.KeyLogger)
			logger.Warn(fmt.Sprintf("failed to refetch after first message: %v", err))
		}
	}
	return nil
}

func (m *Manager) Snapshot() model.ConversationResponse {
	snap := m.poller.Snapshot()

	resp := model.ConversationResponse{
		Messages: visible(snap.Messages),
		Loading:  snap.Loading,
		Syncing:  snap.Enabled,
		Error:    snap.Error,
		State:    model.NewTicketState(),
		User:     m.user,
	}

	if s := m.current.Load(); s != nil {
		ticket := s.ticket
		resp.Ticket = &ticket
		resp.State = s.snapshotState()
	}
	return resp
}

// Close stops polling, cancels running dispatches and waits for them.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.poller.Close()
	m.stop()
	m.wg.Wait()
}

func (m *Manager) onLoad(messages []model.Message) {
	if s := m.current.Load(); s != nil {
		s.reset(messages)
	}
}

func (m *Manager) onNew(ctx context.Context, msg model.Message) {
	s := m.current.Load()
	if s == nil || s.ticket.ID != msg.TicketID {
		return
	}

	s.apply(msg)

	if err := m.goDispatch(ctx, func(ctx context.Context) {
		s.dispatcher.HandleIncoming(ctx, msg)
	}); err != nil {
		logger := logger_lib.FromContext(ctx, config.KeyLogger)
		logger.Warn(fmt.Sprintf("message %s not dispatched: %v", msg.ID, err))
	}
}

// goDispatch runs fn with the values of trigger but bound to the manager's
// lifetime instead of the trigger's.
func (m *Manager) goDispatch(trigger context.Context, fn func(ctx context.Context)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(trigger))
	stop := context.AfterFunc(m.lifetime, cancel)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer stop()
		fn(ctx)
	}()

	return nil
}

// visible hides streaming placeholders that a later message of the same
// agent already superseded. Placeholders of other clients are only deleted
// from the store, never from this view's list.
func visible(messages []model.Message) []model.Message {
	out := make([]model.Message, 0, len(messages))
	for i, msg := range messages {
		if msg.IsStreamingPlaceholder() && supersededAfter(messages[i+1:], msg.Sender) {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func supersededAfter(later []model.Message, sender string) bool {
	for _, m := range later {
		if m.Sender == sender && !m.IsStreamingPlaceholder() {
			return true
		}
	}
	return false
}
