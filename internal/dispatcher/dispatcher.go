package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/s21platform/ticketchat-service/internal/command"
	"github.com/s21platform/ticketchat-service/internal/config"
	"github.com/s21platform/ticketchat-service/internal/model"
)

const (
	emptyOutput = "The agent finished without output."

	cleanupTimeout = 10 * time.Second
)

// Dispatcher turns directives found in human messages into agent replies.
// Every message id is dispatched at most once per Dispatcher; a new
// Dispatcher is built for every conversation view.
type Dispatcher struct {
	store    Store
	gatherer ContextGatherer
	backend  Backend
	notifier Notifier
	metrics  Metrics
	user     string

	mu        sync.Mutex
	processed map[uuid.UUID]struct{}
}

func New(store Store, gatherer ContextGatherer, backend Backend, notifier Notifier, metrics Metrics, user string) *Dispatcher {
	return &Dispatcher{
		store:     store,
		gatherer:  gatherer,
		backend:   backend,
		notifier:  notifier,
		metrics:   metrics,
		user:      user,
		processed: make(map[uuid.UUID]struct{}),
	}
}

// HandleIncoming reacts to a message another client wrote. Messages of the
// local user are only marked: their sender already dispatched them.
func (d *Dispatcher) HandleIncoming(ctx context.Context, msg model.Message) {
	if d.isProcessed(msg.ID) {
		return
	}

	if msg.Sender == d.user {
		d.markProcessed(msg.ID)
		return
	}

	if msg.Kind != model.KindHuman {
		return
	}

	cmd := command.Detect(msg.Text())
	if !cmd.Found() {
		return
	}

	if !d.markProcessed(msg.ID) {
		return
	}

	d.run(ctx, msg, cmd)
}

// HandleOwn dispatches a message the local user has just persisted.
func (d *Dispatcher) HandleOwn(ctx context.Context, msg model.Message) {
	if !d.markProcessed(msg.ID) {
		return
	}

	cmd := command.Detect(msg.Text())
	if !cmd.Found() {
		return
	}

	d.run(ctx, msg, cmd)
}

func (d *Dispatcher) isProcessed(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.processed[id]
	return ok
}

// markProcessed reports whether id was newly marked.
func (d *Dispatcher) markProcessed(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.processed[id]; ok {
		return false
	}
	d.processed[id] = struct{}{}
	return true
}

func (d *Dispatcher) run(ctx context.Context, msg model.Message, cmd model.Command) {
	logger := logger_lib.FromContext(ctx, config.KeyLogger)
	logger.AddFuncName("Dispatch")

	if err := command.Validate(cmd); err != nil {
		logger.Warn(fmt.Sprintf("rejected %s from %s: %v", cmd.Token, msg.Sender, err))
		d.increment(cmd.Type, "rejected")
		d.notifier.Notify(ctx, model.Notification{
			Level:    model.NotificationError,
			Title:    "Nothing to ask",
			Text:     "Write your question after @chat.",
			TicketID: msg.TicketID.String(),
		})
		return
	}

	d.increment(cmd.Type, "started")
	logger.Info(fmt.Sprintf("dispatching %s for message %s", cmd.Token, msg.ID))

	placeholder, err := d.execute(ctx, msg, cmd)

	// a cancelled dispatch must still clean up after itself
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if placeholder != nil {
		if delErr := d.store.DeleteMessage(cleanupCtx, placeholder.ID); delErr != nil {
			logger.Warn(fmt.Sprintf("failed to remove placeholder %s: %v", placeholder.ID, delErr))
		}
	}

	if err != nil {
		d.fail(cleanupCtx, msg, cmd, err)
		return
	}

	d.increment(cmd.Type, "succeeded")
	d.notifier.Notify(ctx, model.Notification{
		Level:    model.NotificationSuccess,
		Title:    successTitle(cmd.Type),
		TicketID: msg.TicketID.String(),
	})
}

// execute runs the pipeline up to the persisted reply. The placeholder is
// returned whenever it was written so the caller can drop it.
func (d *Dispatcher) execute(ctx context.Context, msg model.Message, cmd model.Command) (*model.Message, error) {
	ticket, err := d.store.GetTicketByID(ctx, msg.TicketID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket: %w", err)
	}

	transcript, err := d.gatherer.Gather(ctx, msg.TicketID)
	if err != nil {
		return nil, fmt.Errorf("failed to gather conversation context: %w", err)
	}

	prompt, err := command.BuildPrompt(cmd, transcript)
	if err != nil {
		return nil, err
	}

	placeholder := &model.Message{
		TicketID: msg.TicketID,
		Sender:   cmd.Type.AgentName(),
		Kind:     model.KindAgent,
		Content:  model.StringPtr(command.PhaseLabel(cmd.Type)),
		Metadata: &model.AgentMetadata{Agent: string(cmd.Type), Streaming: true},
	}
	if err := d.store.CreateMessage(ctx, placeholder); err != nil {
		return nil, fmt.Errorf("failed to save placeholder: %w", err)
	}

	var chunks []string
	for chunk, err := range d.backend.Execute(ctx, ticket.Identifier, cmd.Type, prompt) {
		if err != nil {
			return placeholder, fmt.Errorf("command backend failed: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	output := command.CleanOutput(chunks)
	if output == "" {
		output = emptyOutput
	}

	reply := replyFor(msg.TicketID, cmd.Type, output)
	if err := d.store.CreateMessage(ctx, &reply); err != nil {
		return placeholder, fmt.Errorf("failed to save reply: %w", err)
	}

	return placeholder, nil
}

func replyFor(ticketID uuid.UUID, t model.CommandType, output string) model.Message {
	reply := model.Message{
		TicketID: ticketID,
		Sender:   t.AgentName(),
		Content:  model.StringPtr(output),
	}

	switch t {
	case model.CommandMakePlan:
		reply.Kind = model.KindArchitectPlan
		reply.Metadata = &model.PlanMetadata{Agent: string(t)}
	case model.CommandDev:
		reply.Kind = model.KindAgent
		reply.Metadata = &model.AgentMetadata{Agent: string(t), PRLink: command.ExtractPRLink(output)}
	default:
		reply.Kind = model.KindAgent
		reply.Metadata = &model.AgentMetadata{Agent: string(t)}
	}

	return reply
}

// fail leaves a durable record of the failure in the conversation so every
// participant sees it, and tells the local user.
func (d *Dispatcher) fail(ctx context.Context, msg model.Message, cmd model.Command, cause error) {
	logger := logger_lib.FromContext(ctx, config.KeyLogger)
	logger.Error(fmt.Sprintf("%s for message %s failed: %v", cmd.Token, msg.ID, cause))
	d.increment(cmd.Type, "failed")

	record := &model.Message{
		TicketID: msg.TicketID,
		Sender:   model.SenderSystem,
		Kind:     model.KindSystem,
		Content:  model.StringPtr(fmt.Sprintf("%s requested by %s failed: %v", cmd.Token, msg.Sender, cause)),
		Metadata: &model.SystemMetadata{Event: model.SystemEventCommandFailed},
	}
	if err := d.store.CreateMessage(ctx, record); err != nil {
		logger.Error(fmt.Sprintf("failed to record command failure: %v", err))
	}

	d.notifier.Notify(ctx, model.Notification{
		Level:    model.NotificationError,
		Title:    fmt.Sprintf("%s failed", cmd.Token),
		Text:     cause.Error(),
		TicketID: msg.TicketID.String(),
	})
}

func (d *Dispatcher) increment(t model.CommandType, outcome string) {
	if d.metrics == nil {
		return
	}
	d.metrics.Increment(fmt.Sprintf("command.%s.%s", t, outcome))
}

func successTitle(t model.CommandType) string {
	switch t {
	case model.CommandMakePlan:
		return "Plan ready"
	case model.CommandDev:
		return "Implementation finished"
	}
	return "AI Assistant replied"
}
