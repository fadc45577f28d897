// Package poller keeps one conversation view's message list in sync with the
// store: a full fetch whenever the ticket changes, then cursor based
// incremental fetches on a fixed interval.
package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/s21platform/ticketchat-service/internal/config"
	"github.com/s21platform/ticketchat-service/internal/model"
)

const metricIncrementalFailed = "poll.incremental.failed"

type Options struct {
	Interval time.Duration
	Metrics  Metrics

	// OnNew is called once per message appended by an incremental fetch, in
	// ascending timestamp order.
	OnNew func(ctx context.Context, msg model.Message)

	// OnLoad is called with the list of every successful full fetch. It runs
	// under the poller lock and must not call back into the Poller.
	OnLoad func(messages []model.Message)
}

type Snapshot struct {
	TicketID uuid.UUID       `json:"ticket_id"`
	Messages []model.Message `json:"messages"`
	Loading  bool            `json:"loading"`
	Enabled  bool            `json:"enabled"`
	Error    string          `json:"error,omitempty"`
	Cursor   *time.Time      `json:"cursor,omitempty"`
}

type Poller struct {
	store Store
	opts  Options

	mu         sync.Mutex
	ticketID   uuid.UUID
	enabled    bool
	closed     bool
	generation uint64
	messages   []model.Message
	seen       map[uuid.UUID]struct{}
	cursor     time.Time
	hasCursor  bool
	loading    bool
	lastErr    string

	busy atomic.Bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(store Store, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	return &Poller{
		store:   store,
		opts:    opts,
		enabled: true,
		seen:    make(map[uuid.UUID]struct{}),
	}
}

// SetTicket switches the view to ticketID. Every switch starts from fresh
// state; uuid.Nil clears the view. Results of fetches started for a previous
// ticket are dropped.
func (p *Poller) SetTicket(ctx context.Context, ticketID uuid.UUID) error {
	p.mu.Lock()
	if p.closed || p.ticketID == ticketID {
		p.mu.Unlock()
		return nil
	}

	p.ticketID = ticketID
	p.generation++
	p.messages = nil
	p.seen = make(map[uuid.UUID]struct{})
	p.cursor = time.Time{}
	p.hasCursor = false
	p.loading = false
	p.lastErr = ""
	p.stopLoopLocked()

	fetch := ticketID != uuid.Nil && p.enabled
	gen := p.generation
	p.mu.Unlock()

	if !fetch {
		return nil
	}
	return p.fullFetch(ctx, gen, ticketID)
}

// SetEnabled pauses or resumes synchronisation. Resuming performs a full
// fetch of the current ticket.
func (p *Poller) SetEnabled(ctx context.Context, enabled bool) error {
	p.mu.Lock()
	if p.closed || p.enabled == enabled {
		p.mu.Unlock()
		return nil
	}

	p.enabled = enabled
	p.stopLoopLocked()
	if !enabled || p.ticketID == uuid.Nil {
		p.mu.Unlock()
		return nil
	}

	p.generation++
	gen, ticketID := p.generation, p.ticketID
	p.mu.Unlock()

	return p.fullFetch(ctx, gen, ticketID)
}

// Refetch reloads the whole list of the current ticket.
func (p *Poller) Refetch(ctx context.Context) error {
	p.mu.Lock()
	if p.closed || !p.enabled || p.ticketID == uuid.Nil {
		p.mu.Unlock()
		return nil
	}

	p.generation++
	gen, ticketID := p.generation, p.ticketID
	p.mu.Unlock()

	return p.fullFetch(ctx, gen, ticketID)
}

func (p *Poller) fullFetch(ctx context.Context, gen uint64, ticketID uuid.UUID) error {
	logger := logger_lib.FromContext(ctx, config.KeyLogger)
	logger.AddFuncName("FullFetch")

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return nil
	}
	p.loading = true
	p.mu.Unlock()

	messages, err := p.store.ListMessages(ctx, ticketID)

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.generation {
		return nil
	}
	p.loading = false

	if err != nil {
		logger.Error(fmt.Sprintf("failed to load messages of ticket %s: %v", ticketID, err))
		p.lastErr = err.Error()
		return fmt.Errorf("failed to load messages: %w", err)
	}

	p.lastErr = ""
	p.messages = append([]model.Message(nil), messages...)
	p.seen = make(map[uuid.UUID]struct{}, len(messages))
	for _, m := range messages {
		p.seen[m.ID] = struct{}{}
	}

	p.hasCursor = len(messages) > 0
	p.cursor = time.Time{}
	if p.hasCursor {
		p.cursor = messages[len(messages)-1].Timestamp
	}

	if p.opts.OnLoad != nil {
		p.opts.OnLoad(append([]model.Message(nil), p.messages...))
	}

	p.baseCtx = context.WithoutCancel(ctx)
	p.startLoopLocked()

	return nil
}

// Poll runs one incremental fetch. A call made while another one is still in
// flight returns immediately.
func (p *Poller) Poll(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		return
	}
	defer p.busy.Store(false)

	p.mu.Lock()
	if p.closed || !p.enabled || p.ticketID == uuid.Nil || !p.hasCursor {
		p.mu.Unlock()
		return
	}
	gen, ticketID, cursor := p.generation, p.ticketID, p.cursor
	p.mu.Unlock()

	logger := logger_lib.FromContext(ctx, config.KeyLogger)
	logger.AddFuncName("Poll")

	messages, err := p.store.ListMessagesAfter(ctx, ticketID, cursor)
	if err != nil {
		// stopped by a ticket switch or Close
		if ctx.Err() != nil {
			return
		}
		logger.Warn(fmt.Sprintf("incremental fetch of ticket %s failed: %v", ticketID, err))
		if p.opts.Metrics != nil {
			p.opts.Metrics.Increment(metricIncrementalFailed)
		}
		return
	}

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return
	}

	fresh := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		if m.Timestamp.After(p.cursor) {
			p.cursor = m.Timestamp
		}
		if _, ok := p.seen[m.ID]; ok {
			continue
		}
		p.seen[m.ID] = struct{}{}
		p.messages = append(p.messages, m)
		fresh = append(fresh, m)
	}
	p.mu.Unlock()

	if p.opts.OnNew == nil {
		return
	}
	for _, m := range fresh {
		p.opts.OnNew(ctx, m)
	}
}

// Append echoes a message this client wrote itself. It is never reported to
// OnNew, and later fetches returning it do not duplicate it.
func (p *Poller) Append(msg model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || msg.TicketID != p.ticketID {
		return
	}
	if _, ok := p.seen[msg.ID]; ok {
		return
	}
	p.seen[msg.ID] = struct{}{}
	p.messages = append(p.messages, msg)
}

// Remove drops a message this client deleted. Its id stays known, so a fetch
// that raced with the deletion cannot bring it back as new.
func (p *Poller) Remove(messageID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seen[messageID] = struct{}{}
	for i, m := range p.messages {
		if m.ID == messageID {
			p.messages = append(p.messages[:i:i], p.messages[i+1:]...)
			return
		}
	}
}

func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Snapshot{
		TicketID: p.ticketID,
		Messages: append([]model.Message(nil), p.messages...),
		Loading:  p.loading,
		Enabled:  p.enabled,
		Error:    p.lastErr,
	}
	if p.hasCursor {
		cursor := p.cursor
		s.Cursor = &cursor
	}
	return s
}

// Close stops the timer and waits for it to exit. A closed Poller ignores
// every further call.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	p.generation++
	p.stopLoopLocked()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) startLoopLocked() {
	if p.cancel != nil || p.closed || !p.enabled || !p.hasCursor {
		return
	}

	ctx, cancel := context.WithCancel(p.baseCtx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(ctx)
	}()
}

func (p *Poller) stopLoopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}
