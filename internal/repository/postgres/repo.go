package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/s21platform/ticketchat-service/internal/config"
	"github.com/s21platform/ticketchat-service/internal/model"
)

var ErrNotFound = model.ErrNotFound

const uniqueViolation = "23505"

type txKey struct{}

type executor interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type Repository struct {
	connection *sqlx.DB
}

func New(cfg *config.Config) *Repository {
	conStr := fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%s sslmode=disable",
		cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.Host, cfg.Postgres.Port)

	conn, err := sqlx.Connect("postgres", conStr)
	if err != nil {
		log.Fatal("error connect: ", err)
	}

	return &Repository{
		connection: conn,
	}
}

func (r *Repository) Close() {
	_ = r.connection.Close()
}

// Chk returns the transaction bound to ctx, or the pool when there is none.
func (r *Repository) Chk(ctx context.Context) executor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return r.connection
}

func (r *Repository) WithTx(ctx context.Context, cb func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return cb(ctx)
	}

	tx, err := r.connection.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := cb(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ----------------------------- tickets -----------------------------

type ticketRow struct {
	ID           uuid.UUID      `db:"id"`
	Identifier   string         `db:"ticket_identifier"`
	Name         string         `db:"name"`
	Description  *string        `db:"description"`
	Priority     *int           `db:"priority"`
	RepoURL      *string        `db:"repo_url"`
	Participants pq.StringArray `db:"participants"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (row ticketRow) toModel() model.Ticket {
	participants := []string(row.Participants)
	if participants == nil {
		participants = []string{}
	}
	return model.Ticket{
		ID:           row.ID,
		Identifier:   row.Identifier,
		Name:         row.Name,
		Description:  row.Description,
		Priority:     row.Priority,
		RepoURL:      row.RepoURL,
		Participants: participants,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

var ticketColumns = []string{
	"id",
	"ticket_identifier",
	"name",
	"description",
	"priority",
	"repo_url",
	"participants",
	"created_at",
	"updated_at",
}

func (r *Repository) CreateTicket(ctx context.Context, ticket *model.Ticket) error {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}

	query, args, err := sq.Insert("tickets").
		Columns("id", "ticket_identifier", "name", "description", "priority", "repo_url", "participants").
		Values(ticket.ID, ticket.Identifier, ticket.Name, ticket.Description, ticket.Priority, ticket.RepoURL, pq.StringArray(ticket.Participants)).
		Suffix("RETURNING created_at, updated_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	var stamps struct {
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	if err := r.Chk(ctx).GetContext(ctx, &stamps, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("ticket %s: %w", ticket.Identifier, model.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	ticket.CreatedAt = stamps.CreatedAt
	ticket.UpdatedAt = stamps.UpdatedAt

	return nil
}

func (r *Repository) GetTicketByID(ctx context.Context, ticketID uuid.UUID) (*model.Ticket, error) {
	return r.getTicket(ctx, sq.Eq{"id": ticketID})
}

func (r *Repository) GetTicketByIdentifier(ctx context.Context, identifier string) (*model.Ticket, error) {
	return r.getTicket(ctx, sq.Eq{"ticket_identifier": identifier})
}

func (r *Repository) getTicket(ctx context.Context, where sq.Eq) (*model.Ticket, error) {
	query, args, err := sq.Select(ticketColumns...).
		From("tickets").
		Where(where).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var row ticketRow
	err = r.Chk(ctx).GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	ticket := row.toModel()
	return &ticket, nil
}

func (r *Repository) ListTickets(ctx context.Context) (model.TicketList, error) {
	query, args, err := sq.Select(ticketColumns...).
		From("tickets").
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var rows []ticketRow
	if err := r.Chk(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}

	tickets := make(model.TicketList, 0, len(rows))
	for _, row := range rows {
		tickets = append(tickets, row.toModel())
	}

	return tickets, nil
}

func (r *Repository) UpdateTicketDetails(ctx context.Context, details model.TicketDetails) error {
	query, args, err := sq.Update("tickets").
		Set("name", details.Name).
		Set("description", details.Description).
		Set("priority", details.Priority).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"ticket_identifier": details.Identifier}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	res, err := r.Chk(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteTicket removes the ticket and its conversation. Callers wrap it in
// WithTx to keep the two deletes atomic.
func (r *Repository) DeleteTicket(ctx context.Context, ticketID uuid.UUID) error {
	query, args, err := sq.Delete("messages").
		Where(sq.Eq{"ticket_id": ticketID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	if _, err := r.Chk(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete ticket messages: %w", err)
	}

	query, args, err = sq.Delete("tickets").
		Where(sq.Eq{"id": ticketID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	if _, err := r.Chk(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}

	return nil
}

// ----------------------------- messages -----------------------------

type messageRow struct {
	ID        uuid.UUID `db:"id"`
	TicketID  uuid.UUID `db:"ticket_id"`
	Sender    string    `db:"user_or_agent"`
	Kind      string    `db:"message_type"`
	Content   *string   `db:"content"`
	Metadata  []byte    `db:"metadata"`
	Timestamp time.Time `db:"timestamp"`
	CreatedAt time.Time `db:"created_at"`
}

// toModel always returns the message. Metadata that does not decode for the
// row's kind is dropped and reported as the error; the row itself stays part
// of the conversation.
func (row messageRow) toModel() (model.Message, error) {
	kind := model.MessageKind(row.Kind)
	message := model.Message{
		ID:        row.ID,
		TicketID:  row.TicketID,
		Sender:    row.Sender,
		Kind:      kind,
		Content:   row.Content,
		Timestamp: row.Timestamp,
		CreatedAt: row.CreatedAt,
	}

	meta, err := model.DecodeMetadata(kind, row.Metadata)
	if err != nil {
		return message, fmt.Errorf("message %s: %w", row.ID, err)
	}
	message.Metadata = meta

	return message, nil
}

// prepareMessage fills in the id and the ordering timestamp and truncates the
// timestamp to the microsecond precision of timestamptz.
func prepareMessage(message *model.Message, now time.Time) {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = now.UTC()
	}
	message.Timestamp = message.Timestamp.Truncate(time.Microsecond)
}

var messageColumns = []string{
	"id",
	"ticket_id",
	"user_or_agent",
	"message_type",
	"content",
	"metadata",
	"timestamp",
	"created_at",
}

// CreateMessage persists message, filling in the id and, when unset, the
// ordering timestamp. Timestamps are truncated to the database precision so
// the value kept by the caller compares equal to what later reads return.
func (r *Repository) CreateMessage(ctx context.Context, message *model.Message) error {
	prepareMessage(message, time.Now())

	raw, err := model.EncodeMetadata(message.Kind, message.Metadata)
	if err != nil {
		return err
	}

	// lib/pq sends []byte as bytea, jsonb wants text
	var meta interface{}
	if len(raw) > 0 {
		meta = string(raw)
	}

	query, args, err := sq.Insert("messages").
		Columns("id", "ticket_id", "user_or_agent", "message_type", "content", "metadata", "timestamp").
		Values(message.ID, message.TicketID, message.Sender, string(message.Kind), message.Content, meta, message.Timestamp).
		Suffix("RETURNING created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	if err := r.Chk(ctx).GetContext(ctx, &message.CreatedAt, query, args...); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

func (r *Repository) GetMessageByID(ctx context.Context, messageID uuid.UUID) (*model.Message, error) {
	query, args, err := sq.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"id": messageID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var row messageRow
	err = r.Chk(ctx).GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	message, err := row.toModel()
	if err != nil {
		logger := logger_lib.FromContext(ctx, config.KeyLogger)
		logger.Warn(fmt.Sprintf("dropped metadata: %v", err))
	}
	return &message, nil
}

func (r *Repository) ListMessages(ctx context.Context, ticketID uuid.UUID) (model.MessageList, error) {
	return r.listMessages(ctx, sq.Eq{"ticket_id": ticketID})
}

// ListMessagesAfter returns the messages strictly newer than cursor.
func (r *Repository) ListMessagesAfter(ctx context.Context, ticketID uuid.UUID, cursor time.Time) (model.MessageList, error) {
	return r.listMessages(ctx, afterCursor(ticketID, cursor))
}

// afterCursor is strict: the message at cursor was already delivered.
func afterCursor(ticketID uuid.UUID, cursor time.Time) sq.Sqlizer {
	return sq.And{
		sq.Eq{"ticket_id": ticketID},
		sq.Gt{"timestamp": cursor},
	}
}

func messagesQuery(where sq.Sqlizer) sq.SelectBuilder {
	return sq.Select(messageColumns...).
		From("messages").
		Where(where).
		OrderBy("timestamp ASC", "created_at ASC").
		PlaceholderFormat(sq.Dollar)
}

func (r *Repository) listMessages(ctx context.Context, where sq.Sqlizer) (model.MessageList, error) {
	query, args, err := messagesQuery(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sql query: %v", err)
	}

	var rows []messageRow
	if err := r.Chk(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return decodeRows(ctx, rows), nil
}

// decodeRows keeps every row. A row written by another client with metadata
// this build cannot read still moves the cursor forward.
func decodeRows(ctx context.Context, rows []messageRow) model.MessageList {
	messages := make(model.MessageList, 0, len(rows))
	for _, row := range rows {
		message, err := row.toModel()
		if err != nil {
			logger := logger_lib.FromContext(ctx, config.KeyLogger)
			logger.Warn(fmt.Sprintf("dropped metadata: %v", err))
		}
		messages = append(messages, message)
	}

	return messages
}

func (r *Repository) DeleteMessage(ctx context.Context, messageID uuid.UUID) error {
	query, args, err := sq.Delete("messages").
		Where(sq.Eq{"id": messageID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build sql query: %v", err)
	}

	if _, err := r.Chk(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	return nil
}
