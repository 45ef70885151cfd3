package postgres

import (
	"context"
	"errors"
	"fmt"

	db_models "softspace/internal/models"
	"softspace/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const conversationColumns = `id, user_id, guest_id, mode, title, created_at, updated_at`

func scanConversation(row pgx.Row) (*db_models.Conversation, error) {
	var c db_models.Conversation
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.GuestID,
		&c.Mode,
		&c.Title,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

const createConversation = `-- name: CreateConversation :one
INSERT INTO conversations (id, user_id, guest_id, mode, title)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + conversationColumns + `;
`

func (s *PostgresStore) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (*db_models.Conversation, error) {
	userID, guestID := ownerArgs(arg.Owner)
	c, err := scanConversation(s.db.QueryRow(ctx, createConversation,
		arg.ID, userID, guestID, arg.Mode, arg.Title))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, store.ErrConflict
		}
		s.logger.Error("insert conversation", zap.String("conversation_id", arg.ID), zap.Error(err))
		return nil, fmt.Errorf("error creating conversation: %w", err)
	}
	return c, nil
}

const getConversationByID = `-- name: GetConversationByID :one
SELECT ` + conversationColumns + `
FROM conversations
WHERE id = $1;
`

func (s *PostgresStore) GetConversationByID(ctx context.Context, id string) (*db_models.Conversation, error) {
	c, err := scanConversation(s.db.QueryRow(ctx, getConversationByID, id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListConversationsByOwner(ctx context.Context, owner db_models.Owner, limit int) ([]db_models.Conversation, error) {
	column, arg := "guest_id", any(owner.GuestID)
	if owner.IsAccount() {
		column, arg = "user_id", owner.UserID
	}
	query := fmt.Sprintf(`SELECT %s FROM conversations WHERE %s = $1 ORDER BY updated_at DESC LIMIT $2`,
		conversationColumns, column)

	rows, err := s.db.Query(ctx, query, arg, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying conversations: %w", err)
	}
	defer rows.Close()

	var items []db_models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning conversation row: %w", err)
		}
		items = append(items, *c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation rows: %w", err)
	}
	return items, nil
}

const updateConversationMode = `-- name: UpdateConversationMode :one
UPDATE conversations
SET mode = $1, updated_at = NOW()
WHERE id = $2
RETURNING ` + conversationColumns + `;
`

func (s *PostgresStore) UpdateConversationMode(ctx context.Context, id string, mode db_models.Mode) (*db_models.Conversation, error) {
	c, err := scanConversation(s.db.QueryRow(ctx, updateConversationMode, mode, id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("error updating conversation mode: %w", err)
	}
	return c, nil
}

// --- Message Methods ---

const listMessages = `-- name: ListMessages :many
SELECT id, conversation_id, role, content, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY created_at ASC, seq ASC;
`

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]db_models.Message, error) {
	rows, err := s.db.Query(ctx, listMessages, conversationID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var items []db_models.Message
	for rows.Next() {
		var m db_models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message row: %w", err)
		}
		items = append(items, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return items, nil
}

const insertMessage = `
INSERT INTO messages (id, conversation_id, role, content, created_at)
VALUES ($1, $2, $3, $4, $5);
`

const touchConversation = `
UPDATE conversations SET updated_at = NOW() WHERE id = $1;
`

// RecordExchange writes the messages of one completion, bumps the usage
// counter and touches the conversation, all in one transaction.
func (s *PostgresStore) RecordExchange(ctx context.Context, arg store.RecordExchangeParams) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin exchange tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	// Count first so a refused exchange writes nothing
	if arg.CountUsage {
		if err := incrementUsage(ctx, tx, arg.Owner, arg.DefaultLimit, arg.Limit); err != nil {
			return err
		}
	}

	for _, m := range arg.Messages {
		if _, err := tx.Exec(ctx, insertMessage, newID(), arg.ConversationID, m.Role, m.Content, m.CreatedAt); err != nil {
			return fmt.Errorf("insert %s message: %w", m.Role, err)
		}
	}

	if _, err := tx.Exec(ctx, touchConversation, arg.ConversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit exchange tx: %w", err)
	}
	return nil
}
