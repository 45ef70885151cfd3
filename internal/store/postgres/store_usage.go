package postgres

import (
	"context"
	"errors"
	"fmt"

	db_models "softspace/internal/models"
	"softspace/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

func newID() uuid.UUID { return uuid.New() }

const usageColumns = `id, user_id, guest_id, messages_used, messages_limit, updated_at`

func scanUsage(row pgx.Row) (*db_models.Usage, error) {
	var u db_models.Usage
	if err := row.Scan(&u.ID, &u.UserID, &u.GuestID, &u.MessagesUsed, &u.MessagesLimit, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ownerFilter returns the WHERE column and argument selecting owner's row.
func ownerFilter(owner db_models.Owner) (string, any) {
	if owner.IsAccount() {
		return "user_id", owner.UserID
	}
	return "guest_id", owner.GuestID
}

func (s *PostgresStore) GetUsage(ctx context.Context, owner db_models.Owner) (*db_models.Usage, error) {
	column, arg := ownerFilter(owner)
	query := fmt.Sprintf(`SELECT %s FROM usage WHERE %s = $1`, usageColumns, column)

	u, err := scanUsage(s.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning usage: %w", err)
	}
	return u, nil
}

// EnsureUsage creates the owner's usage row when absent and returns it.
func (s *PostgresStore) EnsureUsage(ctx context.Context, owner db_models.Owner, defaultLimit int) (*db_models.Usage, error) {
	column, arg := ownerFilter(owner)
	insert := fmt.Sprintf(`
		INSERT INTO usage (id, %s, messages_used, messages_limit)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (%s) DO NOTHING`, column, column)

	if _, err := s.db.Exec(ctx, insert, newID(), arg, defaultLimit); err != nil {
		s.logger.Error("ensure usage", zap.Stringer("owner", owner), zap.Error(err))
		return nil, fmt.Errorf("error ensuring usage row: %w", err)
	}
	return s.GetUsage(ctx, owner)
}

// incrementUsage bumps messages_used by one. With a positive limit the row is
// only updated while it is still below it, which keeps concurrent exchanges
// from both spending the last free message.
func incrementUsage(ctx context.Context, tx pgx.Tx, owner db_models.Owner, defaultLimit, limit int) error {
	column, arg := ownerFilter(owner)
	upsert := fmt.Sprintf(`
		INSERT INTO usage (id, %s, messages_used, messages_limit)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (%s) DO UPDATE
		SET messages_used = usage.messages_used + 1, updated_at = NOW()
		WHERE $4::int <= 0 OR usage.messages_used < $4::int`, column, column)

	tag, err := tx.Exec(ctx, upsert, newID(), arg, defaultLimit, limit)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrLimitReached
	}
	return nil
}

const reassignConversations = `
UPDATE conversations
SET user_id = $1, guest_id = NULL, updated_at = NOW()
WHERE guest_id = $2;
`

const mergeGuestUsage = `
INSERT INTO usage (id, user_id, messages_used, messages_limit)
SELECT $1, $2, g.messages_used, u.messages_limit
FROM usage g, users u
WHERE g.guest_id = $3 AND u.id = $2
ON CONFLICT (user_id) DO UPDATE
SET messages_used = usage.messages_used + EXCLUDED.messages_used, updated_at = NOW();
`

const deleteGuestUsage = `DELETE FROM usage WHERE guest_id = $1;`

// MigrateGuestData reassigns the guest's conversations and folds its usage
// counter into the account's row.
func (s *PostgresStore) MigrateGuestData(ctx context.Context, guestID string, userID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, reassignConversations, userID, guestID)
	if err != nil {
		return fmt.Errorf("reassign conversations: %w", err)
	}
	if _, err := tx.Exec(ctx, mergeGuestUsage, newID(), userID, guestID); err != nil {
		return fmt.Errorf("merge guest usage: %w", err)
	}
	if _, err := tx.Exec(ctx, deleteGuestUsage, guestID); err != nil {
		return fmt.Errorf("delete guest usage: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration tx: %w", err)
	}

	s.logger.Info("guest data migrated",
		zap.String("guest_id", guestID),
		zap.Stringer("user_id", userID),
		zap.Int64("conversations", tag.RowsAffected()))
	return nil
}
