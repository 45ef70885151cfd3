package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	db_models "softspace/internal/models"
	"softspace/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger.Named("postgres")}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.logger.Info("schema applied")
	return nil
}

// --- Account Methods ---

const userColumns = `id, email, hashed_password, is_subscribed, messages_limit, stripe_customer_id, created_at, updated_at`

func scanUser(row pgx.Row) (*db_models.User, error) {
	user := &db_models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.HashedPassword,
		&user.IsSubscribed,
		&user.MessagesLimit,
		&user.StripeCustomerID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetUserByEmail retrieves a user by their email address.
// Returns store.ErrNotFound if the user does not exist.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*db_models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(s.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("query user by email", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("database error fetching user by email: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by primary key.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*db_models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("database error fetching user by id: %w", err)
	}
	return user, nil
}

// CreateUser inserts a new user record into the database.
func (s *PostgresStore) CreateUser(ctx context.Context, user *db_models.User) error {
	query := `
		INSERT INTO users (id, email, hashed_password, messages_limit)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.HashedPassword,
		user.MessagesLimit,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			s.logger.Error("insert user",
				zap.String("email", user.Email),
				zap.String("code", pgErr.Code),
				zap.String("detail", pgErr.Detail))
			if pgErr.Code == uniqueViolation {
				return store.ErrConflict
			}
		} else {
			s.logger.Error("insert user", zap.String("email", user.Email), zap.Error(err))
		}
		return fmt.Errorf("database error creating user: %w", err)
	}

	s.logger.Info("user created", zap.Stringer("user_id", user.ID))
	return nil
}

const setStripeCustomerID = `
UPDATE users SET stripe_customer_id = $1, updated_at = NOW()
WHERE id = $2;
`

func (s *PostgresStore) SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	tag, err := s.db.Exec(ctx, setStripeCustomerID, customerID, userID)
	if err != nil {
		return fmt.Errorf("error saving stripe customer id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const setSubscriptionByCustomer = `
UPDATE users SET is_subscribed = $1, updated_at = NOW()
WHERE stripe_customer_id = $2;
`

func (s *PostgresStore) SetSubscriptionByCustomer(ctx context.Context, customerID string, subscribed bool) error {
	tag, err := s.db.Exec(ctx, setSubscriptionByCustomer, subscribed, customerID)
	if err != nil {
		return fmt.Errorf("error updating subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ownerArgs maps an owner onto the (user_id, guest_id) column pair, one of
// which is always NULL.
func ownerArgs(owner db_models.Owner) (any, any) {
	if owner.IsAccount() {
		return owner.UserID, nil
	}
	return nil, owner.GuestID
}
