package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"softspace/internal/store"
	"softspace/internal/store/storetest"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Runs against a real database when SOFTSPACE_TEST_DATABASE_URL is set.
// Every case uses fresh ids, so the database does not need to be empty.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("SOFTSPACE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SOFTSPACE_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	s := NewPostgresStore(pool, zap.NewNop())
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	storetest.Run(t, func(*testing.T) store.Store { return s })
}
