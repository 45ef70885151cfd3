package client

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"softspace/internal/client/localstate"

	"go.uber.org/zap"
)

// GuestIdentity owns the locally generated guest identifier and the server
// token minted for it.
type GuestIdentity struct {
	mu     sync.Mutex
	state  localstate.Store
	logger *zap.Logger
}

func NewGuestIdentity(state localstate.Store, logger *zap.Logger) *GuestIdentity {
	return &GuestIdentity{state: state, logger: logger.Named("guest")}
}

func newGuestID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "guest_" + hex.EncodeToString(buf), nil
}

// Ensure returns the stored identifier, creating one on first use. Storage
// failures yield ErrNoIdentity.
func (g *GuestIdentity) Ensure(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := g.state.Get(ctx, localstate.KeyGuestID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, localstate.ErrNotFound) {
		g.logger.Warn("guest identity unreadable", zap.Error(err))
		return "", ErrNoIdentity
	}

	id, err = newGuestID()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	if err := g.state.Set(ctx, localstate.KeyGuestID, id); err != nil {
		g.logger.Warn("guest identity not stored", zap.Error(err))
		return "", ErrNoIdentity
	}
	g.logger.Info("guest identity created", zap.String("guest_id", id))
	return id, nil
}

// Get returns the stored identifier without creating one.
func (g *GuestIdentity) Get(ctx context.Context) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := g.state.Get(ctx, localstate.KeyGuestID)
	if err != nil || id == "" {
		return "", false
	}
	return id, true
}

// Clear forgets the identifier and its token.
func (g *GuestIdentity) Clear(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.state.Delete(ctx, localstate.KeyGuestToken); err != nil {
		return err
	}
	return g.state.Delete(ctx, localstate.KeyGuestID)
}

// Credentials returns the guest identifier and a server token for it,
// registering the guest and minting the token on first use.
func (g *GuestIdentity) Credentials(ctx context.Context, backend Backend) (string, string, error) {
	id, err := g.Ensure(ctx)
	if err != nil {
		return "", "", err
	}

	g.mu.Lock()
	token, err := g.state.Get(ctx, localstate.KeyGuestToken)
	g.mu.Unlock()
	if err == nil && token != "" {
		return id, token, nil
	}

	if err := backend.RegisterGuest(ctx, id); err != nil {
		return "", "", fmt.Errorf("register guest: %w", err)
	}
	token, err = backend.GuestToken(ctx, id)
	if err != nil {
		return "", "", fmt.Errorf("guest token: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.state.Set(ctx, localstate.KeyGuestToken, token); err != nil {
		g.logger.Warn("guest token not stored", zap.Error(err))
	}
	return id, token, nil
}

// ForgetToken drops a token the server no longer accepts.
func (g *GuestIdentity) ForgetToken(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.state.Delete(ctx, localstate.KeyGuestToken)
}
