package client

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Unlimited is what Remaining reports for subscribers.
const Unlimited = -1

// UsageSnapshot is the last known quota state.
type UsageSnapshot struct {
	IsSubscribed  bool
	MessagesLimit int
	MessagesUsed  int
	Known         bool // false until a refresh succeeded
}

// Remaining returns Unlimited for subscribers, otherwise limit minus used
// (never negative).
func (s UsageSnapshot) Remaining() int {
	if s.IsSubscribed {
		return Unlimited
	}
	if r := s.MessagesLimit - s.MessagesUsed; r > 0 {
		return r
	}
	return 0
}

// Blocked reports whether the free quota is exhausted.
func (s UsageSnapshot) Blocked() bool {
	return s.Known && !s.IsSubscribed && s.MessagesUsed >= s.MessagesLimit
}

const signupReason = "Create a free account to keep your conversations and continue chatting."

// UsageTracker mirrors the account's subscription and message counter.
type UsageTracker struct {
	mu      sync.Mutex
	snap    UsageSnapshot
	backend Backend
	session *SessionObserver
	nav     Navigator
	logger  *zap.Logger
}

func NewUsageTracker(backend Backend, session *SessionObserver, nav Navigator, logger *zap.Logger) *UsageTracker {
	return &UsageTracker{backend: backend, session: session, nav: nav, logger: logger.Named("usage")}
}

// Refresh reloads subscription and usage for the current session. Without a
// session it redirects to signup on protected routes and does nothing
// elsewhere. On failure the previous values stay in place and the error is
// returned.
func (u *UsageTracker) Refresh(ctx context.Context) error {
	s := u.session.Current()
	if s == nil {
		if u.nav.Current().Protected {
			u.nav.Navigate(RouteSignup, signupReason)
			return ErrAuthRequired
		}
		return nil
	}

	sub, err := u.backend.Subscription(ctx, s.Token)
	if err != nil {
		u.logger.Warn("subscription refresh failed", zap.Error(err))
		return fmt.Errorf("refresh subscription: %w", err)
	}
	usage, err := u.backend.Usage(ctx, s.Token)
	if err != nil {
		u.logger.Warn("usage refresh failed", zap.Error(err))
		return fmt.Errorf("refresh usage: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.snap = UsageSnapshot{
		IsSubscribed:  sub.IsSubscribed,
		MessagesLimit: sub.MessagesLimit,
		MessagesUsed:  usage.MessagesUsed,
		Known:         true,
	}
	return nil
}

// Snapshot returns the last known state.
func (u *UsageTracker) Snapshot() UsageSnapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.snap
}

// Remaining is Snapshot().Remaining().
func (u *UsageTracker) Remaining() int { return u.Snapshot().Remaining() }

// Blocked is Snapshot().Blocked().
func (u *UsageTracker) Blocked() bool { return u.Snapshot().Blocked() }

// markExhausted records a quota refusal from the server so the next send is
// stopped locally.
func (u *UsageTracker) markExhausted() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.snap.IsSubscribed = false
	if u.snap.MessagesLimit == 0 {
		u.snap.MessagesLimit = u.snap.MessagesUsed
	}
	u.snap.MessagesUsed = u.snap.MessagesLimit
	u.snap.Known = true
}

// Reset forgets everything, e.g. on logout.
func (u *UsageTracker) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.snap = UsageSnapshot{}
}
