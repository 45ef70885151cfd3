package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"softspace/internal/client/localstate"
	"softspace/internal/models"

	"go.uber.org/zap"
)

// Session is an authenticated account.
type Session struct {
	Token string              `json:"token"`
	User  models.UserResponse `json:"user"`
}

// SessionObserver holds the current session and tells subscribers when it
// changes.
type SessionObserver struct {
	mu      sync.Mutex
	current *Session
	subs    map[int]func(*Session)
	nextSub int
	state   localstate.Store
	logger  *zap.Logger
}

func NewSessionObserver(state localstate.Store, logger *zap.Logger) *SessionObserver {
	return &SessionObserver{state: state, subs: make(map[int]func(*Session)), logger: logger.Named("session")}
}

// Restore loads a persisted session, if any.
func (o *SessionObserver) Restore(ctx context.Context) {
	raw, err := o.state.Get(ctx, localstate.KeySession)
	if err != nil {
		if !errors.Is(err, localstate.ErrNotFound) {
			o.logger.Warn("session unreadable", zap.Error(err))
		}
		return
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.Token == "" {
		o.logger.Warn("discarding corrupt session", zap.Error(err))
		_ = o.state.Delete(ctx, localstate.KeySession)
		return
	}
	o.publish(&s)
}

// Current returns a copy of the session or nil.
func (o *SessionObserver) Current() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return nil
	}
	cp := *o.current
	return &cp
}

// LoggedIn reports whether an account session is active.
func (o *SessionObserver) LoggedIn() bool {
	return o.Current() != nil
}

// Set stores and announces a new session.
func (o *SessionObserver) Set(ctx context.Context, s Session) {
	raw, err := json.Marshal(s)
	if err == nil {
		err = o.state.Set(ctx, localstate.KeySession, string(raw))
	}
	if err != nil {
		o.logger.Warn("session not persisted", zap.Error(err))
	}
	o.publish(&s)
}

// Clear ends the session.
func (o *SessionObserver) Clear(ctx context.Context) {
	if err := o.state.Delete(ctx, localstate.KeySession); err != nil {
		o.logger.Warn("session not removed", zap.Error(err))
	}
	o.publish(nil)
}

// Subscribe registers fn for session changes and returns its cancel func.
func (o *SessionObserver) Subscribe(fn func(*Session)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

func (o *SessionObserver) publish(s *Session) {
	o.mu.Lock()
	o.current = s
	subs := make([]func(*Session), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	for _, fn := range subs {
		var cp *Session
		if s != nil {
			c := *s
			cp = &c
		}
		fn(cp)
	}
}
