// Package client is the conversation and session orchestration of the chat
// surface. Every component is constructed once by NewApp and shares one
// Backend; the surface talks to it only through Dispatch.
package client

import (
	"context"
	"errors"
	"fmt"

	"softspace/internal/client/localstate"
	"softspace/internal/prompts"

	"go.uber.org/zap"
)

// Deps are the capabilities injected into the App.
type Deps struct {
	Backend   Backend
	State     localstate.Store
	Navigator Navigator
	Notifier  Notifier
	Prompts   *prompts.Set
	Logger    *zap.Logger

	// GuestsDisabled requires an account for every conversation.
	GuestsDisabled bool
}

// App wires the client components together.
type App struct {
	Session       *SessionObserver
	Guest         *GuestIdentity
	Usage         *UsageTracker
	Conversations *ConversationManager
	Exchange      *MessageExchange

	backend Backend
	nav     Navigator
	notify  Notifier
	pending *pendingQueue
	logger  *zap.Logger
}

func NewApp(d Deps) *App {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if d.Prompts == nil {
		d.Prompts = prompts.Default()
	}

	session := NewSessionObserver(d.State, logger)
	guest := NewGuestIdentity(d.State, logger)
	ids := &identities{
		session:        session,
		guest:          guest,
		backend:        d.Backend,
		nav:            d.Navigator,
		guestsDisabled: d.GuestsDisabled,
	}
	usage := NewUsageTracker(d.Backend, session, d.Navigator, logger)
	conv := newConversationManager(ids, d.Backend, d.State, d.Navigator, logger)
	exchange := newMessageExchange(conv, usage, ids, d.Backend, d.Prompts, logger)
	conv.opener = exchange.Opening

	return &App{
		Session:       session,
		Guest:         guest,
		Usage:         usage,
		Conversations: conv,
		Exchange:      exchange,
		backend:       d.Backend,
		nav:           d.Navigator,
		notify:        d.Notifier,
		pending:       &pendingQueue{store: d.State},
		logger:        logger.Named("app"),
	}
}

// Start restores the session, refreshes usage and opens urlID (or the saved
// conversation).
func (a *App) Start(ctx context.Context, urlID string) Result {
	a.Session.Restore(ctx)
	if err := a.Usage.Refresh(ctx); err != nil {
		a.logger.Warn("initial usage refresh failed", zap.Error(err))
	}
	return a.finish(OpenConversation{ID: urlID}, a.Conversations.Open(ctx, urlID))
}

// Pending returns how many messages wait for a session.
func (a *App) Pending(ctx context.Context) int {
	return a.pending.Len(ctx)
}

// Dispatch runs cmd and reports its outcome. Failures are also surfaced
// through the Notifier according to their kind.
func (a *App) Dispatch(ctx context.Context, cmd Command) Result {
	a.logger.Debug("dispatch", zap.String("command", cmd.commandName()))

	var res Result
	switch c := cmd.(type) {
	case SendMessage:
		reply, err := a.Exchange.Send(ctx, c.Text)
		// Only a send that never started is queued; anything later already
		// shows the user's turn.
		if errors.Is(err, errAccountRequired) {
			if qerr := a.pending.Push(ctx, c.Text); qerr != nil {
				a.logger.Warn("message not queued", zap.Error(qerr))
			}
			a.nav.Navigate(RouteSignup, signupReason)
		}
		res = Result{Err: err, Reply: reply}
	case StartNewChat:
		_, err := a.Conversations.StartNewChat(ctx, c.Initial)
		res.Err = err
	case OpenConversation:
		res.Err = a.Conversations.Open(ctx, c.ID)
	case SwitchMode:
		res.Err = a.Conversations.UpdateConversationMode(ctx, c.Mode)
	case RefreshUsage:
		res.Err = a.Usage.Refresh(ctx)
	case Login:
		res.Err = a.login(ctx, c.Email, c.Password)
	case Signup:
		res.Err = a.signup(ctx, c.Email, c.Password)
	case Logout:
		a.logout(ctx)
	case Checkout:
		res.URL, res.Err = a.checkout(ctx)
	case ManageBilling:
		res.URL, res.Err = a.portal(ctx)
	default:
		res.Err = fmt.Errorf("unknown command %T", cmd)
	}
	return a.finish(cmd, res.Err, res)
}

func (a *App) finish(cmd Command, err error, partial ...Result) Result {
	res := Result{}
	if len(partial) > 0 {
		res = partial[0]
	}
	res.Err = err
	res.Kind = Classify(err)
	if err != nil {
		a.logger.Info("command failed",
			zap.String("command", cmd.commandName()),
			zap.Stringer("kind", res.Kind),
			zap.Error(err))
		a.surface(res.Kind, err)
	}
	return res
}

func (a *App) surface(kind ErrorKind, err error) {
	if a.notify == nil {
		return
	}
	switch kind {
	case KindAuthRequired:
		a.notify.PromptAuth(signupReason)
	case KindQuotaExceeded:
		a.notify.ShowPaywall("You've used all your free messages. Subscribe to keep talking.")
	case KindNotFound:
		// the conversation manager already redirected
	case KindBusy:
		a.notify.Toast(err.Error())
	default:
		a.notify.Toast("Something went wrong: " + err.Error() + ". Please try again.")
	}
}

func (a *App) signup(ctx context.Context, email, password string) error {
	if _, err := a.backend.Signup(ctx, email, password); err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	return a.login(ctx, email, password)
}

// login starts a session, moves guest data onto the account and sends any
// messages queued before signing in.
func (a *App) login(ctx context.Context, email, password string) error {
	resp, err := a.backend.Login(ctx, email, password)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == 401 {
			// wrong credentials are not a missing session
			return fmt.Errorf("login: %s", apiErr.Message)
		}
		return fmt.Errorf("login: %w", err)
	}
	a.Session.Set(ctx, Session{Token: resp.AccessToken, User: resp.User})
	a.logger.Info("logged in", zap.Stringer("user_id", resp.User.ID))

	a.migrateGuest(ctx, resp.AccessToken)
	if err := a.Usage.Refresh(ctx); err != nil {
		a.logger.Warn("usage refresh after login failed", zap.Error(err))
	}
	if route := a.nav.Current().Path; route == RouteSignup || route == RouteLogin {
		a.nav.Navigate(RouteChat, "")
	}
	a.replayPending(ctx)
	return nil
}

func (a *App) migrateGuest(ctx context.Context, token string) {
	guestID, ok := a.Guest.Get(ctx)
	if !ok {
		return
	}
	if err := a.backend.MigrateGuest(ctx, token, guestID); err != nil {
		// keep the guest id so the next login can retry
		a.logger.Warn("guest migration failed", zap.String("guest_id", guestID), zap.Error(err))
		a.Conversations.Reset(ctx)
		if a.notify != nil {
			a.notify.Toast("We couldn't move your guest conversations yet. They will be moved next time you sign in.")
		}
		return
	}
	if err := a.Guest.Clear(ctx); err != nil {
		a.logger.Warn("guest identity not cleared", zap.Error(err))
	}
	a.logger.Info("guest data migrated", zap.String("guest_id", guestID))
}

func (a *App) replayPending(ctx context.Context) {
	texts, err := a.pending.Drain(ctx)
	if err != nil {
		a.logger.Warn("pending messages unreadable", zap.Error(err))
	}
	for i, text := range texts {
		if _, err := a.Exchange.Send(ctx, text); err != nil {
			for _, rest := range texts[i+1:] {
				_ = a.pending.Push(ctx, rest)
			}
			a.finish(SendMessage{Text: text}, err)
			return
		}
	}
}

func (a *App) logout(ctx context.Context) {
	a.Session.Clear(ctx)
	a.Usage.Reset()
	a.Conversations.Reset(ctx)
	a.nav.Navigate(RouteChat, "")
}

func (a *App) checkout(ctx context.Context) (string, error) {
	s := a.Session.Current()
	if s == nil {
		return "", ErrAuthRequired
	}
	resp, err := a.backend.Checkout(ctx, s.Token)
	if err != nil {
		return "", fmt.Errorf("checkout: %w", err)
	}
	if a.notify != nil {
		a.notify.OpenURL(resp.URL)
	}
	return resp.URL, nil
}

func (a *App) portal(ctx context.Context) (string, error) {
	s := a.Session.Current()
	if s == nil {
		return "", ErrAuthRequired
	}
	resp, err := a.backend.Portal(ctx, s.Token)
	if err != nil {
		return "", fmt.Errorf("billing portal: %w", err)
	}
	if a.notify != nil {
		a.notify.OpenURL(resp.URL)
	}
	return resp.URL, nil
}
