package client

import (
	"context"
	"errors"
	"fmt"
)

// errAccountRequired is resolve refusing to act without a session. It is the
// only auth failure that queues the user's text for after sign-in.
var errAccountRequired = fmt.Errorf("%w: an account is required here", ErrAuthRequired)

// credentials are what a backend call acts as.
type credentials struct {
	token   string
	guestID string // set for guests
}

func (c credentials) isGuest() bool { return c.guestID != "" }

// identities picks account or guest credentials for a call.
type identities struct {
	session *SessionObserver
	guest   *GuestIdentity
	backend Backend
	nav     Navigator

	guestsDisabled bool
}

// resolve returns account credentials when a session exists. Without one it
// falls back to the guest unless guests are disabled or the current route is
// protected.
func (i *identities) resolve(ctx context.Context) (credentials, error) {
	if s := i.session.Current(); s != nil {
		return credentials{token: s.Token}, nil
	}
	if i.guestsDisabled || i.nav.Current().Protected {
		return credentials{}, errAccountRequired
	}
	guestID, token, err := i.guest.Credentials(ctx, i.backend)
	if err != nil {
		return credentials{}, err
	}
	return credentials{token: token, guestID: guestID}, nil
}

// renew replaces a guest token the server refused with a freshly minted one.
// It reports false when err is not such a refusal or no new token could be
// had.
func (i *identities) renew(ctx context.Context, creds credentials, err error) (credentials, bool) {
	if !creds.isGuest() || !errors.Is(err, ErrAuthRequired) {
		return creds, false
	}
	// the guest token expired or the secret rotated
	i.guest.ForgetToken(ctx)
	fresh, rerr := i.resolve(ctx)
	if rerr != nil || !fresh.isGuest() {
		return creds, false
	}
	return fresh, true
}

// guestRefused keeps a refused guest token from reading as a missing account.
func guestRefused(creds credentials, err error) error {
	if creds.isGuest() && errors.Is(err, ErrAuthRequired) {
		return fmt.Errorf("guest session refused: %v", err)
	}
	return err
}
