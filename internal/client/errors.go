package client

import (
	"errors"
	"net/http"
)

// User-facing error taxonomy. Every backend failure is classified into one
// of these before it reaches the surface.
var (
	ErrAuthRequired  = errors.New("sign in to continue")
	ErrQuotaExceeded = errors.New("you have used all free messages")
	ErrNotFound      = errors.New("conversation not found")
	ErrSendInFlight  = errors.New("a message is already on its way")
	ErrNoIdentity    = errors.New("no guest identity available")
)

// ErrorKind tells the surface how to present a failure.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindAuthRequired
	KindQuotaExceeded
	KindNotFound
	KindBusy
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAuthRequired:
		return "auth_required"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindNotFound:
		return "not_found"
	case KindBusy:
		return "busy"
	}
	return "transient"
}

// Classify maps err onto the taxonomy. Anything unrecognized is transient.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAuthRequired):
		return KindAuthRequired
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrSendInFlight):
		return KindBusy
	}
	return KindTransient
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}

// Is lets callers match API errors against the taxonomy sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuthRequired:
		return e.Status == http.StatusUnauthorized
	case ErrQuotaExceeded:
		return e.Status == http.StatusPaymentRequired
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}
