package identity

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidCredential covers unknown, malformed and expired tokens alike;
// callers cannot distinguish the cases.
var ErrInvalidCredential = errors.New("identity: invalid credential")

// Principal is a verified caller identity. The transport gateways resolve
// one per connection/request and never trust a client-supplied user id.
type Principal struct {
	ID   string
	Name string
}

// Session binds an opaque bearer token to a user. Issuance happens in the
// upstream auth service; this service only resolves tokens.
type Session struct {
	Token     string
	UserID    string
	UserName  string
	ExpiresAt time.Time
}

// Expired reports whether the session is past its deadline.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Verifier turns a bearer credential into a verified principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// SessionStore is the lookup backing a store-based Verifier.
type SessionStore interface {
	ByToken(ctx context.Context, token string) (*Session, error)
}

// StoreVerifier resolves bearer tokens against a session store.
type StoreVerifier struct {
	Sessions SessionStore
}

// Verify implements Verifier. Every failure collapses to
// ErrInvalidCredential so existence of a session never leaks.
func (v StoreVerifier) Verify(ctx context.Context, token string) (Principal, error) {
	if v.Sessions == nil || token == "" {
		return Principal{}, ErrInvalidCredential
	}
	session, err := v.Sessions.ByToken(ctx, token)
	if err != nil || session == nil {
		return Principal{}, ErrInvalidCredential
	}
	if session.Expired(time.Now()) {
		return Principal{}, ErrInvalidCredential
	}
	return Principal{ID: session.UserID, Name: session.UserName}, nil
}
