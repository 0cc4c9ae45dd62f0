package auth

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// TokenHeader carries the session token on every authenticated request.
const TokenHeader = "X-VALETUDO-TOKEN"

var ErrNotLoggedIn = errors.New("not logged in")

type LoginChecker struct {
	ttl      time.Duration
	sessions SessionStore
	accounts *Accounts
}

func NewLoginChecker(ttl time.Duration, sessions SessionStore, accounts *Accounts) *LoginChecker {
	return &LoginChecker{
		ttl:      ttl,
		sessions: sessions,
		accounts: accounts,
	}
}

func (c *LoginChecker) IsLogged(ctx context.Context, token string) (bool, error) {
	session, err := c.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	return time.Since(session.CreatedAt) <= c.ttl, nil
}

// AccountForToken resolves the account behind a session token.
// Returns ErrNotLoggedIn for unknown or expired sessions.
func (c *LoginChecker) AccountForToken(ctx context.Context, token string) (Account, error) {
	session, err := c.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Account{}, ErrNotLoggedIn
		}
		return Account{}, err
	}
	if time.Since(session.CreatedAt) > c.ttl {
		return Account{}, ErrNotLoggedIn
	}
	account, ok := c.accounts.ByID(session.AccountID)
	if !ok {
		return Account{}, ErrNotLoggedIn
	}
	return account, nil
}

// AccountFromRequest resolves the account behind the request's session
// token header.
func (c *LoginChecker) AccountFromRequest(r *http.Request) (Account, error) {
	return c.AccountForToken(r.Context(), r.Header.Get(TokenHeader))
}
