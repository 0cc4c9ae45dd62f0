package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginChecker_IsLogged(t *testing.T) {
	ctx := context.Background()
	sessions := NewMemorySessionStore()
	loginChecker := NewLoginChecker(time.Hour, sessions, testAccounts)
	require.NotNil(t, loginChecker)

	isLogged, err := loginChecker.IsLogged(ctx, "invalid token")
	require.NoError(t, err)
	assert.False(t, isLogged)

	require.NoError(t, sessions.Add(ctx, Session{
		Token:     "fresh-token",
		AccountID: 1,
		CreatedAt: time.Now(),
	}))
	require.NoError(t, sessions.Add(ctx, Session{
		Token:     "stale-token",
		AccountID: 1,
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}))

	isLogged, err = loginChecker.IsLogged(ctx, "fresh-token")
	require.NoError(t, err)
	assert.True(t, isLogged)

	isLogged, err = loginChecker.IsLogged(ctx, "stale-token")
	require.NoError(t, err)
	assert.False(t, isLogged)
}

func TestLoginChecker_AccountForToken(t *testing.T) {
	ctx := context.Background()
	sessions := NewMemorySessionStore()
	loginChecker := NewLoginChecker(time.Hour, sessions, testAccounts)

	_, err := loginChecker.AccountForToken(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	require.NoError(t, sessions.Add(ctx, Session{
		Token:     "t1",
		AccountID: 1,
		CreatedAt: time.Now(),
	}))
	account, err := loginChecker.AccountForToken(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Test User", account.Name)

	// session pointing to a removed account
	require.NoError(t, sessions.Add(ctx, Session{
		Token:     "t2",
		AccountID: 99,
		CreatedAt: time.Now(),
	}))
	_, err = loginChecker.AccountForToken(ctx, "t2")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}
