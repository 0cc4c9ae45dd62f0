package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var testAccounts = NewAccounts(Account{
	ID:           1,
	Login:        "testuser",
	PasswordHash: "$2b$14$Zbb971QUf1sOBYSVa/QmteFiCJRvxVpBTApVZyeSvYhs2MvnPlqVa", // testpass
	Name:         "Test User",
})

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	sessions := NewMemorySessionStore()
	authService := NewService(testAccounts, time.Hour, sessions)
	require.NotNil(t, authService)

	testToken := "test_token"
	authService.RandStringFunc = func(s int) (string, error) {
		return testToken, nil
	}

	now := time.Now()
	token, account, err := authService.Login(ctx, Credentials{
		Login:    "testuser",
		Password: "testpass",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, testToken, token)
	assert.Equal(t, "Test User", account.Name)

	session, err := sessions.Get(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, 1, session.AccountID)

	// wrong password
	token, _, err = authService.Login(ctx, Credentials{
		Login:    "testuser",
		Password: "invalid_pass",
	}, now)
	assert.ErrorIs(t, err, ErrWrongPassword)
	assert.Empty(t, token)

	// unknown account
	_, _, err = authService.Login(ctx, Credentials{
		Login:    "whodis",
		Password: "testpass",
	}, now)
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()
	sessions := NewMemorySessionStore()
	authService := NewService(testAccounts, time.Hour, sessions)

	require.NoError(t, sessions.Add(ctx, Session{
		Token:     "t1",
		AccountID: 1,
		CreatedAt: time.Now(),
	}))

	require.NoError(t, authService.Logout(ctx, "t1"))
	_, err := sessions.Get(ctx, "t1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// logging out an unknown token fails
	assert.ErrorIs(t, authService.Logout(ctx, "t1"), ErrSessionNotFound)
}

func TestService_ScanAndClean(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	then := now.Add(-2 * time.Hour)

	sessions := NewMemorySessionStore()
	authService := NewService(testAccounts, time.Hour, sessions)

	require.NoError(t, sessions.Add(ctx, Session{Token: "fresh", AccountID: 1, CreatedAt: now}))
	require.NoError(t, sessions.Add(ctx, Session{Token: "stale", AccountID: 1, CreatedAt: then}))

	authService.ScanAndClean(ctx)

	_, err := sessions.Get(ctx, "fresh")
	assert.NoError(t, err)
	_, err = sessions.Get(ctx, "stale")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStore(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	defer db.Close()

	store := NewRedisSessionStore(db)
	now := time.Now()

	session := Session{Token: "t1", AccountID: 7, CreatedAt: now}
	sessionKey := sessionKeyPrefix + "t1"

	mock.ExpectSet(sessionKey, fmt.Sprintf("7||%d", now.Unix()), 0).SetVal("OK")
	mock.ExpectSAdd(tokensSetKey, "t1").SetVal(1)
	require.NoError(t, store.Add(ctx, session))

	mock.ExpectGet(sessionKey).SetVal(fmt.Sprintf("7||%d", now.Unix()))
	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 7, got.AccountID)
	assert.Equal(t, now.Unix(), got.CreatedAt.Unix())

	mock.ExpectSMembers(tokensSetKey).SetVal([]string{"t1"})
	tokens, err := store.Tokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, tokens)

	mock.ExpectDel(sessionKey).SetVal(1)
	mock.ExpectSRem(tokensSetKey, "t1").SetVal(1)
	require.NoError(t, store.Remove(ctx, "t1"))

	require.NoError(t, mock.ExpectationsWereMet())
}
