package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	DefaultTTL       = 24 * 7 * time.Hour
	sessionKeyPrefix = "valetudo-session||"
	tokensSetKey     = "valetudo-sessions"
)

var ErrSessionNotFound = errors.New("session not found")

type Session struct {
	Token     string
	AccountID int
	CreatedAt time.Time
}

type SessionStore interface {
	Add(ctx context.Context, session Session) error
	Get(ctx context.Context, token string) (Session, error)
	Remove(ctx context.Context, token string) error
	Tokens(ctx context.Context) ([]string, error)
}

var _ SessionStore = (*RedisSessionStore)(nil)

type RedisSessionStore struct {
	redisClient *redis.Client
}

func NewRedisSessionStore(redisClient *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{
		redisClient: redisClient,
	}
}

func sessionValue(s Session) string {
	return fmt.Sprintf("%d||%d", s.AccountID, s.CreatedAt.Unix())
}

func parseSessionValue(token, value string) (Session, error) {
	parts := strings.SplitN(value, "||", 2)
	if len(parts) != 2 {
		return Session{}, fmt.Errorf("malformed session value for token %s", token)
	}
	accountID, err := strconv.Atoi(parts[0])
	if err != nil {
		return Session{}, fmt.Errorf("malformed session account id: %w", err)
	}
	createdAtUnix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("malformed session timestamp: %w", err)
	}
	return Session{
		Token:     token,
		AccountID: accountID,
		CreatedAt: time.Unix(createdAtUnix, 0),
	}, nil
}

func (s *RedisSessionStore) Add(ctx context.Context, session Session) error {
	sessionKey := sessionKeyPrefix + session.Token
	if err := s.redisClient.Set(ctx, sessionKey, sessionValue(session), 0).Err(); err != nil {
		return err
	}

	// add token to list of sessions
	return s.redisClient.SAdd(ctx, tokensSetKey, session.Token).Err()
}

func (s *RedisSessionStore) Get(ctx context.Context, token string) (Session, error) {
	cmd := s.redisClient.Get(ctx, sessionKeyPrefix+token)
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return parseSessionValue(token, cmd.Val())
}

func (s *RedisSessionStore) Remove(ctx context.Context, token string) error {
	if err := s.redisClient.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return err
	}
	// remove token from the list of sessions
	return s.redisClient.SRem(ctx, tokensSetKey, token).Err()
}

func (s *RedisSessionStore) Tokens(ctx context.Context) ([]string, error) {
	cmd := s.redisClient.SMembers(ctx, tokensSetKey)
	if err := cmd.Err(); err != nil {
		return nil, err
	}
	return cmd.Val(), nil
}
