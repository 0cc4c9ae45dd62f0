package auth

import (
	"context"
	"errors"
	"time"

	"github.com/valetudoapp/valetudo/pkg"

	log "github.com/sirupsen/logrus"
)

var (
	ErrUnknownAccount = errors.New("unknown account")
	ErrWrongPassword  = errors.New("wrong password")
)

type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type Service struct {
	accounts *Accounts
	sessions SessionStore
	ttl      time.Duration
	// ability to inject random string generator func for tokens (for unit and dev testing)
	RandStringFunc func(s int) (string, error)
}

func NewService(
	accounts *Accounts,
	ttl time.Duration,
	sessions SessionStore,
) *Service {
	return &Service{
		accounts:       accounts,
		sessions:       sessions,
		ttl:            ttl,
		RandStringFunc: pkg.GenerateRandomString,
	}
}

func (as *Service) Login(ctx context.Context, credentials Credentials, createdAt time.Time) (string, Account, error) {
	account, ok := as.accounts.ByLogin(credentials.Login)
	if !ok {
		return "", Account{}, ErrUnknownAccount
	}
	if !pkg.CheckPasswordHash(credentials.Password, account.PasswordHash) {
		return "", Account{}, ErrWrongPassword
	}

	token, err := as.RandStringFunc(35)
	if err != nil {
		return "", Account{}, err
	}

	if err := as.sessions.Add(ctx, Session{
		Token:     token,
		AccountID: account.ID,
		CreatedAt: createdAt,
	}); err != nil {
		return "", Account{}, err
	}

	return token, account, nil
}

func (as *Service) Logout(ctx context.Context, token string) error {
	if _, err := as.sessions.Get(ctx, token); err != nil {
		return err
	}
	return as.sessions.Remove(ctx, token)
}

// ScanAndClean will run through all sessions, check the TTL, and clean them if old
func (as *Service) ScanAndClean(ctx context.Context) {
	sessionTokens, err := as.sessions.Tokens(ctx)
	if err != nil {
		log.Errorf("!!! auth service, scan and clean, get sessions: %s", err)
		return
	}
	if len(sessionTokens) == 0 {
		log.Warnln("=> auth service, scan and clean abort, no sessions")
		return
	}

	log.Warnf("=> auth service, scan and clean [%d sessions] start ...", len(sessionTokens))
	var toRemove []string
	for _, token := range sessionTokens {
		session, err := as.sessions.Get(ctx, token)
		if err != nil {
			log.Errorf("=> auth service, scan and clean token %s: %s", token, err)
			continue
		}
		if time.Since(session.CreatedAt) > as.ttl {
			log.Warnf("=>\twill clean the session with token: %s", token)
			toRemove = append(toRemove, token)
		}
	}

	for _, token := range toRemove {
		if err := as.sessions.Remove(ctx, token); err != nil {
			log.Errorf("=> auth service, clean token %s: %s", token, err)
		}
	}
}
