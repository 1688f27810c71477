package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/audit-engine/go-core/internal/audit"
)

// Service authenticates users and records login activity in the audit
// ledger.
type Service struct {
	users  UserStore
	issuer *TokenIssuer
	ledger *audit.Ledger
	logger *zap.Logger
}

// NewService creates the auth service.
func NewService(users UserStore, issuer *TokenIssuer, ledger *audit.Ledger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{users: users, issuer: issuer, ledger: ledger, logger: logger}
}

// Login verifies credentials and issues an access token. Failed attempts
// for known users are audited as LOGIN_FAILED; unknown usernames are not
// audited (there is no actor to attribute the entry to) but are logged.
func (s *Service) Login(ctx context.Context, username, password string, meta map[string]interface{}) (string, *User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.logger.Info("login attempt for unknown user", zap.String("username", username))
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if !CheckPassword(user.PasswordHash, password) {
		s.ledger.Record(ctx, user.ID, user.Username, audit.ActionLoginFailed, nil, meta)
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		return "", nil, err
	}

	s.ledger.Record(ctx, user.ID, user.Username, audit.ActionLogin, nil, meta)
	return token, user, nil
}

// Logout records the logout action. Tokens are stateless, so this is an
// audit-trail affair only.
func (s *Service) Logout(ctx context.Context, claims *Claims, meta map[string]interface{}) {
	s.ledger.Record(ctx, claims.UserID, claims.Username, audit.ActionLogout, nil, meta)
}

// Validate verifies an access token.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	return s.issuer.Validate(tokenString)
}
