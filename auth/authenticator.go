package auth

import (
	"context"
	"strconv"

	"github.com/beyondbound/api/users"
	goerrors "github.com/goliatone/go-errors"
)

// Auther drives the register/login/refresh protocol over a UserStore and a
// TokenService. It holds no mutable state of its own and is safe for
// concurrent use.
type Auther struct {
	store  UserStore
	tokens TokenService
	logger Logger
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(store UserStore, tokens TokenService) *Auther {
	return &Auther{
		store:  store,
		tokens: tokens,
		logger: defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokens
}

// Register creates a new principal with the default role. The email must not
// already be registered; matching is exact, no normalization.
func (s *Auther) Register(ctx context.Context, email, password, name string) (*users.User, error) {
	if _, err := s.store.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !goerrors.IsNotFound(err) {
		s.logger.Error("register email lookup failed: %v", err)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	record, err := s.store.Create(ctx, &users.User{
		Email:          email,
		HashedPassword: hash,
		Name:           name,
		Role:           users.RoleUser,
		IsActive:       true,
	})
	if err != nil {
		s.logger.Error("register create user failed: %v", err)
		return nil, err
	}

	return record, nil
}

// Login verifies credentials and issues an access/refresh pair. An unknown
// email and a wrong password produce the same error.
func (s *Auther) Login(ctx context.Context, email, password string) (TokenPair, error) {
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return TokenPair{}, ErrInvalidCredentials
		}
		s.logger.Error("login user lookup failed: %v", err)
		return TokenPair{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during login")
	}

	if err := ComparePasswordAndHash(password, user.HashedPassword); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		return TokenPair{}, ErrInactiveUser
	}

	return s.issuePair(user.ID)
}

// Refresh verifies a refresh token, re-resolves its subject, and issues a
// fresh pair. The old refresh token stays valid until it expires naturally;
// there is no server-side invalidation.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, TokenKindRefresh)
	if err != nil {
		s.logger.Debug("refresh token rejected: %v", err)
		return TokenPair{}, ErrInvalidRefreshToken
	}

	id, err := claims.UserID()
	if err != nil {
		s.logger.Debug("refresh token subject %q is not a user id", claims.Subject())
		return TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return TokenPair{}, ErrInvalidUser
		}
		s.logger.Error("refresh user lookup failed: %v", err)
		return TokenPair{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during refresh")
	}

	if !user.IsActive {
		return TokenPair{}, ErrInvalidUser
	}

	return s.issuePair(user.ID)
}

func (s *Auther) issuePair(id int64) (TokenPair, error) {
	subject := strconv.FormatInt(id, 10)

	access, err := s.tokens.Issue(TokenKindAccess, subject)
	if err != nil {
		s.logger.Error("failed to issue access token: %v", err)
		return TokenPair{}, err
	}

	refresh, err := s.tokens.Issue(TokenKindRefresh, subject)
	if err != nil {
		s.logger.Error("failed to issue refresh token: %v", err)
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
