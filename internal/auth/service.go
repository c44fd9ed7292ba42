package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jcossey/contacthub/internal/infrastructure/logging"
)

// Default token and cache lifetimes, used when Deps leaves them zero.
const (
	defaultAccessTokenTTL   = 15 * time.Minute
	defaultRefreshTokenTTL  = 7 * 24 * time.Hour
	defaultIdentityCacheTTL = 5 * time.Minute
)

// Deps holds the dependencies required by the auth service.
type Deps struct {
	Store            UserStore
	Cache            Cache
	Codec            *TokenCodec
	Logger           *logging.Logger
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	IdentityCacheTTL time.Duration
}

// Service orchestrates password verification, token issuance and rotation,
// and principal resolution. It is stateless apart from the injected store,
// cache, and codec handles, and is safe for concurrent use.
type Service struct {
	store      UserStore
	cache      Cache
	codec      *TokenCodec
	logger     *logging.Logger
	accessTTL  time.Duration
	refreshTTL time.Duration
	cacheTTL   time.Duration
}

// New creates an auth service with the given dependencies.
func New(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("identity cache is required")
	}
	if deps.Codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}

	if deps.AccessTokenTTL <= 0 {
		deps.AccessTokenTTL = defaultAccessTokenTTL
	}
	if deps.RefreshTokenTTL <= 0 {
		deps.RefreshTokenTTL = defaultRefreshTokenTTL
	}
	if deps.IdentityCacheTTL <= 0 {
		deps.IdentityCacheTTL = defaultIdentityCacheTTL
	}

	return &Service{
		store:      deps.Store,
		cache:      deps.Cache,
		codec:      deps.Codec,
		logger:     deps.Logger.With("component", "auth"),
		accessTTL:  deps.AccessTokenTTL,
		refreshTTL: deps.RefreshTokenTTL,
		cacheTTL:   deps.IdentityCacheTTL,
	}, nil
}

// Register creates a new principal with a hashed password.
// The account starts unconfirmed; confirmation happens via a
// single-purpose email token.
func (s *Service) Register(ctx context.Context, email, username, password string) (*Principal, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	principal := &Principal{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.store.Create(ctx, principal); err != nil {
		return nil, err
	}

	s.logger.Info("principal registered", "subject", email)
	return principal, nil
}

// Login verifies the credentials and issues a fresh access/refresh pair.
//
// An unknown email and a wrong password both fail with
// ErrInvalidCredentials; the two cases are indistinguishable to the caller.
// On success the refresh token is persisted as the principal's current one,
// starting a new rotation lineage.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	principal, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUnknownPrincipal) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !VerifyPassword(password, principal.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(email)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetRefreshToken(ctx, email, pair.RefreshToken); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, email)

	s.logger.Info("login succeeded", "subject", email)
	return pair, nil
}

// Refresh rotates a refresh token: it verifies the token, compares it
// against the principal's stored refresh token, and on match issues and
// persists a new pair.
//
// Each refresh token is single-use. A stored-value mismatch means the
// presented token was already rotated or stolen; the stored token is
// cleared immediately (revoking the whole lineage) and the call fails
// with ErrTokenRevoked. Access tokens already issued from the lineage
// remain valid until they expire; only refresh attempts are rejected.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Scope != ScopeRefresh {
		return nil, ErrInvalidScope
	}

	email := claims.Subject
	if _, err := s.store.FindByEmail(ctx, email); err != nil {
		return nil, err
	}

	pair, err := s.issuePair(email)
	if err != nil {
		return nil, err
	}

	swapped, err := s.store.ReplaceRefreshToken(ctx, email, refreshToken, pair.RefreshToken)
	if err != nil {
		return nil, err
	}
	if !swapped {
		// Reuse detection: the presented token is not the current one.
		// Treat it as a compromise signal and revoke the lineage.
		if clearErr := s.store.ClearRefreshToken(ctx, email); clearErr != nil {
			s.logger.Error("failed to clear refresh token after reuse", "subject", email, "error", clearErr)
		}
		s.cache.Invalidate(ctx, email)
		s.logger.Warn("refresh token reuse detected", "subject", email)
		return nil, ErrTokenRevoked
	}

	s.cache.Invalidate(ctx, email)
	return pair, nil
}

// ResolvePrincipal resolves the current principal from a bearer access
// token. This is the per-request hot path: the identity cache is consulted
// first, and the store is only hit on a miss, after which the principal is
// cached with the configured TTL.
func (s *Service) ResolvePrincipal(ctx context.Context, accessToken string) (*Principal, error) {
	claims, err := s.codec.Decode(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.Scope != ScopeAccess {
		return nil, ErrInvalidScope
	}

	email := claims.Subject
	if principal, ok := s.cache.Get(ctx, email); ok {
		return principal, nil
	}

	principal, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	s.cache.Put(ctx, email, principal, s.cacheTTL)
	return principal, nil
}

// Logout clears the principal's stored refresh token and cache entry.
// Outstanding access tokens stay valid until expiry; refresh is no longer
// possible.
func (s *Service) Logout(ctx context.Context, email string) error {
	if err := s.store.ClearRefreshToken(ctx, email); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, email)

	s.logger.Info("logout", "subject", email)
	return nil
}

// IssuePurposeToken issues a single-purpose token (email confirmation,
// password reset). The purpose becomes the token's scope, so it cannot be
// replayed as an access or refresh token.
func (s *Service) IssuePurposeToken(email, purpose string, ttl time.Duration) (string, error) {
	if purpose == ScopeAccess || purpose == ScopeRefresh {
		return "", fmt.Errorf("%w: purpose %q is reserved", ErrInvalidScope, purpose)
	}
	return s.codec.Encode(email, purpose, ttl)
}

// IssueResetToken issues a password reset token for a known principal.
// Unknown emails fail with ErrUnknownPrincipal so the caller can decide
// whether to reveal that to the requester.
func (s *Service) IssueResetToken(ctx context.Context, email string, ttl time.Duration) (string, error) {
	if _, err := s.store.FindByEmail(ctx, email); err != nil {
		return "", err
	}
	return s.IssuePurposeToken(email, ScopePasswordReset, ttl)
}

// ConsumePurposeToken verifies a single-purpose token and returns its
// subject email. The token itself carries no single-use tracking; the
// caller enforces one-time-use semantics by changing the external state
// the token gates (e.g. flipping the confirmed flag).
func (s *Service) ConsumePurposeToken(token, purpose string) (string, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return "", err
	}
	if claims.Scope != purpose {
		return "", ErrInvalidScope
	}
	return claims.Subject, nil
}

// ConfirmEmail consumes an email confirmation token and marks the subject
// principal as confirmed. The second return value reports whether the
// account was already confirmed.
func (s *Service) ConfirmEmail(ctx context.Context, token string) (string, bool, error) {
	email, err := s.ConsumePurposeToken(token, ScopeEmailConfirm)
	if err != nil {
		return "", false, err
	}

	principal, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return "", false, err
	}
	if principal.Confirmed {
		return email, true, nil
	}

	if err := s.store.SetConfirmed(ctx, email); err != nil {
		return "", false, err
	}
	s.cache.Invalidate(ctx, email)

	s.logger.Info("email confirmed", "subject", email)
	return email, false, nil
}

// ResetPassword consumes a password reset token and replaces the subject's
// password. The stored refresh token is cleared as well, so existing
// sessions cannot be refreshed with the old credentials.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	email, err := s.ConsumePurposeToken(token, ScopePasswordReset)
	if err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := s.store.UpdatePassword(ctx, email, hash); err != nil {
		return err
	}
	if err := s.store.ClearRefreshToken(ctx, email); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, email)

	s.logger.Info("password reset", "subject", email)
	return nil
}

// issuePair creates a new access/refresh token pair for the subject.
func (s *Service) issuePair(email string) (*TokenPair, error) {
	access, err := s.codec.Encode(email, ScopeAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.Encode(email, ScopeRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}
