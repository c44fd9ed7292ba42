package auth

import (
	"errors"
	"time"
)

// Token scopes. A token is only honoured for the operation its scope names:
// access tokens authorise API calls, refresh tokens mint new pairs, and the
// single-purpose scopes drive the email confirmation and password reset flows.
const (
	ScopeAccess        = "access"
	ScopeRefresh       = "refresh"
	ScopeEmailConfirm  = "email_confirm"
	ScopePasswordReset = "password_reset"
)

// Principal is the authenticated identity a token resolves to.
//
// The user store owns the record; the auth core holds only transient,
// possibly cached copies. RefreshToken, when non-empty, is the most
// recently issued refresh token for the account — any mismatch on refresh
// invalidates all outstanding refresh tokens for the principal.
type Principal struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	RefreshToken string    `json:"-"` // never serialised
	Confirmed    bool      `json:"confirmed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Sentinel errors for auth operations.
//
// ErrInvalidCredentials deliberately covers both "no such email" and
// "wrong password" so callers cannot distinguish them (account enumeration).
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidScope       = errors.New("invalid scope for token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenSignature     = errors.New("token signature is invalid")
	ErrTokenMalformed     = errors.New("token is malformed")
	ErrTokenRevoked       = errors.New("refresh token has been revoked")
	ErrUnknownPrincipal   = errors.New("unknown principal")
	ErrEmailExists        = errors.New("account already exists")
)
