package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jcossey/contacthub/internal/auth"
)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// signupRequest is the request body for POST /auth/signup.
type signupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// signupResponse is the response body for POST /auth/signup.
//
// Outbound email delivery is not part of this service, so the confirmation
// token is returned directly for the caller to deliver.
type signupResponse struct {
	Principal         *auth.Principal `json:"principal"`
	ConfirmationToken string          `json:"confirmation_token"`
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenPairResponse is the response body for login and refresh.
type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// passwordResetRequest is the request body for POST /auth/password-reset.
type passwordResetRequest struct {
	Email string `json:"email"`
}

// passwordUpdateRequest is the request body for PUT /auth/password.
type passwordUpdateRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// handleSignup registers a new account and issues an email confirmation token.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeBadRequest(w, "invalid email address")
		return
	}
	if req.Username == "" {
		writeBadRequest(w, "username is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	principal, err := s.auth.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	token, err := s.auth.IssuePurposeToken(principal.Email, auth.ScopeEmailConfirm, s.authCfg.GetEmailTokenTTL())
	if err != nil {
		writeInternalError(w, "failed to issue confirmation token")
		return
	}

	s.logger.Info("account registered", "email", principal.Email, "id", principal.ID)
	writeJSON(w, http.StatusCreated, signupResponse{
		Principal:         principal,
		ConfirmationToken: token,
	})
}

// handleLogin authenticates credentials and returns an access/refresh pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	pair, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int(s.authCfg.GetAccessTokenTTL().Seconds()),
	})
}

// handleRefresh rotates a refresh token presented as a bearer credential.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeUnauthorized(w, "missing bearer token")
		return
	}

	pair, err := s.auth.Refresh(r.Context(), token)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int(s.authCfg.GetAccessTokenTTL().Seconds()),
	})
}

// handleConfirmEmail consumes an email confirmation token.
func (s *Server) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	email, alreadyConfirmed, err := s.auth.ConfirmEmail(r.Context(), token)
	if err != nil {
		writeConfirmError(w, err)
		return
	}

	message := "email confirmed"
	if alreadyConfirmed {
		message = "email already confirmed"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"email":   email,
		"message": message,
	})
}

// handlePasswordResetRequest issues a password reset token for a known
// account. The response is identical for unknown emails so the endpoint
// cannot be used to probe which addresses are registered.
func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	resp := map[string]string{"message": "if the account exists, a reset token has been issued"}

	token, err := s.auth.IssueResetToken(r.Context(), req.Email, s.authCfg.GetEmailTokenTTL())
	if err != nil {
		if errors.Is(err, auth.ErrUnknownPrincipal) {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		writeInternalError(w, "failed to issue reset token")
		return
	}

	// No outbound email delivery: return the token for the caller to send.
	resp["reset_token"] = token
	writeJSON(w, http.StatusOK, resp)
}

// handlePasswordReset consumes a reset token and sets a new password.
func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	if err := s.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeConfirmError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// handleLogout clears the stored refresh token for the authenticated principal.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "missing bearer token")
		return
	}

	if err := s.auth.Logout(r.Context(), principal.Email); err != nil {
		writeInternalError(w, "failed to log out")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// writeConfirmError maps purpose-token failures to HTTP responses. Malformed
// or mis-scoped tokens are 422 rather than 401: the caller is not
// authenticating, it is presenting a link payload that failed validation.
func writeConfirmError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeUnprocessable, "token has expired")
	case errors.Is(err, auth.ErrTokenSignature),
		errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrInvalidScope):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeUnprocessable, "invalid token")
	case errors.Is(err, auth.ErrUnknownPrincipal):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeUnprocessable, "invalid token")
	default:
		writeInternalError(w, "internal server error")
	}
}
