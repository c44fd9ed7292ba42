package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jcossey/contacthub/internal/auth"
	"github.com/jcossey/contacthub/internal/infrastructure/config"
	"github.com/jcossey/contacthub/internal/infrastructure/logging"
)

// testServer creates a Server with a real auth service backed by in-memory SQLite.
func testServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()

	db := setupTestDB(t)
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	codec, err := auth.NewTokenCodec("test-secret-key-at-least-32-characters", "HS256")
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	svc, err := auth.New(auth.Deps{
		Store:  auth.NewUserStore(db),
		Cache:  auth.NewMemoryCache(),
		Codec:  codec,
		Logger: log,
	})
	if err != nil {
		t.Fatalf("auth.New() error: %v", err)
	}

	authCfg := config.AuthConfig{
		Secret:           "test-secret-key-at-least-32-characters",
		Algorithm:        "HS256",
		AccessTokenTTL:   15,
		RefreshTokenTTL:  10080,
		EmailTokenTTL:    24,
		IdentityCacheTTL: 300,
	}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Auth:    svc,
		AuthCfg: authCfg,
		Logger:  log,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, srv.buildRouter()
}

// setupTestDB creates an in-memory SQLite database with the users schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			refresh_token TEXT,
			confirmed     INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating users table: %v", err)
	}

	return db
}

// doJSON issues a request with a JSON body against the router.
func doJSON(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeBody decodes a JSON response body into a map.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}

// signupAndLogin registers an account and returns its token pair.
func signupAndLogin(t *testing.T, router http.Handler, email, password string) (access, refresh string) {
	t.Helper()

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email": email, "username": "alice", "password": password,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": email, "password": password,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	access, _ = body["access_token"].(string)
	refresh, _ = body["refresh_token"].(string)
	if access == "" || refresh == "" {
		t.Fatal("login should return both tokens")
	}
	return access, refresh
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHandleHealth(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestHandleSignup(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email": "alice@example.com", "username": "alice", "password": "hunter2-is-not-enough",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if token, _ := body["confirmation_token"].(string); token == "" {
		t.Error("signup should return a confirmation token")
	}

	principal, _ := body["principal"].(map[string]any)
	if principal["email"] != "alice@example.com" {
		t.Errorf("principal email = %v, want alice@example.com", principal["email"])
	}
	if _, exposed := principal["password_hash"]; exposed {
		t.Error("password hash must never be serialised")
	}
}

func TestHandleSignup_Validation(t *testing.T) {
	_, router := testServer(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"bad email", map[string]string{"email": "not-an-email", "username": "a", "password": "long-enough-pw"}},
		{"missing username", map[string]string{"email": "a@example.com", "username": "", "password": "long-enough-pw"}},
		{"short password", map[string]string{"email": "a@example.com", "username": "a", "password": "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestHandleSignup_Duplicate(t *testing.T) {
	_, router := testServer(t)

	payload := map[string]string{
		"email": "alice@example.com", "username": "alice", "password": "hunter2-is-not-enough",
	}
	if w := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", payload, nil); w.Code != http.StatusCreated {
		t.Fatalf("first signup status = %d", w.Code)
	}

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", payload, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate signup status = %d, want 409", w.Code)
	}
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	_, router := testServer(t)
	signupAndLogin(t, router, "alice@example.com", "hunter2-is-not-enough")

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}

	// Unknown email gets the identical response
	w2 := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "nobody@example.com", "password": "wrong",
	}, nil)
	if w2.Code != http.StatusUnauthorized {
		t.Errorf("unknown email status = %d, want 401", w2.Code)
	}
	if w.Body.String() != w2.Body.String() {
		t.Error("wrong-password and unknown-email responses should be identical")
	}
}

func TestHandleLogin_TokenType(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email": "alice@example.com", "username": "alice", "password": "hunter2-is-not-enough",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "alice@example.com", "password": "hunter2-is-not-enough",
	}, nil)
	body := decodeBody(t, w)
	if body["token_type"] != "bearer" {
		t.Errorf("token_type = %v, want bearer", body["token_type"])
	}
	if body["expires_in"] != float64(15*time.Minute/time.Second) {
		t.Errorf("expires_in = %v, want 900", body["expires_in"])
	}
}

func TestHandleRefresh(t *testing.T) {
	_, router := testServer(t)
	_, refresh := signupAndLogin(t, router, "alice@example.com", "hunter2-is-not-enough")

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/refresh", nil, bearer(refresh))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	next, _ := body["refresh_token"].(string)
	if next == "" || next == refresh {
		t.Error("refresh should rotate to a new refresh token")
	}

	// Replaying the rotated token revokes the lineage
	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/refresh", nil, bearer(refresh))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("reused token status = %d, want 401", w.Code)
	}

	// The fresh token is revoked too
	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/refresh", nil, bearer(next))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("post-revocation status = %d, want 401", w.Code)
	}
}

func TestHandleRefresh_MissingToken(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/refresh", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHandleRefresh_AccessTokenRejected(t *testing.T) {
	_, router := testServer(t)
	access, _ := signupAndLogin(t, router, "alice@example.com", "hunter2-is-not-enough")

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/refresh", nil, bearer(access))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHandleConfirmEmail(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email": "alice@example.com", "username": "alice", "password": "hunter2-is-not-enough",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d", w.Code)
	}
	token, _ := decodeBody(t, w)["confirmation_token"].(string)

	w = doJSON(t, router, http.MethodGet, "/api/v1/auth/confirm/"+token, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body: %s", w.Code, w.Body.String())
	}
	if decodeBody(t, w)["message"] != "email confirmed" {
		t.Error("first confirmation should report email confirmed")
	}

	// Replay reports already confirmed rather than failing
	w = doJSON(t, router, http.MethodGet, "/api/v1/auth/confirm/"+token, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("confirm replay status = %d", w.Code)
	}
	if decodeBody(t, w)["message"] != "email already confirmed" {
		t.Error("replay should report already confirmed")
	}
}

func TestHandleConfirmEmail_InvalidToken(t *testing.T) {
	_, router := testServer(t)
	access, _ := signupAndLogin(t, router, "alice@example.com", "hunter2-is-not-enough")

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong scope", access},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodGet, "/api/v1/auth/confirm/"+tt.token, nil, nil)
			if w.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", w.Code)
			}
		})
	}
}

func TestHandlePasswordResetFlow(t *testing.T) {
	_, router := testServer(t)
	signupAndLogin(t, router, "alice@example.com", "old-password-123")

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/password-reset", map[string]string{
		"email": "alice@example.com",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset request status = %d", w.Code)
	}
	token, _ := decodeBody(t, w)["reset_token"].(string)
	if token == "" {
		t.Fatal("reset request for a known email should return a token")
	}

	w = doJSON(t, router, http.MethodPut, "/api/v1/auth/password", map[string]string{
		"token": token, "password": "new-password-456",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("password update status = %d, body: %s", w.Code, w.Body.String())
	}

	// Old credentials no longer work; new ones do
	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "alice@example.com", "password": "old-password-123",
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("old password login status = %d, want 401", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "alice@example.com", "password": "new-password-456",
	}, nil)
	if w.Code != http.StatusOK {
		t.Errorf("new password login status = %d, want 200", w.Code)
	}
}

func TestHandlePasswordReset_UnknownEmail(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/password-reset", map[string]string{
		"email": "nobody@example.com",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (no account enumeration)", w.Code)
	}
	if _, leaked := decodeBody(t, w)["reset_token"]; leaked {
		t.Error("unknown email must not receive a reset token")
	}
}

func TestHandleMe(t *testing.T) {
	_, router := testServer(t)
	access, _ := signupAndLogin(t, router, "alice@example.com", "hunter2-is-not-enough")

	w := doJSON(t, router, http.MethodGet, "/api/v1/users/me", nil, bearer(access))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["email"] != "alice@example.com" {
		t.Errorf("email = %v, want alice@example.com", body["email"])
	}
}

func TestHandleMe_Unauthenticated(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/users/me", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/users/me", nil, bearer("garbage"))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", w.Code)
	}
}

func TestHandleLogout(t *testing.T) {
	_, router := testServer(t)
	access, refresh := signupAndLogin(t, router, "alice@example.com", "hunter2-is-not-enough")

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/logout", nil, bearer(access))
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d", w.Code)
	}

	// Refresh is revoked; the access token rides out its expiry
	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/refresh", nil, bearer(refresh))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d, want 401", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/users/me", nil, bearer(access))
	if w.Code != http.StatusOK {
		t.Errorf("me after logout status = %d, want 200 (access token still valid)", w.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	_, router := testServer(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/health", nil, nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("responses should carry an X-Request-ID header")
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/health", nil, map[string]string{"X-Request-ID": "fixed-id"})
	if got := w.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Errorf("X-Request-ID = %q, want the caller-supplied value", got)
	}
}
