// Package auth implements the authentication and session core for contacthub.
//
// It provides:
//   - Argon2id password hashing with per-call random salts
//   - Signed claims-bearing tokens (access, refresh, single-purpose) with
//     a pinned HMAC algorithm and shared secret
//   - Refresh token rotation with reuse detection: each refresh token is
//     single-use, and presenting an already-rotated token revokes the
//     whole lineage
//   - A short-TTL identity cache in front of the user store so the
//     per-request token resolution avoids a database round-trip
//
// The Service orchestrator is stateless apart from injected handles and is
// safe for concurrent use, provided the configured UserStore and Cache
// implementations are. The rotation compare-and-set is a single-row UPDATE
// in the SQLite store, so concurrent refreshes for the same principal have
// exactly one winner.
package auth
