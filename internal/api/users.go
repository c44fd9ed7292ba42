package api

import "net/http"

// handleMe returns the authenticated principal.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "missing bearer token")
		return
	}
	writeJSON(w, http.StatusOK, principal)
}
