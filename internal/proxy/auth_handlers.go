package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/florianilch/tokengate/internal/authclient"
	"github.com/florianilch/tokengate/internal/session"
)

// authHandlers serves the local session management endpoints.
type authHandlers struct {
	session *session.Session
}

// loginRequest is the body of POST /-/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// statusResponse is the body of GET /-/auth/status.
type statusResponse struct {
	SessionID     string     `json:"session_id"`
	Authenticated bool       `json:"authenticated"`
	Usable        bool       `json:"usable"`
	NeedsRefresh  bool       `json:"needs_refresh"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func (h *authHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(ctx, w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSONError(ctx, w, "username and password are required", http.StatusBadRequest)
		return
	}

	tok, err := h.session.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, authclient.ErrInvalidCredentials) {
			writeJSONError(ctx, w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		writeJSONError(ctx, w, "login failed", http.StatusBadGateway)
		return
	}

	writeJSON(ctx, w, statusResponse{
		SessionID:     h.session.ID(),
		Authenticated: true,
		Usable:        true,
		ExpiresAt:     &tok.ExpiresAt,
	}, http.StatusOK)
}

func (h *authHandlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.session.Logout(ctx); err != nil {
		writeJSONError(ctx, w, "logout failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *authHandlers) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := statusResponse{
		SessionID:     h.session.ID(),
		Authenticated: h.session.Current(ctx) != nil,
		Usable:        h.session.Usable(ctx),
		NeedsRefresh:  h.session.NeedsRefresh(ctx),
	}
	if tok := h.session.Current(ctx); tok != nil {
		resp.ExpiresAt = &tok.ExpiresAt
	}

	writeJSON(ctx, w, resp, http.StatusOK)
}
