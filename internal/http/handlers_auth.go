package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tally/internal/auth"
	"tally/internal/core"
)

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	// Already signed in? Straight to the dashboard.
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if _, err := s.repo.ValidateSession(r.Context(), cookie.Value); err == nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
	}
	s.render(w, r, "login.html", map[string]any{"Error": ""})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	username := sanitizeInput(r.Form.Get("username"))
	password := r.Form.Get("password")

	user, err := s.repo.GetUserByUsername(r.Context(), username)
	if err != nil || !auth.CheckPassword(password, user.PasswordHash) {
		// Same answer for unknown user and wrong password.
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			slog.ErrorContext(r.Context(), "login lookup failed", "error", err)
		}
		w.WriteHeader(http.StatusUnauthorized)
		s.render(w, r, "login.html", map[string]any{"Error": "Invalid username or password"})
		return
	}

	token := auth.NewSessionToken()
	expiresAt := time.Now().Add(s.sessionTTL)
	if err := s.repo.CreateSession(r.Context(), token, user.ID, expiresAt); err != nil {
		slog.ErrorContext(r.Context(), "session creation failed", "error", err)
		InternalServerError("Could not sign in").Write(w)
		return
	}

	s.setSessionCookie(w, token, expiresAt)
	slog.InfoContext(r.Context(), "user signed in", "user_id", user.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := s.repo.DeleteSession(r.Context(), cookie.Value); err != nil {
			slog.WarnContext(r.Context(), "session deletion failed", "error", err)
		}
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
