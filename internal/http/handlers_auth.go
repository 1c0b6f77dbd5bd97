package http

import (
	"errors"
	"net/http"

	"kharcha/internal/core"
	"kharcha/internal/log"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.withUser(func(w http.ResponseWriter, r *http.Request) {
			if currentUser(r.Context()) != nil {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			s.render(w, r, "login.html", struct{ Error string }{})
		})(w, r)
	case http.MethodPost:
		s.handleLoginSubmit(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeErrorFragment(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	username := sanitizeInput(r.Form.Get("username"))
	password := r.Form.Get("password")

	user, err := s.auth.Authenticate(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) {
			s.logger.WarnContext(r.Context(), "Login rejected",
				log.FieldUsername, username,
				log.FieldComponent, log.ComponentAuth)
			s.render(w, r, "login.html", struct{ Error string }{Error: "Invalid username or password"})
			return
		}
		s.logger.ErrorContext(r.Context(), "Authentication error", log.FieldError, err)
		s.render(w, r, "login.html", struct{ Error string }{Error: "Something went wrong. Please try again."})
		return
	}

	token, expiresAt, err := s.auth.StartSession(r.Context(), user.ID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to start session",
			log.FieldError, err,
			log.FieldUserID, user.ID)
		s.render(w, r, "login.html", struct{ Error string }{Error: "Something went wrong. Please try again."})
		return
	}

	s.setSessionCookie(w, token, expiresAt)
	s.logger.InfoContext(r.Context(), "User signed in",
		log.FieldUserID, user.ID,
		log.FieldUsername, user.Username,
		log.FieldComponent, log.ComponentAuth)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := s.auth.EndSession(r.Context(), cookie.Value); err != nil {
			s.logger.ErrorContext(r.Context(), "Failed to end session", log.FieldError, err)
		}
	}

	s.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeErrorFragment(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	user := currentUser(r.Context())
	current := r.Form.Get("current_password")
	next := r.Form.Get("new_password")

	if err := s.auth.ChangePassword(r.Context(), user.ID, current, next); err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "Password change failed",
				log.FieldError, err,
				log.FieldUserID, user.ID)
		}
		writeErrorFragment(w, status, userFacingError(err, status))
		return
	}

	s.logger.InfoContext(r.Context(), "Password changed",
		log.FieldUserID, user.ID,
		log.FieldComponent, log.ComponentAuth)
	writeSuccessFragment(w, "Password updated")
}
