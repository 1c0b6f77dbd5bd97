package http

import (
	"net/http"
	"strconv"

	"kharcha/internal/core"
	"kharcha/internal/log"
)

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListUsers(w, r)
	case http.MethodPost:
		s.handleCreateUser(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(r.Context())
	users, err := s.auth.ListUsers(r.Context(), actor)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list users", log.FieldError, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	data := struct {
		User  *core.User
		Users []core.User
	}{User: actor, Users: users}
	s.render(w, r, "users.html", data)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeErrorFragment(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	actor := currentUser(r.Context())
	username := sanitizeInput(r.Form.Get("username"))
	fullName := sanitizeInput(r.Form.Get("full_name"))
	password := r.Form.Get("password")
	role := core.RoleRegular
	if r.Form.Get("role") == string(core.RoleAdmin) {
		role = core.RoleAdmin
	}

	user, err := s.auth.CreateUser(r.Context(), actor, username, password, fullName, role)
	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "Failed to create user",
				log.FieldError, err,
				log.FieldUsername, username)
		}
		writeErrorFragment(w, status, userFacingError(err, status))
		return
	}

	s.logger.InfoContext(r.Context(), "User created",
		log.FieldUserID, user.ID,
		log.FieldUsername, user.Username,
		"role", string(user.Role),
		log.FieldComponent, log.ComponentAuth)
	writeSuccessFragment(w, "Created user "+user.Username)
}

// handleUpdateUser handles the admin rename, full-name and password-reset
// forms, multiplexed by the "action" field.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeErrorFragment(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	targetID, err := strconv.ParseInt(r.Form.Get("id"), 10, 64)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid user id")
		return
	}

	actor := currentUser(r.Context())
	action := r.Form.Get("action")

	var msg string
	switch action {
	case "rename":
		err = s.auth.UpdateUsername(r.Context(), actor, targetID, sanitizeInput(r.Form.Get("username")))
		msg = "Username updated"
	case "fullname":
		err = s.auth.UpdateFullName(r.Context(), actor, targetID, sanitizeInput(r.Form.Get("full_name")))
		msg = "Name updated"
	case "reset_password":
		err = s.auth.ResetPassword(r.Context(), actor, targetID, r.Form.Get("password"))
		msg = "Password reset"
	default:
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Unknown action")
		return
	}

	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "Failed to update user",
				log.FieldError, err,
				log.FieldUserID, targetID,
				"action", action)
		}
		writeErrorFragment(w, status, userFacingError(err, status))
		return
	}

	s.logger.InfoContext(r.Context(), "User updated",
		log.FieldUserID, targetID,
		"action", action,
		log.FieldComponent, log.ComponentAuth)
	writeSuccessFragment(w, msg)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeErrorFragment(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	targetID, err := strconv.ParseInt(r.Form.Get("id"), 10, 64)
	if err != nil {
		writeErrorFragment(w, http.StatusUnprocessableEntity, "Invalid user id")
		return
	}

	actor := currentUser(r.Context())
	if err := s.auth.DeleteUser(r.Context(), actor, targetID); err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "Failed to delete user",
				log.FieldError, err,
				log.FieldUserID, targetID)
		}
		writeErrorFragment(w, status, userFacingError(err, status))
		return
	}

	// Aggregates shift the deleted user's records to the placeholder name.
	s.partialCache.Purge()
	s.logger.InfoContext(r.Context(), "User deleted",
		log.FieldUserID, targetID,
		log.FieldComponent, log.ComponentAuth)
	writeSuccessFragment(w, "User deleted. Their expenses remain in the household history.")
}
