package http

import (
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user := core.User{
		Email: strings.TrimSpace(req.Email),
		Name:  strings.TrimSpace(req.Name),
	}
	if err := s.users.CreateUser(r.Context(), &user); err != nil {
		writeServiceError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "User created",
		log.FieldUserID, user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.users.GetUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
