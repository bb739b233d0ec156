package server

import (
	"net/http"
	"strconv"

	"github.com/jrsteele09/go-session-auth/users"
)

func (s *Server) initAdminRoutes(public []Middleware) {
	admin := append(append([]Middleware{}, public...), s.RequireAuth, s.RequireRole(users.RoleAdmin))

	s.RegisterRouteFunc("GET /admin/users", ChainMiddleware(s.handleListUsers, admin...))
	s.RegisterRouteFunc("DELETE /admin/users/{id}", ChainMiddleware(s.handleDeleteUser, admin...))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := s.auth.ListUsers(offset, limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.DeleteUser(r.PathValue("id")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "user deleted")
}
