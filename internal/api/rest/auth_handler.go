package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/audit-engine/go-core/internal/api/rest/middleware"
	"github.com/audit-engine/go-core/internal/auth"
)

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	meta := map[string]interface{}{"ip": r.RemoteAddr}
	token, user, err := s.authService.Login(r.Context(), req.Username, req.Password, meta)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			WriteError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.internalError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, LoginResponse{
		Token:    token,
		Username: user.Username,
		Role:     string(user.Role),
	})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())
	if claims == nil {
		WriteError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	s.authService.Logout(r.Context(), claims, map[string]interface{}{"ip": r.RemoteAddr})
	WriteJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", zap.Error(err))
	WriteError(w, http.StatusInternalServerError, "internal server error")
}
