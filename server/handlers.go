package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/jrsteele09/go-session-auth/users"
)

func (s *Server) initRoutes() {
	public := []Middleware{
		LoggingMiddleware(s.logger),
		RecoverMiddleware(s.logger),
		CorsMiddleware(s.config.GetAllowedOrigins()),
	}
	authed := append(append([]Middleware{}, public...), s.RequireAuth)

	// Preflight requests never match the method-qualified patterns below, so
	// they get their own route; CorsMiddleware answers them.
	s.RegisterRouteFunc("OPTIONS /", ChainMiddleware(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, public...))

	s.RegisterRouteFunc("POST /auth/register", ChainMiddleware(s.handleRegister, public...))
	s.RegisterRouteFunc("POST /auth/login", ChainMiddleware(s.handleLogin, public...))
	s.RegisterRouteFunc("POST /auth/google", ChainMiddleware(s.handleGoogleLogin, public...))
	s.RegisterRouteFunc("GET /auth/google/callback", ChainMiddleware(s.handleGoogleCallback, public...))
	s.RegisterRouteFunc("POST /auth/refresh", ChainMiddleware(s.handleRefresh, public...))
	s.RegisterRouteFunc("POST /auth/logout", ChainMiddleware(s.handleLogout, public...))
	s.RegisterRouteFunc("POST /auth/logout-all", ChainMiddleware(s.handleLogoutAll, authed...))
	s.RegisterRouteFunc("GET /auth/current", ChainMiddleware(s.handleCurrentUser, authed...))

	s.RegisterRouteFunc("GET /auth/verify/{token}", ChainMiddleware(s.handleVerifyEmail, public...))
	s.RegisterRouteFunc("POST /auth/verify/resend", ChainMiddleware(s.handleResendVerification, public...))

	s.RegisterRouteFunc("POST /auth/password/forgot", ChainMiddleware(s.handleForgotPassword, public...))
	s.RegisterRouteFunc("POST /auth/password/reset", ChainMiddleware(s.handleResetPassword, public...))
	s.RegisterRouteFunc("POST /auth/password/change", ChainMiddleware(s.handleChangePassword, authed...))

	s.RegisterRouteFunc("POST /auth/email/change", ChainMiddleware(s.handleRequestEmailChange, authed...))
	s.RegisterRouteFunc("POST /auth/email/confirm", ChainMiddleware(s.handleConfirmEmailChange, authed...))

	s.initAdminRoutes(public)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Role     string `json:"role"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	public, err := s.auth.Register(auth.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     users.RoleType(req.Role),
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, public)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.auth.Login(auth.LoginParams{
		Email:    req.Email,
		Password: req.Password,
		Metadata: requestMetadata(r),
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.writeLoginResult(w, result)
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"idToken"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.auth.SocialLogin(r.Context(), req.IDToken, requestMetadata(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.writeLoginResult(w, result)
}

// handleGoogleCallback lands the provider redirect: the authorization code
// in the query is exchanged server-side for a verified identity.
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeMessage(w, http.StatusBadRequest, "missing code")
		return
	}

	result, err := s.auth.SocialLoginCode(r.Context(), code, r.URL.Query().Get("code_verifier"), requestMetadata(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.writeLoginResult(w, result)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.auth.Refresh(refreshSecretFromRequest(r))
	if err != nil {
		s.clearRefreshCookie(w)
		writeError(w, s.logger, err)
		return
	}
	s.writeLoginResult(w, result)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(refreshSecretFromRequest(r)); err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.clearRefreshCookie(w)
	writeMessage(w, http.StatusOK, "logged out")
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if err := s.auth.LogoutAll(user.ID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.clearRefreshCookie(w)
	writeMessage(w, http.StatusOK, "logged out everywhere")
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, user.Public())
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	public, err := s.auth.VerifyEmail(r.PathValue("token"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, public)
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.auth.ResendVerification(req.Email); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "verification email sent")
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.auth.ForgotPassword(req.Email); err != nil {
		writeError(w, s.logger, err)
		return
	}
	// Same response whether or not the account exists.
	writeMessage(w, http.StatusOK, "if the account exists, a reset email has been sent")
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.auth.ResetPassword(req.Token, req.NewPassword); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "password reset")
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	user := UserFromContext(r.Context())
	claims := ClaimsFromContext(r.Context())
	if err := s.auth.ChangePassword(user.ID, req.CurrentPassword, req.NewPassword, claims.SessionID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "password changed")
}

func (s *Server) handleRequestEmailChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewEmail string `json:"newEmail"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	user := UserFromContext(r.Context())
	if err := s.auth.RequestEmailChange(user.ID, req.NewEmail); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "confirmation sent to new address")
}

func (s *Server) handleConfirmEmailChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	claims := ClaimsFromContext(r.Context())
	public, err := s.auth.ConfirmEmailChange(req.Token, claims.SessionID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, public)
}

// writeLoginResult sets the rotating refresh cookie and returns the access
// token and user projection. The raw refresh secret only ever travels here.
func (s *Server) writeLoginResult(w http.ResponseWriter, result *auth.LoginResult) {
	s.setRefreshCookie(w, result.RefreshSecret, s.config.GetSessionMaxAge())
	writeJSON(w, http.StatusOK, struct {
		User        users.Public `json:"user"`
		AccessToken string       `json:"accessToken"`
		ExpiresIn   int64        `json:"expiresIn"`
	}{
		User:        result.User,
		AccessToken: result.AccessToken,
		ExpiresIn:   int64(result.AccessTTL.Seconds()),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func requestMetadata(r *http.Request) sessions.Metadata {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		ip = strings.TrimSpace(strings.SplitN(ip, ",", 2)[0])
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	} else {
		ip = r.RemoteAddr
	}
	return sessions.Metadata{IP: ip, UserAgent: r.UserAgent()}
}
