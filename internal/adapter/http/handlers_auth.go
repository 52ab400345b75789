package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/middleware"
	"github.com/komodo-run/core/internal/service"
)

const refreshCookieName = "komodo_refresh"

func setRefreshCookie(w http.ResponseWriter, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/auth",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(maxAge / time.Second),
	})
}

// HandleLogin serves POST /auth/login.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.LoginRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}

	resp, rawRefresh, err := h.Auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	setRefreshCookie(w, rawRefresh, 7*24*time.Hour)
	writeJSON(w, http.StatusOK, resp)
}

// HandleRefresh serves POST /auth/refresh.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no refresh token")
		return
	}

	resp, newRawRefresh, err := h.Auth.RefreshTokens(r.Context(), cookie.Value)
	if err != nil {
		setRefreshCookie(w, "", -1)
		writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	setRefreshCookie(w, newRawRefresh, 7*24*time.Hour)
	writeJSON(w, http.StatusOK, resp)
}

// HandleLogout serves POST /auth/logout.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var jti string
	var tokenExpiry time.Time
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != authHeader {
			if claims, err := h.Auth.ValidateAccessToken(token); err == nil {
				jti = claims.JTI
				tokenExpiry = time.Unix(claims.Expiry, 0)
			}
		}
	}

	if err := h.Auth.Logout(r.Context(), u.ID, jti, tokenExpiry); err != nil {
		writeInternalError(w, err)
		return
	}

	setRefreshCookie(w, "", -1)
	writeOk(w)
}

// HandleMe serves GET /auth/me.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleChangePassword serves POST /auth/change-password.
func (h *Handlers) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	req, ok := readJSON[user.ChangePasswordRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}

	if err := h.Auth.ChangePassword(r.Context(), u.ID, req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOk(w)
}

// HandleSetupStatus serves GET /auth/setup-status — whether the instance
// still needs its first super_admin registered.
func (h *Handlers) HandleSetupStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Auth.GetSetupStatus(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleSetup serves POST /auth/setup — registers the first user and
// elevates it to super_admin. Rejected once any user exists; after that,
// BootstrapAdmin/UpdateUser is the only path to elevation.
func (h *Handlers) HandleSetup(w http.ResponseWriter, r *http.Request) {
	status, err := h.Auth.GetSetupStatus(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if !status.NeedsSetup {
		writeError(w, http.StatusConflict, "setup has already been completed")
		return
	}

	req, ok := readJSON[user.CreateRequest](w, r, h.bodyLimit())
	if !ok {
		return
	}

	created, err := h.Auth.Register(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.Auth.UpdateUser(r.Context(), created.ID, adminElevation())
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp, rawRefresh, err := h.Auth.Login(r.Context(), user.LoginRequest{Username: req.Username, Password: req.Password})
	if err != nil {
		writeJSON(w, http.StatusOK, updated)
		return
	}

	setRefreshCookie(w, rawRefresh, 7*24*time.Hour)
	writeJSON(w, http.StatusOK, resp)
}

func adminElevation() service.UpdateUserRequest {
	t := true
	return service.UpdateUserRequest{Enabled: &t, Admin: &t, SuperAdmin: &t}
}
