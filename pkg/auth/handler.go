package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timebok/timebok/internal/rest"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

type CallerDTO struct {
	Id       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type SessionDTO struct {
	Authenticated bool       `json:"authenticated"`
	Practitioner  *CallerDTO `json:"practitioner,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type Handler struct {
	accounts   AccountFinder
	sessions   *SessionManager
	cookieName string
}

func NewHandler(accounts AccountFinder, sessions *SessionManager, cookieName string) *Handler {
	return &Handler{accounts: accounts, sessions: sessions, cookieName: cookieName}
}

// Login godoc
// @Summary Log in
// @Description Verifies the credentials and sets the session cookie
// @Tags Session
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Credentials"
// @Success 200 {object} SessionDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid request"
// @Failure 401 {object} rest.ErrorResponse "Invalid username or password"
// @Failure 429 {object} rest.ErrorResponse "Too many login attempts"
// @Router /api/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", err.Error())
		return
	}
	if err := rest.ValidateStruct(req); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid login request", rest.FormatValidationError(err))
		return
	}
	log.Debugf("Login attempt for %s", req.Username)

	account, err := h.accounts.FindAccount(r.Context(), req.Username)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		log.Errorf("failed to look up account %s: %v", req.Username, err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	if errors.Is(err, ErrAccountNotFound) {
		// unknown users cost a bcrypt round too
		CheckPassword(dummyHash(), req.Password)
		rest.WriteError(w, http.StatusUnauthorized, "Invalid username or password", "")
		return
	}
	if !CheckPassword(account.PasswordHash, req.Password) {
		log.Infof("failed login for %s", req.Username)
		rest.WriteError(w, http.StatusUnauthorized, "Invalid username or password", "")
		return
	}

	token, expiresAt, err := h.sessions.Issue(account.Caller)
	if err != nil {
		log.Errorf("failed to issue session: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	log.Infof("practitioner %d logged in", account.Caller.PractitionerId)
	rest.WriteJSON(w, http.StatusOK, sessionDTO(account.Caller, &expiresAt))
}

// Logout godoc
// @Summary Log out
// @Tags Session
// @Produce json
// @Success 200 {object} SessionDTO
// @Router /api/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	rest.WriteJSON(w, http.StatusOK, SessionDTO{Authenticated: false})
}

// Session godoc
// @Summary Current session
// @Description Reports whether the request carries a valid session
// @Tags Session
// @Produce json
// @Success 200 {object} SessionDTO
// @Router /api/session [get]
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	caller, err := CurrentCaller(r.Context())
	if err != nil {
		rest.WriteJSON(w, http.StatusOK, SessionDTO{Authenticated: false})
		return
	}
	rest.WriteJSON(w, http.StatusOK, sessionDTO(caller, nil))
}

// TokenFromRequest returns the session token from the Authorization header or the session cookie.
func (h *Handler) TokenFromRequest(r *http.Request) string {
	const prefix = "Bearer "
	if header := r.Header.Get("Authorization"); len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	if cookie, err := r.Cookie(h.cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func sessionDTO(caller Caller, expiresAt *time.Time) SessionDTO {
	return SessionDTO{
		Authenticated: true,
		Practitioner: &CallerDTO{
			Id:       caller.PractitionerId,
			Username: caller.Username,
			Name:     caller.Name,
		},
		ExpiresAt: expiresAt,
	}
}
