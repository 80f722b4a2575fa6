package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cookieName = "timebok_session"

type accountFinderStub map[string]Account

func (s accountFinderStub) FindAccount(ctx context.Context, username string) (Account, error) {
	account, ok := s[username]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func setupHandler(t *testing.T) (*Handler, *SessionManager) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	sessions, _ := newTestSessions()
	accounts := accountFinderStub{"anna": {Caller: anna, PasswordHash: hash}}
	return NewHandler(accounts, sessions, cookieName), sessions
}

func login(handler *Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	handler.Login(w, httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(body)))
	return w
}

func TestHandler_Login(t *testing.T) {
	t.Run("should set session cookie for valid credentials", func(t *testing.T) {
		// given
		handler, sessions := setupHandler(t)

		// when
		w := login(handler, `{"username":"anna","password":"correct-horse"}`)

		// then
		require.Equal(t, http.StatusOK, w.Code)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, cookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
		caller, err := sessions.Parse(cookies[0].Value)
		require.NoError(t, err)
		assert.Equal(t, anna, caller)

		var session SessionDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
		assert.True(t, session.Authenticated)
		assert.Equal(t, "Anna Berg", session.Practitioner.Name)
	})

	testCases := []struct {
		name   string
		body   string
		status int
	}{
		{name: "wrong password", body: `{"username":"anna","password":"wrong-horse"}`, status: http.StatusUnauthorized},
		{name: "unknown user", body: `{"username":"bob","password":"correct-horse"}`, status: http.StatusUnauthorized},
		{name: "missing password", body: `{"username":"anna"}`, status: http.StatusBadRequest},
		{name: "malformed body", body: `{`, status: http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			handler, _ := setupHandler(t)

			w := login(handler, tc.body)

			assert.Equal(t, tc.status, w.Code)
			assert.Empty(t, w.Result().Cookies())
		})
	}
}

func TestHandler_Session(t *testing.T) {
	t.Run("should report caller from context", func(t *testing.T) {
		// given
		handler, _ := setupHandler(t)
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil).WithContext(WithCaller(context.Background(), anna))
		w := httptest.NewRecorder()

		// when
		handler.Session(w, req)

		// then
		require.Equal(t, http.StatusOK, w.Code)
		var session SessionDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
		assert.True(t, session.Authenticated)
		assert.Equal(t, 7, session.Practitioner.Id)
	})

	t.Run("should report anonymous session", func(t *testing.T) {
		handler, _ := setupHandler(t)
		w := httptest.NewRecorder()

		handler.Session(w, httptest.NewRequest(http.MethodGet, "/api/session", nil))

		assert.JSONEq(t, `{"authenticated":false}`, w.Body.String())
	})
}

func TestHandler_Logout(t *testing.T) {
	t.Run("should expire the cookie", func(t *testing.T) {
		handler, _ := setupHandler(t)
		w := httptest.NewRecorder()

		handler.Logout(w, httptest.NewRequest(http.MethodPost, "/api/logout", nil))

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})
}

func TestHandler_TokenFromRequest(t *testing.T) {
	handler, _ := setupHandler(t)

	t.Run("should prefer bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer header-token")
		req.AddCookie(&http.Cookie{Name: cookieName, Value: "cookie-token"})

		assert.Equal(t, "header-token", handler.TokenFromRequest(req))
	})

	t.Run("should fall back to cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: cookieName, Value: "cookie-token"})

		assert.Equal(t, "cookie-token", handler.TokenFromRequest(req))
	})

	t.Run("should return empty for anonymous request", func(t *testing.T) {
		assert.Empty(t, handler.TokenFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)))
	})
}
