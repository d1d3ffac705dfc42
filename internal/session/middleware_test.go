package session

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"doccatalog-go/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestLoginHandlerRejectsWrongPassword(t *testing.T) {
	cfg := testConfig()
	cfg.AppPassword = "correct-horse"
	cfg.LoginRateLimitPerMinute = 10
	store := NewStore(newFakeBroker(), cfg)

	r := gin.New()
	r.POST("/login", LoginHandler(store, cfg))

	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginHandlerAcceptsCorrectPasswordAndSetsCookie(t *testing.T) {
	cfg := testConfig()
	cfg.AppPassword = "correct-horse"
	cfg.LoginRateLimitPerMinute = 10
	store := NewStore(newFakeBroker(), cfg)

	r := gin.New()
	r.POST("/login", LoginHandler(store, cfg))

	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"password":"correct-horse"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookieName, cookies[0].Name)
}

func TestLoginHandlerRateLimits(t *testing.T) {
	cfg := testConfig()
	cfg.AppPassword = "correct-horse"
	cfg.LoginRateLimitPerMinute = 1
	store := NewStore(newFakeBroker(), cfg)

	r := gin.New()
	r.POST("/login", LoginHandler(store, cfg))

	doLogin := func() int {
		req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"password":"wrong"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "9.9.9.9:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, doLogin())
	assert.Equal(t, http.StatusTooManyRequests, doLogin())
}

func TestRequireAuthAllowsAuthenticatedSession(t *testing.T) {
	r := gin.New()
	r.GET("/protected", func(c *gin.Context) {
		c.Set(contextKey, &Payload{Auth: true})
		c.Next()
	}, RequireAuth(config.SessionConfig{}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuthRejectsMissingSession(t *testing.T) {
	r := gin.New()
	r.GET("/protected", RequireAuth(config.SessionConfig{}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuthAllowsFallbackWhenConfigured(t *testing.T) {
	r := gin.New()
	r.GET("/protected", RequireAuth(config.SessionConfig{AllowUnauthenticatedOnSessionFailure: true}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogoutHandlerClearsCookie(t *testing.T) {
	cfg := testConfig()
	store := NewStore(newFakeBroker(), cfg)

	r := gin.New()
	r.POST("/logout", LogoutHandler(store, cfg))

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "some-session"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
