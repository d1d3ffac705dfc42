package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"doccatalog-go/internal/authtoken"
	"doccatalog-go/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBearerOrSessionAllowsAuthenticatedSession(t *testing.T) {
	tokens := authtoken.NewManager("secret", 1)

	r := gin.New()
	r.GET("/protected", func(c *gin.Context) {
		c.Set("session_payload", &session.Payload{Auth: true})
		c.Next()
	}, BearerOrSession(tokens), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBearerOrSessionAllowsValidBearerToken(t *testing.T) {
	tokens := authtoken.NewManager("secret", 1)
	token, err := tokens.Issue("uploader", []string{"document:upload"})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/protected", BearerOrSession(tokens), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBearerOrSessionRejectsMissingCredentials(t *testing.T) {
	tokens := authtoken.NewManager("secret", 1)

	r := gin.New()
	r.GET("/protected", BearerOrSession(tokens), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerOrSessionRejectsInvalidToken(t *testing.T) {
	tokens := authtoken.NewManager("secret", 1)

	r := gin.New()
	r.GET("/protected", BearerOrSession(tokens), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
