package session

import (
	"net/http"

	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/config"
	"doccatalog-go/pkg/log"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const (
	cookieName    = "session_id"
	contextKey    = "session_payload"
	warningHeader = "X-Session-Warning"
)

// Middleware attaches the cookie's session payload (if any) to the gin
// context and marks the response with X-Session-Warning when the Store is
// operating out of its in-memory fallback.
func Middleware(store *Store, cfg config.SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store.InFallback() {
			c.Header(warningHeader, "session store degraded: serving from in-memory fallback")
		}

		sessionID, err := c.Cookie(cookieName)
		if err == nil && sessionID != "" {
			if payload, err := store.Load(c.Request.Context(), sessionID); err == nil {
				c.Set(contextKey, payload)
			}
		}
		c.Next()
	}
}

// RequireAuth aborts with 401 unless the request carries a session with
// Auth=true, treating a valid session bearing {auth=true} as authenticated.
func RequireAuth(cfg config.SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, ok := FromContext(c)
		if ok && payload.Auth {
			c.Next()
			return
		}
		if cfg.AllowUnauthenticatedOnSessionFailure {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
}

// FromContext retrieves the session payload set by Middleware, if any.
func FromContext(c *gin.Context) (*Payload, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	payload, ok := v.(*Payload)
	return payload, ok
}

// LoginHandler builds a gin handler implementing the shared-password login
// flow: bcrypt comparison, rate limiting, cookie issuance. The configured
// plaintext password is hashed once at startup; bcrypt.CompareHashAndPassword
// runs in constant time with respect to the candidate password.
func LoginHandler(store *Store, cfg config.SessionConfig) gin.HandlerFunc {
	limiter := newLoginLimiter(cfg.LoginRateLimitPerMinute)
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AppPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Errorf("[Session] failed to hash configured app password, login will always fail: %v", err)
	}
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
			return
		}

		var body struct {
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if bcrypt.CompareHashAndPassword(hash, []byte(body.Password)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
			return
		}

		sessionID, err := store.Create(c.Request.Context(), Payload{Auth: true})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": apperr.KindOf(err)})
			return
		}

		setCookie(c, cfg, sessionID)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// LogoutHandler destroys the caller's session and clears the cookie.
func LogoutHandler(store *Store, cfg config.SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessionID, err := c.Cookie(cookieName); err == nil && sessionID != "" {
			_ = store.Destroy(c.Request.Context(), sessionID)
		}
		clearCookie(c, cfg)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func setCookie(c *gin.Context, cfg config.SessionConfig, sessionID string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieName, sessionID, cfg.TTLSeconds, "/", "", cfg.CookieSecure, true)
}

func clearCookie(c *gin.Context, cfg config.SessionConfig) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieName, "", -1, "/", "", cfg.CookieSecure, true)
}
