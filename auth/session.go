package auth

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
)

// Authorize checks the session_token cookie and X-CSRF-TOKEN header
// against the store-backed Session row, setting "userid" in the request
// context on success.
func (svc *Service) Authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("authorized", false)
		ctx := c.Request.Context()

		sessionToken, err := c.Cookie("session_token")
		if err != nil || sessionToken == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		sess, err := svc.store.GetSession(ctx, sessionToken)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if time.Now().After(sess.ExpiresAt) {
			_ = svc.store.DeleteSession(ctx, sessionToken)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		rawCSRF := c.GetHeader("X-CSRF-TOKEN")
		csrf, _ := url.QueryUnescape(rawCSRF)
		if csrf == "" || csrf != sess.CSRFToken {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set("userid", sess.UserID)
		c.Set("authorized", true)
	}
}

// SessionCheckHandler reports whether the caller's cookies still name a
// valid, unexpired session.
func (svc *Service) SessionCheckHandler(c *gin.Context) {
	ctx := c.Request.Context()
	sessionToken, err := c.Cookie("session_token")
	if err != nil || sessionToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false, "message": "no session token found"})
		return
	}

	sess, err := svc.store.GetSession(ctx, sessionToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false, "message": "invalid session token"})
		return
	}

	if time.Now().After(sess.ExpiresAt) {
		_ = svc.store.DeleteSession(ctx, sessionToken)
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false, "message": "session expired"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user_id":       sess.UserID,
		"message":       "user is authenticated",
	})
}
