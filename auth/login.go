package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rorocorp/uns/identity"
)

// RegisterHandler creates a new User (spec §6: initialize_user) and
// returns its private key exactly once — the caller is responsible for
// storing it; nothing server-side ever sees it again.
func (svc *Service) RegisterHandler(c *gin.Context) {
	displayName := c.PostForm("display_name")
	if len(displayName) == 0 {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "display_name required"})
		return
	}

	userID, userSK, err := svc.sys.InitializeUser(c.Request.Context(), displayName)
	if err != nil {
		svc.log.Warn("initialize_user failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":     userID,
		"private_key": base64.StdEncoding.EncodeToString(userSK),
	})
}

// ChallengeHandler issues the one nonce a user must sign to log in (spec
// §3: identity is a keypair, not a password).
func (svc *Service) ChallengeHandler(c *gin.Context) {
	userID := c.PostForm("user_id")
	if userID == "" {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "user_id required"})
		return
	}

	if _, err := svc.store.GetUser(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
		return
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue challenge"})
		return
	}

	if err := svc.store.PutLoginChallenge(c.Request.Context(), userID, nonce, time.Now().Add(challengeTTL)); err != nil {
		svc.log.Warn("put login challenge failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"nonce": base64.StdEncoding.EncodeToString(nonce)})
}

// LoginHandler verifies a signed challenge and, on success, issues a
// session+CSRF token pair (the HTTP surface's own concern, not a core
// module's).
func (svc *Service) LoginHandler(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.PostForm("user_id")
	sigB64 := c.PostForm("signature")
	if userID == "" || sigB64 == "" {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "user_id and signature required"})
		return
	}

	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "malformed signature"})
		return
	}

	challenge, err := svc.store.ConsumeLoginChallenge(ctx, userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no outstanding challenge"})
		return
	}
	if time.Now().After(challenge.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "challenge expired"})
		return
	}

	user, err := svc.store.GetUser(ctx, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
		return
	}

	if err := identity.Verify(ed25519.PublicKey(user.PublicKey), challenge.Nonce, sig); err != nil {
		svc.log.Info("login signature rejected", zap.String("user_id", userID))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature does not match"})
		return
	}

	sessionToken := generateToken(32)
	csrfToken := generateToken(32)
	expiresAt := time.Now().Add(sessionTTL)

	if _, err := svc.store.CreateSession(ctx, userID, sessionToken, csrfToken, expiresAt); err != nil {
		svc.log.Warn("create session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}

	maxAge := int(sessionTTL.Seconds())
	c.SetCookie("session_token", sessionToken, maxAge, "/", svc.cookieDomain, false, true)
	c.SetCookie("csrf_token", csrfToken, maxAge, "/", svc.cookieDomain, false, false)

	c.JSON(http.StatusOK, gin.H{"message": "logged in", "csrf_token": csrfToken})
}
